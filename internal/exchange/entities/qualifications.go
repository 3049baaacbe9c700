package entities

import (
	"github.com/GaryOcean428/ApprenticeTracker-sub001/internal/exchange"
)

func init() {
	registerQualifications()
}

func registerQualifications() {
	exchange.Register(exchange.EntityDefinition{
		Type:       "qualifications",
		Label:      "Qualifications",
		NaturalKey: "code",
		Fields: []exchange.FieldSpec{
			{Label: "Code", TargetField: "code", Required: true},
			{Label: "Title", TargetField: "title", Required: true},
			{Label: "Level", TargetField: "level"},
			{Label: "Training Package", TargetField: "trainingPackage"},
			{Label: "Nominal Hours", TargetField: "nominalHours"},
		},
	})
}
