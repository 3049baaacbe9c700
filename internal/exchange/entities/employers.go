package entities

import (
	"github.com/GaryOcean428/ApprenticeTracker-sub001/internal/exchange"
)

func init() {
	registerHostEmployers()
}

func registerHostEmployers() {
	exchange.Register(exchange.EntityDefinition{
		Type:       "host_employers",
		Label:      "Host Employers",
		NaturalKey: "abn",
		Fields: []exchange.FieldSpec{
			{Label: "Name", TargetField: "name", Required: true},
			{Label: "ABN", TargetField: "abn", Required: true},
			{Label: "Contact Name", TargetField: "contactName"},
			{Label: "Email", TargetField: "email", Required: true},
			{Label: "Phone", TargetField: "phone"},
			{Label: "Address", TargetField: "address"},
			{Label: "Suburb", TargetField: "suburb"},
			{Label: "State", TargetField: "state"},
			{Label: "Postcode", TargetField: "postcode"},
			{Label: "Industry", TargetField: "industry"},
			{Label: "Safety Rating", TargetField: "safetyRating"},
		},
	})
}
