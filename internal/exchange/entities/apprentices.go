package entities

import (
	"github.com/GaryOcean428/ApprenticeTracker-sub001/internal/exchange"
)

func init() {
	registerApprentices()
}

func registerApprentices() {
	exchange.Register(exchange.EntityDefinition{
		Type:       "apprentices",
		Label:      "Apprentices",
		NaturalKey: "email",
		Fields: []exchange.FieldSpec{
			{Label: "First Name", TargetField: "firstName", Required: true},
			{Label: "Last Name", TargetField: "lastName", Required: true},
			{Label: "Email", TargetField: "email", Required: true},
			{Label: "Phone", TargetField: "phone"},
			{Label: "Date of Birth", TargetField: "dateOfBirth"},
			{Label: "USI", TargetField: "usi"},
			{Label: "Trade", TargetField: "trade"},
			{Label: "Status", TargetField: "status"},
			{Label: "Start Date", TargetField: "startDate"},
			{Label: "Suburb", TargetField: "suburb"},
			{Label: "State", TargetField: "state"},
			{Label: "Postcode", TargetField: "postcode"},
		},
	})
}
