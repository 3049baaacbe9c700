package entities

import (
	"github.com/GaryOcean428/ApprenticeTracker-sub001/internal/exchange"
)

func init() {
	registerAwardRates()
	registerAllowances()
}

func registerAwardRates() {
	exchange.Register(exchange.EntityDefinition{
		Type:       "award_rates",
		Label:      "Award Rates",
		NaturalKey: "classification",
		Fields: []exchange.FieldSpec{
			{Label: "Classification", TargetField: "classification", Required: true},
			{Label: "Award", TargetField: "award"},
			{Label: "Year Level", TargetField: "yearLevel"},
			{Label: "Hourly Rate", TargetField: "hourlyRate", Required: true},
			{Label: "Effective Date", TargetField: "effectiveDate"},
			{Label: "Notes", TargetField: "notes"},
		},
	})
}

func registerAllowances() {
	exchange.Register(exchange.EntityDefinition{
		Type:       "allowances",
		Label:      "Allowances",
		NaturalKey: "name",
		Fields: []exchange.FieldSpec{
			{Label: "Name", TargetField: "name", Required: true},
			{Label: "Amount", TargetField: "amount", Required: true},
			{Label: "Unit", TargetField: "unit"},
			{Label: "Award", TargetField: "award"},
			{Label: "Effective Date", TargetField: "effectiveDate"},
		},
	})
}
