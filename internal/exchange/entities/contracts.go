package entities

import (
	"github.com/GaryOcean428/ApprenticeTracker-sub001/internal/exchange"
)

func init() {
	registerTrainingContracts()
	registerPlacements()
}

func registerTrainingContracts() {
	exchange.Register(exchange.EntityDefinition{
		Type:       "training_contracts",
		Label:      "Training Contracts",
		NaturalKey: "contractNumber",
		Fields: []exchange.FieldSpec{
			{Label: "Contract Number", TargetField: "contractNumber", Required: true},
			{Label: "Apprentice Email", TargetField: "apprenticeEmail", Required: true},
			{Label: "Host Employer ABN", TargetField: "hostEmployerAbn"},
			{Label: "Qualification Code", TargetField: "qualificationCode", Required: true},
			{Label: "Start Date", TargetField: "startDate"},
			{Label: "End Date", TargetField: "endDate"},
			{Label: "Status", TargetField: "status"},
			{Label: "Funding Source", TargetField: "fundingSource"},
		},
	})
}

// Placements carry no natural key: the same apprentice can be placed with the
// same host more than once, so every imported row creates a new record.
func registerPlacements() {
	exchange.Register(exchange.EntityDefinition{
		Type:  "placements",
		Label: "Placements",
		Fields: []exchange.FieldSpec{
			{Label: "Apprentice Email", TargetField: "apprenticeEmail", Required: true},
			{Label: "Host Employer ABN", TargetField: "hostEmployerAbn", Required: true},
			{Label: "Position", TargetField: "position"},
			{Label: "Start Date", TargetField: "startDate", Required: true},
			{Label: "End Date", TargetField: "endDate"},
			{Label: "Hourly Rate", TargetField: "hourlyRate"},
			{Label: "Supervisor", TargetField: "supervisor"},
		},
	})
}
