// Package entities registers the field catalogs for every importable and
// exportable entity type. Import this package to ensure all entities are
// registered.
package entities

// This file exists to provide a single import point.
// Each entity file uses init() to register its catalog.
