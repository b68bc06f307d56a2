// Package commitstore provides durable, SQL-backed commit storage for event
// sourced applications.
//
// This package serves as the main entry point for the commitstore library.
// For the core functionality, see the store and sqlstore packages:
//
//	store              - Core types and interfaces
//	sqlstore           - The SQL-backed engine
//	sqlstore/dialects  - Per-vendor SQL dialects
//	serialize          - Default JSON serialization
//	logging            - Logrus adapter for the store.Logger interface
//	migrations         - Schema script generation
//
// Quick Start:
//
//  1. Generate the schema script:
//     go run github.com/getpup/commitstore/cmd/schema-gen -dialect postgres -output migrations
//
//  2. Create the engine and append a commit:
//     engine, _ := sqlstore.NewEngine(&store.DBConnectionFactory{DB: db},
//     postgres.New(), serialize.JSON{}, serialize.JSONEvents{}, sqlstore.DefaultConfig())
//     commit, err := engine.Commit(ctx, attempt)
//
//  3. Read a stream back:
//     commits, err := engine.GetFrom(ctx, "default", "order-42", 0, 0)
//
// See the examples directory for complete working examples.
package commitstore

// Version returns the current version of the library.
func Version() string {
	return "0.1.0-dev"
}
