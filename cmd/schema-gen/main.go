// Command schema-gen generates SQL schema migration files for the commit
// store.
//
// Usage:
//
//	go run github.com/getpup/commitstore/cmd/schema-gen -dialect postgres -output migrations
//
// Or with go generate:
//
//	//go:generate go run github.com/getpup/commitstore/cmd/schema-gen -dialect postgres -output migrations
//
// Supported dialects: postgres, mysql, sqlite, mssql, oracle, firebird.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/getpup/commitstore/migrations"
	"github.com/getpup/commitstore/sqlstore"
	"github.com/getpup/commitstore/sqlstore/dialects/firebird"
	"github.com/getpup/commitstore/sqlstore/dialects/mssql"
	"github.com/getpup/commitstore/sqlstore/dialects/mysql"
	"github.com/getpup/commitstore/sqlstore/dialects/oracle"
	"github.com/getpup/commitstore/sqlstore/dialects/postgres"
	"github.com/getpup/commitstore/sqlstore/dialects/sqlite"
)

func main() {
	var (
		dialectName    = flag.String("dialect", "postgres", "Database dialect: postgres, mysql, sqlite, mssql, oracle, or firebird")
		outputFolder   = flag.String("output", "migrations", "Output folder for migration file")
		outputFilename = flag.String("filename", "", "Output filename (default: timestamp-based)")
	)

	flag.Parse()

	var dialect sqlstore.Dialect
	switch *dialectName {
	case "postgres":
		dialect = postgres.New()
	case "mysql":
		dialect = mysql.New()
	case "sqlite":
		dialect = sqlite.New()
	case "mssql":
		dialect = mssql.New()
	case "oracle":
		dialect = oracle.New()
	case "firebird":
		dialect = firebird.New()
	default:
		fmt.Fprintf(os.Stderr, "Error: unsupported dialect '%s'. Supported dialects are: postgres, mysql, sqlite, mssql, oracle, firebird\n", *dialectName)
		os.Exit(1)
	}

	config := migrations.DefaultConfig()
	config.OutputFolder = *outputFolder
	if *outputFilename != "" {
		config.OutputFilename = *outputFilename
	}

	if err := migrations.Generate(dialect, &config); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating migration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s migration: %s/%s\n", *dialectName, config.OutputFolder, config.OutputFilename)
}
