// Package db embeds the database schema and seed catalog.
package db

import _ "embed"

// Schema contains the DDL statements for all application tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// Products is the demo catalog loaded by seed-db.
//
//go:embed seed/products.json
var Products []byte
