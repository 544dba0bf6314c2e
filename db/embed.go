// Package db carries the embedded schema DDL applied on startup.
package db

import _ "embed"

// Schema is the idempotent DDL for the pricing engine: catalog and discount
// tables, the partial unique index guarding one active discount per product,
// and the admin API key store.
//
//go:embed migrations/001_schema.sql
var Schema string
