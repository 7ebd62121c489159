package db

import "embed"

// EmbedMigrations contains the demo schema and seed data as goose
// migrations.
//
//go:embed migrations/*.sql
var EmbedMigrations embed.FS
