// Package db provides embedded database migrations.
package db

import "embed"

// Migrations holds the versioned up/down SQL files under migrations/.
//
//go:embed migrations/*.sql
var Migrations embed.FS
