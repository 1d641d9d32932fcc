package migrations

import (
	_ "embed"

	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_teams.sql
var createTeamsSQL string

//go:embed 0002_create_levels.sql
var createLevelsSQL string

var Migrations = migrate.NewMigrations()
