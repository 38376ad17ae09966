// Package migrations embeds the SciReCount schema into the binary and
// registers it with the database package.
package migrations

import (
	"embed"

	"github.com/techscire/scirecount-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
