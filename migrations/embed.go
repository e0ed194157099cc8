// Package migrations embeds SQL migration files into the binary.
//
// Importing this package registers the files with the database package,
// so the UUID store can migrate without the SQL present on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-upnp/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
