// Package database opens the SQLite file behind the persistent UUID store
// and applies its embedded migrations.
//
//	db, err := database.Open(ctx, database.Config{Path: path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// IntegrityCheck and Remove let the store discard a damaged file and
// start over. The file is chmod 0600 on open.
package database
