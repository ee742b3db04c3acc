// Package database opens the hub's local SQLite database.
//
// The database holds the command journal. Schema changes are additive
// migration files applied in version order by Migrate; the production set
// is embedded by the migrations package.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS, "."); err != nil {
//	    return err
//	}
package database
