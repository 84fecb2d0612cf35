package db

import (
	"fmt"
	"io"
	"strconv"
)

const migrateUsage = `Usage: depthcam migrate <action> [version]

Actions:
  up                Apply all pending migrations
  down              Roll back the most recent migration
  status            Show the current version
  version <n>       Migrate up or down to version n
  force <n>         Record version n without running it (dirty recovery)
  help              Show this message
`

// RunMigrateCommand runs the 'migrate' subcommand against the database at
// dbPath, writing progress to w.
func RunMigrateCommand(w io.Writer, args []string, dbPath string) error {
	if len(args) < 1 {
		fmt.Fprint(w, migrateUsage)
		return fmt.Errorf("missing migrate action")
	}
	action := args[0]
	if action == "help" {
		fmt.Fprint(w, migrateUsage)
		return nil
	}

	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	fsys := MigrationsFS()

	versionArg := func() (uint64, error) {
		if len(args) < 2 {
			return 0, fmt.Errorf("usage: depthcam migrate %s <version_number>", action)
		}
		v, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid version number %q", args[1])
		}
		return v, nil
	}

	switch action {
	case "up":
		err = database.MigrateUp(fsys)
	case "down":
		err = database.MigrateDown(fsys)
	case "status":
	case "version":
		var v uint64
		if v, err = versionArg(); err == nil {
			err = database.MigrateTo(fsys, uint(v))
		}
	case "force":
		var v uint64
		if v, err = versionArg(); err == nil {
			err = database.MigrateForce(fsys, int(v))
		}
	default:
		fmt.Fprint(w, migrateUsage)
		return fmt.Errorf("unknown migrate action: %s", action)
	}
	if err != nil {
		return err
	}

	version, dirty, err := database.MigrateVersion(fsys)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	latest, err := LatestMigrationVersion(fsys)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Current version: %d (latest %d, dirty: %v)\n", version, latest, dirty)
	if dirty {
		fmt.Fprintln(w, "WARNING: a migration failed mid-execution; inspect the database, then run: depthcam migrate force <version>")
	}
	return nil
}
