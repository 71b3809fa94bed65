package main

import (
	"flag"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/latticefs/core/pkg/catalog"
)

var (
	dataDir    = flag.String("data-dir", "./data", "latticefs data directory")
	dryRun     = flag.Bool("dry-run", false, "Show what would change without making changes")
	backupPath = flag.String("backup", "", "Path to back up the database before bootstrap (default: <data-dir>/catalog.db.backup)")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("latticefs catalog bootstrap/migration tool")
	log.Println("===========================================")

	dbPath := filepath.Join(*dataDir, "catalog.db")
	_, statErr := os.Stat(dbPath)
	exists := statErr == nil

	log.Printf("Database: %s", dbPath)
	log.Printf("Exists: %v", exists)
	log.Printf("Dry run: %v", *dryRun)

	if exists && !*dryRun {
		backupFile := *backupPath
		if backupFile == "" {
			backupFile = dbPath + ".backup"
		}
		log.Printf("Creating backup: %s", backupFile)
		if err := copyFile(dbPath, backupFile); err != nil {
			log.Fatalf("failed to create backup: %v", err)
		}
		log.Println("backup created successfully")
	}

	if *dryRun {
		if !exists {
			log.Println("[DRY RUN] would create a new catalog database and all buckets")
			log.Printf("[DRY RUN] would stamp schema version %s", catalog.CurrentSchemaVersion)
			return
		}
		inspect(dbPath)
		return
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		log.Fatalf("failed to create data directory: %v", err)
	}

	store, err := catalog.NewBoltStore(*dataDir, nil)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	version, err := store.SchemaVersion()
	if err != nil {
		log.Fatalf("failed to read schema version: %v", err)
	}

	switch version {
	case "":
		log.Printf("stamping fresh database with schema version %s", catalog.CurrentSchemaVersion)
		if err := store.SetSchemaVersion(catalog.CurrentSchemaVersion); err != nil {
			log.Fatalf("failed to stamp schema version: %v", err)
		}
	case catalog.CurrentSchemaVersion:
		log.Printf("database already at schema version %s, nothing to do", version)
	default:
		log.Fatalf("unsupported schema version %q; this tool only bootstraps new databases and stamps the current version", version)
	}

	log.Println("bootstrap completed successfully")
}

// inspect opens dbPath through NewBoltStore (read-write; any missing
// buckets are created), then immediately closes it and reports what it
// found, for --dry-run against an existing database.
func inspect(dbPath string) {
	dir := filepath.Dir(dbPath)
	store, err := catalog.NewBoltStore(dir, nil)
	if err != nil {
		log.Fatalf("failed to open database for inspection: %v", err)
	}
	defer store.Close()

	version, err := store.SchemaVersion()
	if err != nil {
		log.Fatalf("failed to read schema version: %v", err)
	}
	if version == "" {
		log.Printf("[DRY RUN] no schema version stamped; would stamp %s", catalog.CurrentSchemaVersion)
	} else {
		log.Printf("[DRY RUN] schema version is %s (current: %s)", version, catalog.CurrentSchemaVersion)
	}

	locs, err := store.ListLocations()
	if err != nil {
		log.Fatalf("failed to list locations: %v", err)
	}
	log.Printf("locations: %d", len(locs))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
