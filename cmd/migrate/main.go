package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"nestegg/internal/shared/config"
)

const usage = `Nestegg migration runner

Usage:
  migrate [options] <up|down|version>

Options:
  -path   Path to the migrations directory (default "migrations")
  -steps  Limit up/down to N steps (default 0, meaning all)
`

func main() {
	path := flag.String("path", "migrations", "path to the migrations directory")
	steps := flag.Int("steps", 0, "limit up/down to N steps (0 = all)")
	flag.Usage = func() { fmt.Print(usage) }
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	command := flag.Arg(0)

	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatalf("Could not create postgres migration driver: %v", err)
	}

	abs, err := filepath.Abs(*path)
	if err != nil {
		log.Fatalf("Failed to resolve migrations path: %v", err)
	}
	sourceURL := "file://" + filepath.ToSlash(abs)

	m, err := migrate.NewWithDatabaseInstance(sourceURL, cfg.Database.DBName, driver)
	if err != nil {
		log.Fatalf("Migration instance creation failed: %v", err)
	}

	switch command {
	case "up":
		if *steps > 0 {
			err = m.Steps(*steps)
		} else {
			err = m.Up()
		}
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			log.Fatalf("Failed to read migration version: %v", verr)
		}
		fmt.Printf("version=%d dirty=%v\n", version, dirty)
		return
	default:
		flag.Usage()
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Println("No new migrations to apply")
			return
		}
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Migrations applied successfully")
}
