// Command migrate applies or rolls back the database schema.
//
// Usage:
//
//	migrate up     apply all pending migrations
//	migrate down   roll back one migration step
//
// The database URL comes from KEYLINE_DATABASE_URL (a local .env file
// is honored).
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"keyline/cmd/internal/db"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}

	if len(args) != 1 {
		return fmt.Errorf("usage: migrate up|down")
	}

	databaseURL := strings.TrimSpace(os.Getenv("KEYLINE_DATABASE_URL"))
	if databaseURL == "" {
		return fmt.Errorf("KEYLINE_DATABASE_URL is required")
	}

	switch args[0] {
	case "up":
		if err := db.MigrateUp(databaseURL); err != nil {
			return err
		}
		fmt.Println("migrations applied")
	case "down":
		if err := db.MigrateDown(databaseURL); err != nil {
			return err
		}
		fmt.Println("rolled back one step")
	default:
		return fmt.Errorf("unknown command %q (want up or down)", args[0])
	}
	return nil
}
