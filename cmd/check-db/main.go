// Package main is a diagnostic tool for testing database connectivity and
// inspecting live account data. It loads the server configuration, connects,
// reports the migration version, and prints identity counts by role and status
// plus the number of stored sessions. It exits non-zero on any failure so it
// can gate deployment pipelines on a reachable, migrated database.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/workboard/workboard/internal/config"
	"github.com/workboard/workboard/internal/db"
	"github.com/workboard/workboard/internal/db/repositories"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	database, err := db.Connect(ctx, cfg.Database.GetDSN(), 2, 1, 0)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to read migration version: %v", err)
	}
	fmt.Printf("Schema version: %d (dirty: %v)\n", version, dirty)
	if dirty {
		log.Fatalf("Schema is dirty; run `server migrate force %d` after fixing the failed migration", version)
	}

	fmt.Println("\n=== IDENTITIES ===")
	counts, err := repositories.NewIdentityRepository(database).CountByRoleAndStatus(ctx)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%-28s %d\n", k, counts[k])
	}
	if len(keys) == 0 {
		fmt.Println("No identities found!")
	}

	fmt.Println("\n=== SESSIONS ===")
	sessions, err := repositories.NewSessionRepository(database).CountSessions(ctx)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	fmt.Printf("Stored sessions: %d\n", sessions)
}
