// Command seed_agent creates or updates a municipal agent account. Citizens
// authenticate anonymously, so this is the only way agent credentials enter
// the system.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/civicpulse/civicpulse-api/pkg/config"
)

func main() {
	var (
		email    string
		password string
		fullName string
		role     string
		inactive bool
	)

	flag.StringVar(&email, "email", "", "agent email (required)")
	flag.StringVar(&password, "password", "", "agent password (required)")
	flag.StringVar(&fullName, "name", "", "agent display name")
	flag.StringVar(&role, "role", "AGENT", "AGENT or ADMIN")
	flag.BoolVar(&inactive, "inactive", false, "create the account disabled")
	flag.Parse()

	if email == "" || password == "" {
		flag.Usage()
		os.Exit(2)
	}
	if role != "AGENT" && role != "ADMIN" {
		log.Fatalf("invalid role %q", role)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.User,
		cfg.Database.Password, cfg.Database.Name, cfg.Database.SSLMode,
	)
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer db.Close() //nolint:errcheck

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	query := `INSERT INTO agents (email, password_hash, full_name, role, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			full_name = EXCLUDED.full_name,
			role = EXCLUDED.role,
			active = EXCLUDED.active,
			updated_at = NOW()
		RETURNING id`

	var id string
	if err := db.QueryRow(query, email, string(hash), fullName, role, !inactive).Scan(&id); err != nil {
		log.Fatalf("failed to upsert agent: %v", err)
	}

	fmt.Printf("agent %s ready (id %s, role %s)\n", email, id, role)
}
