package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/giveaway/go/internal/dbconfig"
)

// Participant mirrors the JSON seed file.
type Participant struct {
	DisplayName  string    `json:"display_name"`
	PostalRegion string    `json:"postal_region"`
	RegisteredAt time.Time `json:"registered_at"`
}

func main() {
	path := "go/internal/assets/participants.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the JSON snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var participants []Participant
	if err := json.Unmarshal(data, &participants); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(context.Background(), cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Insert and count; a name already in the active round is skipped
	var (
		total    = len(participants)
		inserted int
		skipped  int
		errs     int
	)

	for _, p := range participants {
		registeredAt := p.RegisteredAt
		if registeredAt.IsZero() {
			registeredAt = time.Now()
		}
		cmdTag, err := pool.Exec(context.Background(), `
            INSERT INTO participants (id, display_name, postal_region, registered_at)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (display_name) DO NOTHING
        `,
			uuid.New(), p.DisplayName, p.PostalRegion, registeredAt.UTC(),
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting participant %s: %v\n", p.DisplayName, err)
			errs++
			continue
		}
		if cmdTag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}

	// 4) Print summary
	fmt.Printf(
		"Participants seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		total, inserted, skipped, errs,
	)
}
