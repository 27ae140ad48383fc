package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/config"
	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/engine"
	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/store"
)

var nudgesCmd = &cobra.Command{
	Use:   "nudges <person-id>",
	Short: "Print the reconnection nudges due for a person",
	Args:  cobra.ExactArgs(1),
	RunE:  runNudges,
}

func runNudges(cmd *cobra.Command, args []string) error {
	db, eng, err := openEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	nudges, err := eng.ComputeNudges(ctx, args[0], time.Now().UTC())
	if err != nil {
		return err
	}
	if len(nudges) == 0 {
		fmt.Println("no nudges due")
		return nil
	}

	for _, n := range nudges {
		since := "never"
		if n.DaysSinceContact >= 0 {
			since = fmt.Sprintf("%d days ago", n.DaysSinceContact)
		}
		fmt.Printf("%-12s %-36s last contact %-14s -> %s\n", n.Tier, n.FriendID, since, n.SuggestedAction)
	}
	return nil
}

// openEngine opens the configured database and builds an engine over it.
// Shared by the one-shot inspection commands.
func openEngine() (*store.DB, *engine.Engine, error) {
	cfg := config.Default()

	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	if _, err := os.Stat(dbPath); err != nil {
		return nil, nil, fmt.Errorf("no database at %s (run serve first)", dbPath)
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return db, engine.New(db, cfg), nil
}
