package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/engine"
)

var capacityCmd = &cobra.Command{
	Use:   "capacity <person-id>",
	Short: "Print the tier capacity ledger for a person",
	Args:  cobra.ExactArgs(1),
	RunE:  runCapacity,
}

func runCapacity(cmd *cobra.Command, args []string) error {
	db, eng, err := openEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, tier := range engine.Tiers {
		tc, err := eng.Capacity(ctx, args[0], tier)
		if err != nil {
			return err
		}
		available := "unbounded"
		if tc.Available >= 0 {
			available = fmt.Sprintf("%d", tc.Available)
		}
		fmt.Printf("%-12s friends %3d  reserved %3d  available %s\n", tier, tc.FriendCount, tc.Reserved, available)
	}
	return nil
}
