package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// bucketOrder fixes the display order of the scheduling buckets.
var bucketOrder = []string{
	"uncreated_actor_methods", "waiting", "ready", "scheduled", "running", "blocked",
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the node's scheduling queue counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/queues")
			if err != nil {
				return fmt.Errorf("get queues: %w", err)
			}

			var counts map[string]int
			if err := json.Unmarshal(resp.Data, &counts); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			total := 0
			for _, bucket := range bucketOrder {
				fmt.Printf("%-24s %d\n", bucket, counts[bucket])
				total += counts[bucket]
			}
			fmt.Printf("%-24s %d\n", "total", total)
			return nil
		},
	}
}
