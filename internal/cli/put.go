package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <object_id> <json_value>",
		Short: "Publish an object value to the node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, raw := args[0], args[1]

			var value any
			if err := json.Unmarshal([]byte(raw), &value); err != nil {
				// Not valid JSON: treat it as a plain string.
				value = raw
			}

			if _, err := client.Post("/api/v1/objects/"+id, map[string]any{"value": value}); err != nil {
				return fmt.Errorf("put object: %w", err)
			}
			fmt.Printf("Object %s published.\n", id)
			return nil
		},
	}
}
