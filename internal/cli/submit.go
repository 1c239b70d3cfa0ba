package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/me/nodelet/pkg/model"
)

// taskSpec is the YAML shape accepted by `nodelet submit -f`.
type taskSpec struct {
	ID            string             `yaml:"id"`
	ActorID       string             `yaml:"actor_id"`
	ActorCreation bool               `yaml:"actor_creation"`
	Function      string             `yaml:"function"`
	Args          []any              `yaml:"args"`
	Dependencies  []string           `yaml:"dependencies"`
	ReturnID      string             `yaml:"return_id"`
	Resources     map[string]float64 `yaml:"resources"`
}

func newSubmitCmd() *cobra.Command {
	var specFile string
	var deps []string

	cmd := &cobra.Command{
		Use:   "submit [function]",
		Short: "Submit a task to the node",
		Long: `Submit a task. Either pass the JavaScript function body as an
argument, or load a full task spec from a YAML file with -f.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var spec taskSpec
			switch {
			case specFile != "":
				data, err := os.ReadFile(specFile)
				if err != nil {
					return fmt.Errorf("read spec %s: %w", specFile, err)
				}
				if err := yaml.Unmarshal(data, &spec); err != nil {
					return fmt.Errorf("parse spec %s: %w", specFile, err)
				}
			case len(args) == 1:
				spec.Function = args[0]
				spec.Dependencies = deps
			default:
				return fmt.Errorf("either a function argument or -f is required")
			}

			resp, err := client.Post("/api/v1/tasks", map[string]any{
				"id":             spec.ID,
				"actor_id":       spec.ActorID,
				"actor_creation": spec.ActorCreation,
				"function":       spec.Function,
				"args":           spec.Args,
				"dependencies":   spec.Dependencies,
				"return_id":      spec.ReturnID,
				"resources":      spec.Resources,
			})
			if err != nil {
				return fmt.Errorf("submit task: %w", err)
			}

			var task model.Task
			if err := json.Unmarshal(resp.Data, &task); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			fmt.Printf("Task:   %s\n", task.ID)
			fmt.Printf("State:  %s\n", task.State)
			fmt.Printf("Return: %s\n", task.ReturnID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&specFile, "file", "f", "", "YAML task spec file")
	cmd.Flags().StringSliceVar(&deps, "depends-on", nil, "Object IDs the task depends on")
	return cmd
}
