package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/nodelet/pkg/model"
)

func newTasksCmd() *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List journaled tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/tasks"
			if state != "" {
				path += "?state=" + state
			}
			resp, err := client.Get(path)
			if err != nil {
				return fmt.Errorf("list tasks: %w", err)
			}

			var tasks []model.Task
			if err := json.Unmarshal(resp.Data, &tasks); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			if len(tasks) == 0 {
				fmt.Println("No tasks.")
				return nil
			}
			fmt.Printf("%-40s %-24s %s\n", "ID", "STATE", "CREATED")
			for _, t := range tasks {
				fmt.Printf("%-40s %-24s %s\n", t.ID, t.State, t.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Printf("(%d of %d)\n", len(tasks), resp.Pagination.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Filter by task state (e.g. WAITING, RUNNING, DONE)")
	return cmd
}

func newTaskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "task <task_id>",
		Short: "Show one task with its transition history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			resp, err := client.Get("/api/v1/tasks/" + id)
			if err != nil {
				return fmt.Errorf("get task: %w", err)
			}
			var task model.Task
			if err := json.Unmarshal(resp.Data, &task); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			fmt.Printf("Task:  %s\n", task.ID)
			fmt.Printf("State: %s\n", task.State)
			if task.ActorID != "" {
				fmt.Printf("Actor: %s (creation=%v)\n", task.ActorID, task.ActorCreation)
			}
			if len(task.Dependencies) > 0 {
				fmt.Printf("Deps:  %v\n", task.Dependencies)
			}
			if task.Result != nil {
				out, _ := json.Marshal(task.Result)
				fmt.Printf("Result: %s\n", out)
			}
			if task.Error != "" {
				fmt.Printf("Error: %s\n", task.Error)
			}

			resp, err = client.Get("/api/v1/tasks/" + id + "/transitions")
			if err != nil {
				return fmt.Errorf("get transitions: %w", err)
			}
			var transitions []map[string]any
			if err := json.Unmarshal(resp.Data, &transitions); err != nil {
				return fmt.Errorf("parse transitions: %w", err)
			}
			if len(transitions) > 0 {
				fmt.Println("Transitions:")
				for _, tr := range transitions {
					fmt.Printf("  %s → %s\n", tr["from"], tr["to"])
				}
			}
			return nil
		},
	}
}
