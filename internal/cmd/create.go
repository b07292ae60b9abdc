package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AlbertoV5/workstream/internal/index"
	"github.com/AlbertoV5/workstream/internal/plandoc"
	"github.com/AlbertoV5/workstream/internal/repo"
)

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new workstream",
	Long: `Create a new workstream: register it in the index, make it current,
and scaffold its PLAN.md with one stage ready to be filled in.`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func init() {
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	name := args[0]
	var created *index.Workstream
	err = index.Modify(a.Root, a.Locker, func(idx *index.Index) error {
		stream, err := index.Create(idx, name)
		if err != nil {
			return err
		}
		created = stream
		return index.SetCurrent(idx, stream.ID)
	})
	if err != nil {
		return err
	}

	if err := repo.EnsureStreamDir(a.Root, created.ID); err != nil {
		return err
	}
	planPath := repo.PlanPath(a.Root, created.ID)
	if _, err := os.Stat(planPath); os.IsNotExist(err) {
		scaffold, err := plandoc.Template(plandoc.TemplateData{Name: name})
		if err != nil {
			return err
		}
		if err := os.WriteFile(planPath, scaffold, 0o644); err != nil {
			return fmt.Errorf("failed to write plan scaffold: %w", err)
		}
	}

	fmt.Printf("Created workstream %s (%s)\n", created.ID, name)
	fmt.Printf("Plan: %s\n", planPath)
	fmt.Println("Edit the plan, then run 'work plan approve' when it is ready.")
	return nil
}
