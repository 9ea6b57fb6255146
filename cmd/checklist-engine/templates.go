package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/terra-clan/checklist-engine/internal/checklist"
	"github.com/terra-clan/checklist-engine/internal/templates"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage checklist templates",
}

var templatesImportCmd = &cobra.Command{
	Use:   "import [dir]",
	Short: "Import YAML templates from a directory",
	Long: `Import every *.yaml / *.yml template in dir (and its direct
subdirectories). A template whose name already exists is replaced; existing
checklists are never changed.

When dir is omitted, templates.dir from the configuration is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.Templates.Dir
		if len(args) == 1 {
			dir = args[0]
		}
		if dir == "" {
			return fmt.Errorf("no templates directory given")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		repo, err := openRepository(ctx, cfg.Database, cfg.Database.AutoMigrate)
		if err != nil {
			return err
		}
		defer repo.Close()

		res, err := templates.ImportDir(ctx, dir, checklist.NewManager(repo))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Created: %d, updated: %d\n", res.Created, res.Updated)
		for _, f := range res.Failed {
			fmt.Fprintf(out, "Failed:  %s\n", f)
		}
		if len(res.Failed) > 0 {
			return fmt.Errorf("%d template(s) failed to import", len(res.Failed))
		}
		return nil
	},
}

func init() {
	templatesCmd.AddCommand(templatesImportCmd)
}
