package main

import (
	"fmt"
	"time"

	"github.com/bcrosbie/skillbench/internal/catalog"
	"github.com/bcrosbie/skillbench/internal/manifest"
	"github.com/spf13/cobra"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Provision and check the catalog directly against the store",
	}
	cmd.AddCommand(newCatalogImportCmd())
	cmd.AddCommand(newCatalogValidateCmd())
	return cmd
}

func newCatalogImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <manifest.yaml>",
		Short: "Upsert tasks, skills and benchmark cases from a YAML manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}
			s, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			summary, err := manifest.Import(cmd.Context(), s, m, time.Now())
			if err != nil {
				return err
			}
			fmt.Println(okStyle.Render(fmt.Sprintf("imported %d tasks, %d skills, %d benchmark cases",
				summary.Tasks, summary.Skills, summary.BenchmarkCases)))
			return nil
		},
	}
}

func newCatalogValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the catalog and run the integrity checks the server applies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			c, err := catalog.Load(cmd.Context(), s)
			if err != nil {
				return err
			}
			fmt.Println(okStyle.Render("catalog is valid"))
			fmt.Println(mutedStyle.Render(fmt.Sprintf("%d tasks, %d skills, %d runs, %d scores",
				len(c.Tasks), len(c.Skills), len(c.Runs), len(c.Scores))))
			return nil
		},
	}
}
