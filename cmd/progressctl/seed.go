package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Write the achievement catalog to storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		rt, err := wire(cmd.Context(), cfg, newLogger(cfg))
		if err != nil {
			return err
		}
		defer rt.Close()

		res, err := rt.app.SeedCatalog.Handle(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "catalog: %d defined, %d inserted\n", res.Defined, res.Inserted)
		return nil
	},
}
