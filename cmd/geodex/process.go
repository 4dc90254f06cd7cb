package main

import (
	"github.com/spf13/cobra"
)

var (
	procFetch bool
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Generate products for an extent",
	Long: `Process builds the requested products for every (tile, date) with the
needed assets archived. Single-date products run per date, best effort;
composite products run once over the whole inventory. With --fetch the
missing assets are downloaded and archived first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		di, err := buildInventory(ctx, a, procFetch)
		if err != nil {
			return err
		}
		return di.Process(ctx)
	},
}

func init() {
	addExtentFlags(processCmd)
	processCmd.Flags().BoolVar(&procFetch, "fetch", false, "fetch missing assets first")
	processCmd.Flags().BoolVarP(&invUpdate, "update", "u", false, "allow newer versions to replace archived assets")
	processCmd.Flags().BoolVar(&invOverwrite, "overwrite", false, "regenerate existing products")
	cobra.CheckErr(processCmd.MarkFlagRequired("products"))
}
