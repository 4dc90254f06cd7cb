package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/geodex/geodex/internal/inventory"
)

var (
	fetchProducts []string
	fetchTiles    []string
	fetchDates    string
	fetchUpdate   bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download missing assets from their remote providers",
	Long: `Fetch queries each remote provider for the asset types the requested
products need, over every (tile, date) in the extent, and downloads
whatever is missing locally into stage/. Drivers marked inline-archive
archive each download immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		extent, err := inventory.ParseTemporalExtent(fetchDates)
		if err != nil {
			return err
		}
		fetched, err := a.fetcher.Fetch(ctx, fetchProducts, fetchTiles, extent.Dates(), fetchUpdate)
		if err != nil {
			return err
		}
		fmt.Printf("fetched %d file(s)\n", len(fetched))
		for _, path := range fetched {
			fmt.Println("  " + path)
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringSliceVarP(&fetchProducts, "products", "p", nil, "products whose assets to fetch")
	fetchCmd.Flags().StringSliceVarP(&fetchTiles, "tiles", "t", nil, "tile ids")
	fetchCmd.Flags().StringVar(&fetchDates, "dates", "", "date or range: 2017-01-01[,2017-02-15]")
	fetchCmd.Flags().BoolVarP(&fetchUpdate, "update", "u", false, "re-fetch when the provider has a newer version")
	cobra.CheckErr(fetchCmd.MarkFlagRequired("products"))
	cobra.CheckErr(fetchCmd.MarkFlagRequired("tiles"))
	cobra.CheckErr(fetchCmd.MarkFlagRequired("dates"))
}
