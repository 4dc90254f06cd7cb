package main

import (
	"context"
	"os"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/spf13/cobra"

	"github.com/geodex/geodex/internal/inventory"
	"github.com/geodex/geodex/pkg/errors"
)

var (
	invTiles      []string
	invSite       string
	invPcov       float64
	invPtile      float64
	invDates      string
	invProducts   []string
	invFetch      bool
	invUpdate     bool
	invOverwrite  bool
	invFilterArgs map[string]string
)

// spatialFlags resolves --tiles / --site into a spatial extent. A site
// geometry is intersected with the driver's tile grid.
func spatialFlags(a *app) (inventory.SpatialExtent, error) {
	if invSite == "" {
		if len(invTiles) == 0 {
			return inventory.SpatialExtent{}, errors.New(errors.ErrCodeInvalidConfig,
				"either --tiles or --site is required")
		}
		return inventory.NewSpatialExtent(invTiles), nil
	}
	wkt := invSite
	if body, err := os.ReadFile(invSite); err == nil {
		wkt = string(body)
	}
	query, err := geom.UnmarshalWKT(wkt)
	if err != nil {
		return inventory.SpatialExtent{}, errors.Wrap(errors.ErrCodeInvalidConfig,
			"parsing site geometry", err)
	}
	return inventory.SpatialExtentFromVector(a.repo, query, invPcov, invPtile, invTiles)
}

func buildInventory(ctx context.Context, a *app, fetch bool) (*inventory.DataInventory, error) {
	spatial, err := spatialFlags(a)
	if err != nil {
		return nil, err
	}
	temporal, err := inventory.ParseTemporalExtent(invDates)
	if err != nil {
		return nil, err
	}
	return inventory.New(ctx, a.repo, a.inv, a.fetcher, spatial, temporal, inventory.Options{
		Products:   invProducts,
		Fetch:      fetch,
		Update:     invUpdate,
		Overwrite:  invOverwrite,
		FilterArgs: invFilterArgs,
	}, a.log, a.met)
}

func addExtentFlags(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringSliceVarP(&invTiles, "tiles", "t", nil, "tile ids (with --site: restrict to these)")
	fl.StringVarP(&invSite, "site", "s", "", "site geometry, WKT literal or file")
	fl.Float64Var(&invPcov, "pcov", 0, "minimum percent of site covered per tile")
	fl.Float64Var(&invPtile, "ptile", 0, "minimum percent of tile covered by site")
	fl.StringVar(&invDates, "dates", "", "date or range: 2017-01-01[,2017-02-15]")
	fl.StringSliceVarP(&invProducts, "products", "p", nil, "product names")
	fl.StringToStringVar(&invFilterArgs, "filter", nil, "driver filter arguments (key=value)")
	cobra.CheckErr(cmd.MarkFlagRequired("dates"))
}

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "List archived assets and products over an extent",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		di, err := buildInventory(ctx, a, invFetch)
		if err != nil {
			return err
		}
		di.PPrint(os.Stdout)
		return nil
	},
}

func init() {
	addExtentFlags(inventoryCmd)
	inventoryCmd.Flags().BoolVar(&invFetch, "fetch", false, "fetch missing assets first")
	inventoryCmd.Flags().BoolVarP(&invUpdate, "update", "u", false, "allow newer versions to replace archived assets")
}
