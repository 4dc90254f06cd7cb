package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/geodex/geodex/internal/asset"
)

var (
	archiveRecursive bool
	archiveKeep      bool
	archiveUpdate    bool
)

var archiveCmd = &cobra.Command{
	Use:   "archive [path]",
	Short: "Archive staged asset files into the canonical tile/date layout",
	Long: `Archive moves asset files into tiles/<tile>/<date>/ by hard link,
quarantining anything unparseable or corrupt. Without a path the
driver's stage directory is archived. Already-archived files are left
alone unless --update lets a strictly newer version replace them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		path := a.repo.StagePath()
		if len(args) == 1 {
			path = args[0]
		}
		res, err := a.fetcher.ArchiveAssets(ctx, path, asset.Options{
			Recursive: archiveRecursive,
			Keep:      archiveKeep,
			Update:    archiveUpdate,
		})
		if err != nil {
			return err
		}
		fmt.Printf("found %d, archived %d, overwrote %d, quarantined %d, gatekept %d, already present %d\n",
			res.Found, len(res.Archived), len(res.Overwritten),
			res.Quarantined, res.Gatekept, res.Present)
		return nil
	},
}

func init() {
	archiveCmd.Flags().BoolVarP(&archiveRecursive, "recursive", "r", true, "descend into subdirectories")
	archiveCmd.Flags().BoolVarP(&archiveKeep, "keep", "k", false, "leave source files in place")
	archiveCmd.Flags().BoolVarP(&archiveUpdate, "update", "u", false, "replace archived assets with newer versions")
}
