package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var nextIDCmd = &cobra.Command{
	Use:   "next-id",
	Short: "Print the next free product ID",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, deps, err := openDependencies(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()

		id, err := deps.Catalog.NextID(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var clearBufferCmd = &cobra.Command{
	Use:   "clear-buffer",
	Short: "Delete every staged upload that was never filed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, log, deps, err := openDependencies(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()

		removed, err := deps.Catalog.ClearBuffer(cmd.Context())
		if err != nil {
			return err
		}
		log.Info("Buffer cleared", zap.Int("removed", removed))
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d file(s)\n", removed)
		return nil
	},
}

var importRawCmd = &cobra.Command{
	Use:   "import-raw",
	Short: "Produce HD and thumbnail renditions for new photos in the raw folder",
	Long: `Scan the raw staging folder for jpg/jpeg/png photos that have no
<name>_hd.jpg in the images folder yet, and write <name>_hd.jpg and
<name>_thumb.jpg for each. Photos that fail to decode are skipped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, deps, err := openDependencies(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()

		renditions, err := deps.Raw.ImportAll(cmd.Context())
		if err != nil {
			return err
		}
		for _, r := range renditions {
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s, %s\n", r.Source, r.HD.Path, r.Thumbnail.Path)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d photo(s)\n", len(renditions))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(nextIDCmd, clearBufferCmd, importRawCmd)
}
