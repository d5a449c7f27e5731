package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/network-cli/internal/loader"
)

var (
	importEdgesFile    string
	importProfilesFile string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import edges (CSV/XLSX) and profiles (JSON) into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if importEdgesFile == "" && importProfilesFile == "" {
			return eris.New("nothing to import: pass --edges and/or --profiles")
		}

		ctx := cmd.Context()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if importEdgesFile != "" {
			summary, err := loader.LoadEdges(ctx, st, importEdgesFile)
			if err != nil {
				return err
			}
			zap.L().Info("edges imported",
				zap.String("file", importEdgesFile),
				zap.Int("imported", summary.Imported),
				zap.Int("skipped", summary.Skipped),
			)
		}

		if importProfilesFile != "" {
			summary, err := loader.LoadProfiles(ctx, st, importProfilesFile)
			if err != nil {
				return err
			}
			zap.L().Info("profiles imported",
				zap.String("file", importProfilesFile),
				zap.Int("imported", summary.Imported),
				zap.Int("skipped", summary.Skipped),
			)
		}

		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importEdgesFile, "edges", "", "edge file (.csv or .xlsx)")
	importCmd.Flags().StringVar(&importProfilesFile, "profiles", "", "profile file (.json)")
	rootCmd.AddCommand(importCmd)
}
