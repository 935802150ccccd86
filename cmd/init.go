package cmd

import (
	"fmt"

	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/output"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:     "init",
	Short:   "Create the local store",
	Long:    `Creates the local store in data.dir. Running it again only applies pending migrations.`,
	GroupID: "setup",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Initialize(cfg.DataDir)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		version, err := database.GetSchemaVersion()
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		if jsonOutput {
			return output.JSON(map[string]any{"data_dir": cfg.DataDir, "schema_version": version})
		}
		output.Success("Local store ready in %s (schema v%d)", cfg.DataDir, version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
