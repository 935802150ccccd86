package cmd

import (
	"errors"

	"github.com/mmguero-android/timelimit-android-sub001/internal/output"
	tlsync "github.com/mmguero-android/timelimit-android-sub001/internal/sync"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Run one sync pass now",
	Long:    `Uploads every pending log entry in order, then pulls and merges the server state.`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := loadCredential()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		res, err := newEngine(database, creds).RunPass(cmd.Context())
		if err != nil {
			reportSyncError(err)
			return err
		}
		if jsonOutput {
			return output.JSON(map[string]any{"uploaded": res.Uploaded, "duration_ms": res.Duration.Milliseconds()})
		}
		output.Success("Synced: %d uploaded in %s", res.Uploaded, res.Duration.Round(1e6))
		return nil
	},
}

func reportSyncError(err error) {
	var (
		code = output.ErrCodeSyncFailed
		msg  = err.Error()
		ce   *tlsync.ConsistencyError
	)
	switch {
	case errors.Is(err, tlsync.ErrAttributionRejected):
		code = output.ErrCodeNeedsReauth
		msg = "the server rejected a parent authorization; run 'tlsync login --parent <id>' to resume uploads"
	case errors.Is(err, tlsync.ErrDeviceRemoved):
		code = output.ErrCodeDeviceRemoved
		msg = "this device was removed from the family; local state has been reset"
	case errors.As(err, &ce):
		code = output.ErrCodeServerRejected
	}
	if jsonOutput {
		output.JSONError(code, msg)
		return
	}
	output.Error("%s", msg)
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
