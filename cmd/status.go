package cmd

import (
	"fmt"
	"time"

	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
	"github.com/mmguero-android/timelimit-android-sub001/internal/output"
	"github.com/mmguero-android/timelimit-android-sub001/internal/syncconfig"
	"github.com/spf13/cobra"
)

// syncStatus is the local view of the sync state.
type syncStatus struct {
	DeviceID         string                `json:"device_id"`
	ServerURL        string                `json:"server_url"`
	SyncEnabled      bool                  `json:"sync_enabled"`
	Pending          int                   `json:"pending"`
	Frozen           int                   `json:"frozen"`
	LastSuccess      time.Time             `json:"last_success,omitzero"`
	NeedsReauth      bool                  `json:"needs_reauth"`
	FullVersionUntil time.Time             `json:"full_version_until,omitzero"`
	Message          string                `json:"message,omitempty"`
	Tokens           []models.VersionToken `json:"version_tokens,omitempty"`
}

func readStatus(cmd *cobra.Command, database *db.DB) (syncStatus, error) {
	var st syncStatus
	creds, err := syncconfig.LoadAuth()
	if err != nil {
		return st, fmt.Errorf("load credential: %w", err)
	}
	st.SyncEnabled = creds != nil
	st.ServerURL = serverURLOf(creds)

	err = database.Transaction(cmd.Context(), func(tx *db.Tx) error {
		var err error
		if st.DeviceID, err = tx.OwnDeviceID(); err != nil {
			return err
		}
		if st.Pending, err = tx.CountPendingActions(); err != nil {
			return err
		}
		if st.Frozen, err = tx.CountFrozen(); err != nil {
			return err
		}
		last, err := tx.GetConfigInt64(db.KeyLastSyncSuccess)
		if err != nil {
			return err
		}
		if last > 0 {
			st.LastSuccess = time.Unix(last, 0)
		}
		reauth, err := tx.GetConfig(db.KeyNeedsReauth)
		if err != nil {
			return err
		}
		st.NeedsReauth = reauth == "1"
		until, err := tx.GetConfigInt64(db.KeyFullVersionUntil)
		if err != nil {
			return err
		}
		if until > 0 {
			st.FullVersionUntil = time.UnixMilli(until)
		}
		if st.Message, err = tx.GetConfig(db.KeyServerMessage); err != nil {
			return err
		}
		st.Tokens, err = tx.ListVersionTokens()
		return err
	})
	return st, err
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show the sync state of this device",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openStore()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		st, err := readStatus(cmd, database)
		if err != nil {
			return err
		}
		if jsonOutput {
			return output.JSON(st)
		}

		device := st.DeviceID
		if device == "" {
			device = output.Subtle("not registered")
		}
		fmt.Printf("Device:       %s\n", device)
		fmt.Printf("Server:       %s\n", st.ServerURL)
		if st.SyncEnabled {
			fmt.Printf("Sync:         %s\n", "enabled")
		} else {
			fmt.Printf("Sync:         %s\n", output.Subtle("disabled (no credential)"))
		}
		fmt.Printf("Pending:      %d (%d frozen)\n", st.Pending, st.Frozen)
		fmt.Printf("Last success: %s\n", output.FormatTimeAgo(st.LastSuccess))
		if !st.FullVersionUntil.IsZero() {
			fmt.Printf("Full version: until %s\n", st.FullVersionUntil.Format("2006-01-02"))
		}
		if st.NeedsReauth {
			output.Warning("uploads paused until a parent logs in again")
		}

		if verbose, _ := cmd.Flags().GetBool("tokens"); verbose && len(st.Tokens) > 0 {
			fmt.Print(output.SectionHeader("version tokens"))
			for _, tok := range st.Tokens {
				scope := ""
				if tok.Scope != "" {
					scope = "/" + tok.Scope
				}
				fmt.Printf("  %s%s  %s\n", tok.Family, scope, output.Subtle(tok.Token))
			}
		}

		if st.Message != "" {
			fmt.Print(output.SectionHeader("message"))
			rendered, err := output.RenderMessage(st.Message)
			if err != nil {
				rendered = output.IndentString(st.Message, 2)
			}
			fmt.Println(rendered)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("tokens", false, "list stored version tokens")
	rootCmd.AddCommand(statusCmd)
}
