package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/mmguero-android/timelimit-android-sub001/internal/actions"
	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/output"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:     "log",
	Short:   "List commands waiting for upload",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openStore()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		var pending []db.PendingAction
		if err := database.Transaction(cmd.Context(), func(tx *db.Tx) error {
			pending, err = tx.ListPendingActions()
			return err
		}); err != nil {
			return err
		}

		decode, _ := cmd.Flags().GetBool("decode")
		if jsonOutput {
			type entry struct {
				SequenceNumber int64           `json:"sequence_number"`
				Kind           actions.Kind    `json:"kind"`
				Type           actions.Type    `json:"type"`
				ActorID        string          `json:"actor_id,omitempty"`
				Frozen         bool            `json:"frozen"`
				Payload        json.RawMessage `json:"payload,omitempty"`
			}
			out := make([]entry, 0, len(pending))
			for _, p := range pending {
				e := entry{SequenceNumber: p.SequenceNumber, Kind: p.Kind, Type: p.Type, ActorID: p.ActorID, Frozen: p.FrozenForUpload}
				if decode {
					e.Payload = payloadJSON(p.EncodedAction)
				}
				out = append(out, e)
			}
			return output.JSON(out)
		}

		if len(pending) == 0 {
			fmt.Println("Nothing pending")
			return nil
		}
		for _, p := range pending {
			fmt.Println(output.FormatPending(p))
			if decode {
				fmt.Println(output.IndentString(string(payloadJSON(p.EncodedAction)), 4))
			}
		}
		return nil
	},
}

// payloadJSON returns the decoded payload of an entry, or the raw envelope
// when it no longer decodes.
func payloadJSON(encoded string) json.RawMessage {
	a, err := actions.Decode(encoded)
	if err != nil {
		return json.RawMessage(encoded)
	}
	data, err := json.Marshal(a.Payload)
	if err != nil {
		return json.RawMessage(encoded)
	}
	return data
}

func init() {
	logCmd.Flags().Bool("decode", false, "show command payloads")
	rootCmd.AddCommand(logCmd)
}
