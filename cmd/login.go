package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
	"github.com/mmguero-android/timelimit-android-sub001/internal/output"
	"github.com/mmguero-android/timelimit-android-sub001/internal/syncclient"
	"github.com/mmguero-android/timelimit-android-sub001/internal/syncconfig"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Register this device with the family server",
	Long: `Registers this device using a parent's id and password and stores the device
credential. On a device that is already registered but whose uploads were
rejected, login re-authenticates the parent, re-signs their pending commands
with the current password and lets uploads resume.`,
	GroupID: "setup",
	RunE: func(cmd *cobra.Command, args []string) error {
		parentID, _ := cmd.Flags().GetString("parent")
		if parentID == "" {
			return errors.New("--parent is required")
		}

		creds, err := syncconfig.LoadAuth()
		if err != nil {
			return fmt.Errorf("load credential: %w", err)
		}
		if creds != nil {
			return reauthenticate(cmd, creds, parentID)
		}
		return register(cmd, parentID)
	},
}

func register(cmd *cobra.Command, parentID string) error {
	ctx := cmd.Context()
	serverURL, _ := cmd.Flags().GetString("server")
	if serverURL == "" {
		serverURL = cfg.ServerURL
	}
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name, _ = os.Hostname()
	}
	model, _ := cmd.Flags().GetString("model")

	password, err := readPassword(cmd, fmt.Sprintf("Password for %s", parentID))
	if err != nil {
		return err
	}

	client := syncclient.New(serverURL, "", cfg.Sync.HTTPTimeout)
	resp, err := client.Register(ctx, &syncclient.RegisterRequest{
		ParentID:    parentID,
		Password:    password,
		DeviceName:  name,
		DeviceModel: model,
	})
	if err != nil {
		output.Error("register device: %v", err)
		return err
	}

	database, err := db.Initialize(cfg.DataDir)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := adoptDevice(ctx, database, resp.DeviceID); err != nil {
		return err
	}

	creds := &syncconfig.AuthCredentials{
		DeviceAuthToken: resp.DeviceAuthToken,
		DeviceID:        resp.DeviceID,
		ServerURL:       serverURL,
	}
	if err := syncconfig.SaveAuth(creds); err != nil {
		output.Error("save credential: %v", err)
		return err
	}
	logger.Info("device registered", "device", resp.DeviceID, "server", serverURL)

	res, err := newEngine(database, creds).RunPass(ctx)
	if err != nil {
		output.Warning("registered as %s, first sync failed: %v", resp.DeviceID, err)
		return nil
	}
	if jsonOutput {
		return output.JSON(map[string]any{"device_id": resp.DeviceID, "server_url": serverURL, "uploaded": res.Uploaded})
	}
	output.Success("Registered as %s on %s", resp.DeviceID, serverURL)
	return nil
}

// adoptDevice makes deviceID the identity of the local store. State left over
// from an earlier registration belongs to another device id and is wiped.
func adoptDevice(ctx context.Context, database *db.DB, deviceID string) error {
	return database.Transaction(ctx, func(tx *db.Tx) error {
		previous, err := tx.OwnDeviceID()
		if err != nil {
			return err
		}
		if previous != "" && previous != deviceID {
			logger.Warn("discarding state of previous registration", "device", previous)
			if err := tx.WipeAll(); err != nil {
				return err
			}
		}
		if err := tx.DeleteConfig(db.KeyNeedsReauth); err != nil {
			return err
		}
		return tx.SetConfig(db.KeyOwnDeviceID, deviceID)
	})
}

func reauthenticate(cmd *cobra.Command, creds *syncconfig.AuthCredentials, parentID string) error {
	ctx := cmd.Context()
	database, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	var needsReauth string
	if err := database.Transaction(ctx, func(tx *db.Tx) error {
		needsReauth, err = tx.GetConfig(db.KeyNeedsReauth)
		return err
	}); err != nil {
		return err
	}
	if needsReauth != "1" {
		output.Info("Already registered as %s; run 'tlsync logout' to register again", creds.DeviceID)
		return nil
	}

	password, err := readPassword(cmd, fmt.Sprintf("Password for %s", parentID))
	if err != nil {
		return err
	}
	engine := newEngine(database, creds)
	auth, err := userAuth(ctx, database, parentID, models.UserTypeParent, password)
	if errors.Is(err, errWrongPassword) {
		// The password may have changed on another device.
		if rerr := engine.Refresh(ctx); rerr != nil {
			logger.Warn("refresh before re-authentication failed", "err", rerr)
		} else {
			auth, err = userAuth(ctx, database, parentID, models.UserTypeParent, password)
		}
	}
	if err != nil {
		output.Error("%v", err)
		return err
	}

	resigned, err := engine.Reauthenticate(ctx, auth)
	if err != nil {
		return err
	}
	if resigned > 0 {
		output.Info("Re-signed %d pending command(s) for %s", resigned, parentID)
	}
	// Rewriting the credential wakes a running daemon.
	if err := syncconfig.SaveAuth(creds); err != nil {
		return err
	}
	output.Success("Uploads resumed for %s", creds.DeviceID)
	if _, err := engine.RunPass(ctx); err != nil {
		output.Warning("sync failed: %v", err)
	}
	return nil
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	Short:   "Forget the device credential",
	Long:    `Removes the stored credential, which disables sync. With --wipe the local store is cleared too.`,
	GroupID: "setup",
	RunE: func(cmd *cobra.Command, args []string) error {
		if wipe, _ := cmd.Flags().GetBool("wipe"); wipe {
			database, err := openStore()
			if err != nil && !errors.Is(err, db.ErrNotInitialized) {
				return err
			}
			if database != nil {
				err = database.Transaction(cmd.Context(), func(tx *db.Tx) error { return tx.WipeAll() })
				database.Close()
				if err != nil {
					return fmt.Errorf("wipe local store: %w", err)
				}
			}
		}
		if err := syncconfig.ClearAuth(); err != nil {
			output.Error("logout: %v", err)
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

func init() {
	loginCmd.Flags().String("parent", "", "parent user id")
	loginCmd.Flags().String("password", "", "parent password (prompted when omitted)")
	loginCmd.Flags().String("server", "", "server URL (default from config)")
	loginCmd.Flags().String("name", "", "device name (default hostname)")
	loginCmd.Flags().String("model", "", "device model")
	logoutCmd.Flags().Bool("wipe", false, "also clear the local store")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
