package cmd

import (
	"errors"
	"fmt"

	"github.com/mmguero-android/timelimit-android-sub001/internal/actions"
	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
	"github.com/mmguero-android/timelimit-android-sub001/internal/output"
	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:     "user",
	Short:   "Manage family members",
	GroupID: "family",
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users and devices known to this device",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		var (
			users   []models.User
			devices []models.Device
			login   = map[string]string{}
		)
		err = database.Transaction(cmd.Context(), func(tx *db.Tx) error {
			var err error
			if users, err = tx.ListUsers(); err != nil {
				return err
			}
			if devices, err = tx.ListDevices(); err != nil {
				return err
			}
			links, err := tx.ListUserLimitLoginCategories()
			for _, l := range links {
				login[l.UserID] = l.CategoryID
			}
			return err
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			return output.JSON(map[string]any{"users": users, "devices": devices})
		}
		fmt.Print(output.SectionHeader("users"))
		for _, u := range users {
			line := fmt.Sprintf("  %s  %s  %s", output.Title(u.ID), u.Name, output.FormatUserType(u.Type))
			if c := login[u.ID]; c != "" {
				line += output.Subtle("  login limited by " + c)
			}
			fmt.Println(line)
		}
		fmt.Print(output.SectionHeader("devices"))
		for _, d := range devices {
			current := d.CurrentUserID
			if current == "" {
				current = "-"
			}
			line := fmt.Sprintf("  %s  %s  user %s", output.Title(d.ID), d.Name, current)
			if d.KeepSignedIn {
				line += output.Subtle("  kept signed in")
			}
			fmt.Println(line)
		}
		return nil
	},
}

var userRemoveCmd = &cobra.Command{
	Use:   "remove <user-id>",
	Short: "Remove a user with the categories they own",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return queueParent(cmd, &actions.RemoveUser{UserID: args[0]})
	},
}

var userLoginCategoryCmd = &cobra.Command{
	Use:   "login-category <user-id> [category-id]",
	Short: "Limit a parent's sign-in by a category, or clear the limit",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := &actions.SetUserLimitLoginCategory{UserID: args[0]}
		if len(args) == 2 {
			p.CategoryID = args[1]
		}
		return queueParent(cmd, p)
	},
}

var userKeepSignedInCmd = &cobra.Command{
	Use:   "keep-signed-in [device-id]",
	Short: "Keep the current user of a device signed in",
	Long:  `Sets the keep-signed-in flag of a device, this device when no id is given. Use --off to clear it.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		off, _ := cmd.Flags().GetBool("off")
		deviceID := ""
		if len(args) == 1 {
			deviceID = args[0]
		} else {
			database, err := openStore()
			if err != nil {
				return err
			}
			err = database.Transaction(cmd.Context(), func(tx *db.Tx) error {
				deviceID, err = tx.OwnDeviceID()
				return err
			})
			database.Close()
			if err != nil {
				return err
			}
			if deviceID == "" {
				return errors.New("this device is not registered")
			}
		}
		return queueParent(cmd, &actions.SetKeepSignedIn{DeviceID: deviceID, KeepSignedIn: !off})
	},
}

var signinCmd = &cobra.Command{
	Use:     "signin",
	Short:   "Sign a child in at this device",
	GroupID: "family",
	RunE: func(cmd *cobra.Command, args []string) error {
		childID, _ := cmd.Flags().GetString("child")
		if childID == "" {
			return errors.New("--child is required")
		}
		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		pw, err := readPassword(cmd, fmt.Sprintf("Password for %s", childID))
		if err != nil {
			return err
		}
		auth, err := userAuth(cmd.Context(), database, childID, models.UserTypeChild, pw)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		return queue(cmd.Context(), database, &actions.ChildSignIn{}, auth)
	},
}

func init() {
	userKeepSignedInCmd.Flags().Bool("off", false, "clear the flag instead")
	for _, c := range []*cobra.Command{userRemoveCmd, userLoginCategoryCmd, userKeepSignedInCmd} {
		addParentFlags(c)
		userCmd.AddCommand(c)
	}
	userCmd.AddCommand(userListCmd)
	rootCmd.AddCommand(userCmd)

	signinCmd.Flags().String("child", "", "child user id")
	signinCmd.Flags().String("password", "", "child password (prompted when omitted)")
	rootCmd.AddCommand(signinCmd)
}
