package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/google/uuid"
	"github.com/mmguero-android/timelimit-android-sub001/internal/actions"
	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
	"github.com/mmguero-android/timelimit-android-sub001/internal/output"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var categoryCmd = &cobra.Command{
	Use:     "category",
	Aliases: []string{"cat"},
	Short:   "Manage app categories and their limits",
	GroupID: "family",
}

// categoryView is one category with what the device knows about its usage.
type categoryView struct {
	models.Category
	Apps      []string `json:"apps"`
	Rules     int      `json:"rules"`
	UsedToday int64    `json:"used_today_millis"`
}

var categoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories known to this device",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		childFilter, _ := cmd.Flags().GetString("child")
		today := dayOfEpoch(time.Now())

		var views []categoryView
		err = database.Transaction(cmd.Context(), func(tx *db.Tx) error {
			cats, err := tx.ListCategories()
			if err != nil {
				return err
			}
			for _, c := range cats {
				if childFilter != "" && c.ChildID != childFilter {
					continue
				}
				v := categoryView{Category: c}
				if v.Apps, err = tx.ListCategoryApps(c.ID); err != nil {
					return err
				}
				rules, err := tx.ListRules(c.ID)
				if err != nil {
					return err
				}
				v.Rules = len(rules)
				used, err := tx.ListUsedTimes(c.ID)
				if err != nil {
					return err
				}
				for _, u := range used {
					if u.DayOfEpoch == today && u.StartMinuteOfDay == db.MinuteOfDayStart && u.EndMinuteOfDay == db.MinuteOfDayEnd {
						v.UsedToday += u.UsedMillis
					}
				}
				views = append(views, v)
			}
			return nil
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			return output.JSON(views)
		}
		if len(views) == 0 {
			fmt.Println("No categories")
			return nil
		}
		for _, v := range views {
			line := fmt.Sprintf("%s  %s  %s", output.Title(v.ID), v.Title, output.Subtle(v.ChildID))
			if v.ParentCategoryID != "" {
				line += output.Subtle("  in " + v.ParentCategoryID)
			}
			fmt.Println(line)
			fmt.Printf("    used today %s, %d rules, %d apps", output.FormatMillis(v.UsedToday), v.Rules, len(v.Apps))
			if v.ExtraTimeInMillis > 0 {
				fmt.Printf(", extra %s", output.FormatMillis(v.ExtraTimeInMillis))
			}
			fmt.Println()
		}
		return nil
	},
}

var categoryCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a category for a child",
	Long:  `Creates a category. On a terminal, missing --child or --title are asked for in a form.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		childID, _ := cmd.Flags().GetString("child")
		title, _ := cmd.Flags().GetString("title")
		if childID == "" || title == "" {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return errors.New("--child and --title are required")
			}
			if err := categoryForm(cmd, database, &childID, &title); err != nil {
				return err
			}
		}
		id, _ := cmd.Flags().GetString("id")
		if id == "" {
			id = uuid.NewString()
		}

		auth, err := parentAuth(cmd, database)
		if err != nil {
			return err
		}
		return queue(cmd.Context(), database, &actions.CreateCategory{CategoryID: id, ChildID: childID, Title: strings.TrimSpace(title)}, auth)
	},
}

// categoryForm asks for the owning child and the title.
func categoryForm(cmd *cobra.Command, database *db.DB, childID, title *string) error {
	var users []models.User
	if err := database.Transaction(cmd.Context(), func(tx *db.Tx) error {
		var err error
		users, err = tx.ListUsers()
		return err
	}); err != nil {
		return err
	}
	var options []huh.Option[string]
	for _, u := range users {
		if u.Type == models.UserTypeChild {
			options = append(options, huh.NewOption(u.Name, u.ID))
		}
	}
	if len(options) == 0 {
		return errors.New("no children known to this device (run 'tlsync sync' first?)")
	}

	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Child").
			Options(options...).
			Value(childID),
		huh.NewInput().
			Title("Title").
			Value(title).
			Placeholder("Games").
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("title is required")
				}
				return nil
			}),
	).Title("New Category"))
	return form.WithTheme(huh.ThemeDracula()).Run()
}

var categoryDeleteCmd = &cobra.Command{
	Use:   "delete <category-id>",
	Short: "Delete a category with its subcategories, rules and usage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return queueParent(cmd, &actions.DeleteCategory{CategoryID: args[0]})
	},
}

var categoryRenameCmd = &cobra.Command{
	Use:   "rename <category-id> <title>",
	Short: "Rename a category",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return queueParent(cmd, &actions.UpdateCategoryTitle{CategoryID: args[0], Title: args[1]})
	},
}

var categoryAddAppsCmd = &cobra.Command{
	Use:   "add-apps <category-id> <package>...",
	Short: "Assign apps to a category",
	Long:  `Assigns packages to a category, moving them out of other categories of the same child.`,
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return queueParent(cmd, &actions.AddCategoryApps{CategoryID: args[0], PackageNames: args[1:]})
	},
}

var categoryRemoveAppsCmd = &cobra.Command{
	Use:   "remove-apps <category-id> <package>...",
	Short: "Unassign apps from a category",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return queueParent(cmd, &actions.RemoveCategoryApps{CategoryID: args[0], PackageNames: args[1:]})
	},
}

var categoryExtraCmd = &cobra.Command{
	Use:   "extra-time <category-id>",
	Short: "Grant extra time",
	Long:  `Grants extra time to a category. With --today the extra time expires at the end of the day.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, _ := cmd.Flags().GetDuration("time")
		day := -1
		if today, _ := cmd.Flags().GetBool("today"); today {
			day = dayOfEpoch(time.Now())
		}
		return queueParent(cmd, &actions.IncrementCategoryExtraTime{
			CategoryID:     args[0],
			AddedExtraTime: amount.Milliseconds(),
			ExtraTimeDay:   day,
		})
	},
}

// queueParent queues a parent-authorized command resolved from the command's flags.
func queueParent(cmd *cobra.Command, p actions.Payload) error {
	database, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	auth, err := parentAuth(cmd, database)
	if err != nil {
		output.Error("%v", err)
		return err
	}
	return queue(cmd.Context(), database, p, auth)
}

func init() {
	categoryListCmd.Flags().String("child", "", "only categories of this child")
	categoryCreateCmd.Flags().String("child", "", "child user id")
	categoryCreateCmd.Flags().String("title", "", "category title")
	categoryCreateCmd.Flags().String("id", "", "category id (default random)")
	categoryExtraCmd.Flags().Duration("time", 0, "extra time to grant")
	categoryExtraCmd.Flags().Bool("today", false, "only valid today")

	for _, c := range []*cobra.Command{categoryCreateCmd, categoryDeleteCmd, categoryRenameCmd,
		categoryAddAppsCmd, categoryRemoveAppsCmd, categoryExtraCmd} {
		addParentFlags(c)
		categoryCmd.AddCommand(c)
	}
	categoryCmd.AddCommand(categoryListCmd)
	rootCmd.AddCommand(categoryCmd)
}
