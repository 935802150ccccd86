package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mmguero-android/timelimit-android-sub001/internal/actions"
	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
	"github.com/mmguero-android/timelimit-android-sub001/internal/output"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var ruleCmd = &cobra.Command{
	Use:     "rule",
	Short:   "Manage time limit rules",
	GroupID: "family",
}

var dayNames = map[string]int{"mo": 0, "tu": 1, "we": 2, "th": 3, "fr": 4, "sa": 5, "su": 6}

// parseDays turns "mo,tu,fr", "weekdays", "weekend" or "all" into a day mask.
func parseDays(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return 0x7f, nil
	case "weekdays":
		return 0x1f, nil
	case "weekend":
		return 0x60, nil
	}
	mask := 0
	for _, part := range strings.Split(s, ",") {
		key := strings.ToLower(strings.TrimSpace(part))
		if len(key) > 2 {
			key = key[:2]
		}
		bit, ok := dayNames[key]
		if !ok {
			return 0, fmt.Errorf("unknown day %q", part)
		}
		mask |= 1 << bit
	}
	return mask, nil
}

// applyRuleFlags overwrites the fields of r whose flags were given, or every
// field when all is set.
func applyRuleFlags(flags *pflag.FlagSet, r *models.TimeLimitRule, all bool) error {
	var err error
	set := func(name string) bool { return all || flags.Changed(name) }
	if set("days") {
		days, _ := flags.GetString("days")
		if r.DayMask, err = parseDays(days); err != nil {
			return err
		}
	}
	if set("max") {
		d, _ := flags.GetDuration("max")
		r.MaximumTimeInMillis = d.Milliseconds()
	}
	if set("from") {
		s, _ := flags.GetString("from")
		if r.StartMinuteOfDay, err = parseMinute(s); err != nil {
			return err
		}
	}
	if set("to") {
		s, _ := flags.GetString("to")
		if r.EndMinuteOfDay, err = parseMinute(s); err != nil {
			return err
		}
	}
	if set("session") {
		d, _ := flags.GetDuration("session")
		r.SessionDurationMillis = d.Milliseconds()
	}
	if set("pause") {
		d, _ := flags.GetDuration("pause")
		r.SessionPauseMillis = d.Milliseconds()
	}
	if set("per-day") {
		r.PerDay, _ = flags.GetBool("per-day")
	}
	if set("extra-usage") {
		r.ApplyToExtraTimeUsage, _ = flags.GetBool("extra-usage")
	}
	return nil
}

func addRuleFlags(cmd *cobra.Command) {
	cmd.Flags().String("days", "all", "days the rule applies to: all, weekdays, weekend or mo,tu,...")
	cmd.Flags().Duration("max", 0, "maximum usage within the window")
	cmd.Flags().String("from", "00:00", "window start")
	cmd.Flags().String("to", "23:59", "window end")
	cmd.Flags().Duration("session", 0, "maximum session duration")
	cmd.Flags().Duration("pause", 0, "pause that ends a session")
	cmd.Flags().Bool("per-day", false, "apply the maximum to each day instead of the sum over the days")
	cmd.Flags().Bool("extra-usage", false, "count usage of extra time against the rule")
}

var ruleListCmd = &cobra.Command{
	Use:   "list <category-id>",
	Short: "List the rules of a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		var rules []models.TimeLimitRule
		if err := database.Transaction(cmd.Context(), func(tx *db.Tx) error {
			rules, err = tx.ListRules(args[0])
			return err
		}); err != nil {
			return err
		}
		if jsonOutput {
			return output.JSON(rules)
		}
		if len(rules) == 0 {
			fmt.Println("No rules")
			return nil
		}
		for _, r := range rules {
			fmt.Printf("%s  %s  %s-%s  max %s",
				output.Title(r.ID), output.FormatDayMask(r.DayMask),
				output.FormatMinuteOfDay(r.StartMinuteOfDay), output.FormatMinuteOfDay(r.EndMinuteOfDay),
				output.FormatMillis(r.MaximumTimeInMillis))
			if r.SessionDurationMillis > 0 {
				fmt.Print(output.Subtle(fmt.Sprintf("  sessions %s / pause %s",
					output.FormatMillis(r.SessionDurationMillis), output.FormatMillis(r.SessionPauseMillis))))
			}
			fmt.Println()
		}
		return nil
	},
}

var ruleAddCmd = &cobra.Command{
	Use:   "add <category-id>",
	Short: "Add a time limit rule to a category",
	Args:  cobra.ExactArgs(1),
	Example: `  tlsync rule add games --max 1h --days weekdays --parent mom
  tlsync rule add games --max 2h --from 08:00 --to 20:00 --session 30m --pause 10m --signed-in`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rule := models.TimeLimitRule{ID: uuid.NewString(), CategoryID: args[0]}
		if err := applyRuleFlags(cmd.Flags(), &rule, true); err != nil {
			return err
		}
		return queueParent(cmd, &actions.CreateTimeLimitRule{Rule: rule})
	},
}

var ruleUpdateCmd = &cobra.Command{
	Use:   "update <rule-id>",
	Short: "Change a rule",
	Long:  `Changes the given fields of a rule. Fields whose flags are not passed keep their value.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openStore()
		if err != nil {
			return err
		}
		var existing *models.TimeLimitRule
		err = database.Transaction(cmd.Context(), func(tx *db.Tx) error {
			existing, err = tx.GetRule(args[0])
			return err
		})
		database.Close()
		if err != nil {
			return err
		}
		if existing == nil {
			return errors.New("rule not found: " + args[0])
		}
		if err := applyRuleFlags(cmd.Flags(), existing, false); err != nil {
			return err
		}
		return queueParent(cmd, &actions.UpdateTimeLimitRule{Rule: *existing})
	},
}

var ruleDeleteCmd = &cobra.Command{
	Use:   "delete <rule-id>",
	Short: "Delete a rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return queueParent(cmd, &actions.DeleteTimeLimitRule{RuleID: args[0]})
	},
}

func init() {
	addRuleFlags(ruleAddCmd)
	addRuleFlags(ruleUpdateCmd)
	for _, c := range []*cobra.Command{ruleAddCmd, ruleUpdateCmd, ruleDeleteCmd} {
		addParentFlags(c)
		ruleCmd.AddCommand(c)
	}
	ruleCmd.AddCommand(ruleListCmd)
	rootCmd.AddCommand(ruleCmd)
}
