package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mmguero-android/timelimit-android-sub001/internal/actions"
	tlsync "github.com/mmguero-android/timelimit-android-sub001/internal/sync"
	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:     "usage",
	Short:   "Record device usage",
	GroupID: "family",
}

var usageAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Count used time for a category",
	Long: `Counts used time for a category on a day. Consecutive unsent counts for the
same category and day are folded into one log entry. With --slot the command
also counts the time in the given windows of the day.`,
	Example: `  tlsync usage add --category games --time 5m
  tlsync usage add --category games --time 90s --slot 16:00-18:00`,
	RunE: func(cmd *cobra.Command, args []string) error {
		categoryID, _ := cmd.Flags().GetString("category")
		if categoryID == "" {
			return errors.New("--category is required")
		}
		used, _ := cmd.Flags().GetDuration("time")
		extra, _ := cmd.Flags().GetDuration("extra")
		day, _ := cmd.Flags().GetInt("day")
		if day < 0 {
			day = dayOfEpoch(time.Now())
		}
		slotArgs, _ := cmd.Flags().GetStringSlice("slot")

		var p actions.Payload = &actions.AddUsedTime{
			CategoryID:          categoryID,
			DayOfEpoch:          day,
			TimeToAdd:           used.Milliseconds(),
			ExtraTimeToSubtract: extra.Milliseconds(),
		}
		if len(slotArgs) > 0 {
			slots := make([]actions.CountingSlot, 0, len(slotArgs))
			for _, s := range slotArgs {
				slot, err := parseSlot(s)
				if err != nil {
					return err
				}
				slots = append(slots, slot)
			}
			p = &actions.AddUsedTimeV2{
				DayOfEpoch:       day,
				TrustedTimestamp: time.Now().UnixMilli(),
				Items: []actions.AddUsedTimeItem{{
					CategoryID:              categoryID,
					TimeToAdd:               used.Milliseconds(),
					ExtraTimeToSubtract:     extra.Milliseconds(),
					AdditionalCountingSlots: slots,
				}},
			}
		}

		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()
		return queue(cmd.Context(), database, p, tlsync.DeviceAuth())
	},
}

var deviceStatusCmd = &cobra.Command{
	Use:   "device-status",
	Short: "Report the app version and reboot state of this device",
	RunE: func(cmd *cobra.Command, args []string) error {
		appVersion, _ := cmd.Flags().GetInt("app-version")
		rebooted, _ := cmd.Flags().GetBool("rebooted")

		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()
		return queue(cmd.Context(), database, &actions.UpdateDeviceStatus{AppVersion: appVersion, DidReboot: rebooted}, tlsync.DeviceAuth())
	},
}

// dayOfEpoch counts days since 1970-01-01 in t's calendar.
func dayOfEpoch(t time.Time) int {
	y, m, d := t.Date()
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// parseMinute accepts "HH:MM" or a plain minute of the day.
func parseMinute(s string) (int, error) {
	s = strings.TrimSpace(s)
	if h, m, ok := strings.Cut(s, ":"); ok {
		hh, err := strconv.Atoi(h)
		if err != nil {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		mm, err := strconv.Atoi(m)
		if err != nil || mm < 0 || mm > 59 {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		s = strconv.Itoa(hh*60 + mm)
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 1439 {
		return 0, fmt.Errorf("invalid minute of day %q", s)
	}
	return n, nil
}

// parseSlot parses "start-end" where both ends are minutes of the day.
func parseSlot(s string) (actions.CountingSlot, error) {
	start, end, ok := strings.Cut(s, "-")
	if !ok {
		return actions.CountingSlot{}, fmt.Errorf("invalid slot %q: want start-end", s)
	}
	a, err := parseMinute(start)
	if err != nil {
		return actions.CountingSlot{}, err
	}
	b, err := parseMinute(end)
	if err != nil {
		return actions.CountingSlot{}, err
	}
	if b < a {
		return actions.CountingSlot{}, fmt.Errorf("invalid slot %q: end before start", s)
	}
	return actions.CountingSlot{Start: a, End: b}, nil
}

func init() {
	usageAddCmd.Flags().String("category", "", "category id")
	usageAddCmd.Flags().Duration("time", 0, "used time to add")
	usageAddCmd.Flags().Duration("extra", 0, "extra time consumed")
	usageAddCmd.Flags().Int("day", -1, "day of epoch (default today)")
	usageAddCmd.Flags().StringSlice("slot", nil, "additional counting window, e.g. 16:00-18:00")
	deviceStatusCmd.Flags().Int("app-version", 0, "installed app version")
	deviceStatusCmd.Flags().Bool("rebooted", false, "the device rebooted since the last report")

	usageCmd.AddCommand(usageAddCmd)
	usageCmd.AddCommand(deviceStatusCmd)
	rootCmd.AddCommand(usageCmd)
}
