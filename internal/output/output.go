// Package output provides styled terminal output helpers (success, error,
// warning, pending log entries, durations) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mmguero-android/timelimit-android-sub001/internal/actions"
	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	kindStyles   = map[actions.Kind]lipgloss.Style{
		actions.KindDeviceAutomatic:  lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		actions.KindParentAuthorized: lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
		actions.KindChildAuthorized:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
	userTypeStyles = map[models.UserType]lipgloss.Style{
		models.UserTypeParent: lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
		models.UserTypeChild:  lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
	}
)

// Success prints a success message
func Success(format string, args ...any) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...any) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...any) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

// JSON outputs data as JSON
func JSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound       = "not_found"
	ErrCodeInvalidInput   = "invalid_input"
	ErrCodeDatabaseError  = "database_error"
	ErrCodeNotLoggedIn    = "not_logged_in"
	ErrCodeWrongPassword  = "wrong_password"
	ErrCodeSyncFailed     = "sync_failed"
	ErrCodeNeedsReauth    = "needs_reauth"
	ErrCodeDeviceRemoved  = "device_removed"
	ErrCodeServerRejected = "server_rejected"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	data, _ := json.Marshal(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
	fmt.Println(string(data))
}

// FormatKind formats a command kind with color
func FormatKind(k actions.Kind) string {
	style, ok := kindStyles[k]
	if !ok {
		return string(k)
	}
	return style.Render(fmt.Sprintf("[%s]", k))
}

// FormatUserType formats a user type with color
func FormatUserType(t models.UserType) string {
	style, ok := userTypeStyles[t]
	if !ok {
		return string(t)
	}
	return style.Render(string(t))
}

// FormatPending formats one action log entry on a single line.
// e.g., "#12  [device_automatic]  ADD_USED_TIME  frozen"
func FormatPending(a db.PendingAction) string {
	parts := []string{
		titleStyle.Render(fmt.Sprintf("#%d", a.SequenceNumber)),
		FormatKind(a.Kind),
		string(a.Type),
	}
	if a.ActorID != "" {
		parts = append(parts, subtleStyle.Render("by "+a.ActorID))
	}
	if a.FrozenForUpload {
		parts = append(parts, warningStyle.Render("frozen"))
	}
	return strings.Join(parts, "  ")
}

// FormatMillis renders a millisecond duration the way limits are shown,
// e.g. "1h 05m", "12m 30s", "45s". Sub-second amounts render as "0s".
func FormatMillis(ms int64) string {
	if ms < 0 {
		return "-" + FormatMillis(-ms)
	}
	d := time.Duration(ms) * time.Millisecond
	h := int64(d / time.Hour)
	m := int64(d % time.Hour / time.Minute)
	s := int64(d % time.Minute / time.Second)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// FormatMinuteOfDay renders a minute of the day as "HH:MM".
func FormatMinuteOfDay(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// FormatDayMask lists the days a rule applies to, Monday first.
func FormatDayMask(mask int) string {
	days := []string{"Mo", "Tu", "We", "Th", "Fr", "Sa", "Su"}
	if mask&0x7f == 0x7f {
		return "every day"
	}
	var out []string
	for i, d := range days {
		if mask&(1<<i) != 0 {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return "never"
	}
	return strings.Join(out, ",")
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		return t.Format("2006-01-02")
	}
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nPENDING:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// Subtle renders s in the dimmed style.
func Subtle(s string) string {
	return subtleStyle.Render(s)
}

// Title renders s in bold.
func Title(s string) string {
	return titleStyle.Render(s)
}

// IndentString indents each line in a string by the specified number of spaces
func IndentString(s string, spaces int) string {
	if s == "" {
		return ""
	}
	indent := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}

// BulletList formats items as a bulleted list with optional indentation
func BulletList(items []string, indent int) []string {
	prefix := strings.Repeat(" ", indent)
	result := make([]string, len(items))
	for i, item := range items {
		result[i] = prefix + "- " + item
	}
	return result
}
