package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mmguero-android/timelimit-android-sub001/internal/crypto"
	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
	tlsync "github.com/mmguero-android/timelimit-android-sub001/internal/sync"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// errWrongPassword is returned when a password does not match the stored hash.
var errWrongPassword = errors.New("wrong password")

const passwordEnv = "TLSYNC_PASSWORD"

// readPassword returns the --password flag, $TLSYNC_PASSWORD, a masked huh
// prompt on a terminal, or the first line of stdin, in that order.
func readPassword(cmd *cobra.Command, title string) (string, error) {
	if pw, _ := cmd.Flags().GetString("password"); pw != "" {
		return pw, nil
	}
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	var pw string
	err := huh.NewInput().
		Title(title).
		EchoMode(huh.EchoModePassword).
		Value(&pw).
		Validate(func(s string) error {
			if s == "" {
				return errors.New("password required")
			}
			return nil
		}).
		Run()
	if err != nil {
		return "", fmt.Errorf("password prompt: %w", err)
	}
	return pw, nil
}

// userAuth checks password against the locally known user and derives the
// second password hash used to attribute commands.
func userAuth(ctx context.Context, database *db.DB, userID string, want models.UserType, password string) (tlsync.Auth, error) {
	var user *models.User
	err := database.Transaction(ctx, func(tx *db.Tx) error {
		var err error
		user, err = tx.GetUser(userID)
		return err
	})
	if err != nil {
		return tlsync.Auth{}, fmt.Errorf("read user: %w", err)
	}
	if user == nil || user.Type != want {
		return tlsync.Auth{}, fmt.Errorf("no %s %q on this device (run 'tlsync sync' first?)", want, userID)
	}

	ok, err := crypto.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return tlsync.Auth{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return tlsync.Auth{}, errWrongPassword
	}
	second, err := crypto.SecondPasswordHash(password, user.SecondPasswordSalt)
	if err != nil {
		return tlsync.Auth{}, err
	}
	if want == models.UserTypeChild {
		return tlsync.ChildPassword(userID, second), nil
	}
	return tlsync.ParentPassword(userID, second), nil
}

// parentAuth resolves the authentication of a parent-authorized command from
// the --parent, --password and --signed-in flags.
func parentAuth(cmd *cobra.Command, database *db.DB) (tlsync.Auth, error) {
	if signedIn, _ := cmd.Flags().GetBool("signed-in"); signedIn {
		return tlsync.ParentDevice(), nil
	}
	parentID, _ := cmd.Flags().GetString("parent")
	if parentID == "" {
		return tlsync.Auth{}, errors.New("--parent or --signed-in is required")
	}
	pw, err := readPassword(cmd, fmt.Sprintf("Password for %s", parentID))
	if err != nil {
		return tlsync.Auth{}, err
	}
	return userAuth(cmd.Context(), database, parentID, models.UserTypeParent, pw)
}

// addParentFlags registers the flags parentAuth reads.
func addParentFlags(cmd *cobra.Command) {
	cmd.Flags().String("parent", "", "parent user id authorizing the change")
	cmd.Flags().String("password", "", "parent password (prompted when omitted)")
	cmd.Flags().Bool("signed-in", false, "authorize as the parent kept signed in at this device")
}
