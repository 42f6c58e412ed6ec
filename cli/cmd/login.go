package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ponyo877/roomchat/client/session"
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Log in with an existing account",
	Long: `Authenticates against the chat service and saves the session so
later commands (and the next run) pick it up automatically.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		email := args[0]
		password, err := readPassword("Password: ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading password: %v\n", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		sess, err := sessionStore.Login(ctx, email, password)
		if err != nil {
			var authErr *session.AuthError
			if errors.As(err, &authErr) {
				fmt.Fprintln(os.Stderr, authErr.Message)
				return
			}
			fmt.Fprintf(os.Stderr, "Login failed: %v\n", err)
			return
		}
		fmt.Printf("Logged in as %s\n", sess.User.Username)
	},
}

func readPassword(label string) (string, error) {
	fmt.Print(label)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func init() {
	rootCmd.AddCommand(loginCmd)
}
