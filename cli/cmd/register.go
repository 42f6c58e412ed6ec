package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ponyo877/roomchat/client/session"
)

// registerCmd represents the register command
var registerCmd = &cobra.Command{
	Use:   "register <username> <email>",
	Short: "Create an account and log in",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		username, email := args[0], args[1]

		password, err := readPassword("Password: ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading password: %v\n", err)
			return
		}
		confirm, err := readPassword("Confirm password: ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading password: %v\n", err)
			return
		}
		if password != confirm {
			fmt.Fprintln(os.Stderr, "Passwords do not match")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		sess, err := sessionStore.Register(ctx, username, email, password)
		if err != nil {
			var authErr *session.AuthError
			if errors.As(err, &authErr) {
				fmt.Fprintln(os.Stderr, authErr.Message)
				return
			}
			fmt.Fprintf(os.Stderr, "Registration failed: %v\n", err)
			return
		}
		fmt.Printf("Welcome, %s! You are now logged in.\n", sess.User.Username)
	},
}

func init() {
	rootCmd.AddCommand(registerCmd)
}
