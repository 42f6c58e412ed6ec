package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// whoamiCmd represents the whoami command
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the active session",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		sess := sessionStore.Current()
		if !sess.IsValid() {
			fmt.Println("Not logged in")
			return
		}
		fmt.Printf("Logged in as %s\n", sess)
		if exp, ok := sessionStore.ExpiresAt(); ok {
			if time.Now().After(exp) {
				fmt.Printf("Token expired %s — log in again\n", exp.Format(time.RFC1123))
			} else {
				fmt.Printf("Token valid until %s\n", exp.Format(time.RFC1123))
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
