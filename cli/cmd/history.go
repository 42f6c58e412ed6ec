package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ponyo877/roomchat/client/history"
)

var historyLimit int

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history [room]",
	Short: "Browse the local message archive",
	Long: `Lists messages saved to the local archive while the chat view was
open. Without a room argument, lists the rooms that have any history.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		archive, err := history.Open(viper.GetString(historyFileKey))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening archive: %v\n", err)
			return
		}
		defer archive.Close()

		if len(args) == 0 {
			rooms, err := archive.Rooms()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error listing rooms: %v\n", err)
				return
			}
			if len(rooms) == 0 {
				fmt.Println("No archived messages yet")
				return
			}
			for _, room := range rooms {
				fmt.Printf("#%s\n", room)
			}
			return
		}

		messages, err := archive.Recent(args[0], historyLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading history: %v\n", err)
			return
		}
		if len(messages) == 0 {
			fmt.Printf("No archived messages in #%s\n", args[0])
			return
		}
		for _, msg := range messages {
			fmt.Printf("[%s] %s: %s\n",
				msg.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				msg.Sender.Username,
				msg.Content)
		}
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 50, "Maximum number of messages to show")
}
