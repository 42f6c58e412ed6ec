package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	prompt "github.com/c-bata/go-prompt"
	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ponyo877/roomchat/client/session"
)

var (
	cfgFile      string
	serverURL    string
	sessionStore *session.Store
	logger       = log.New(os.Stderr, "", log.LstdFlags)
)

const (
	serverURLKey   = "server_url"
	roomsKey       = "rooms"
	historyFileKey = "history_file"
)

var defaultRooms = []string{"general", "random", "tech", "gaming", "music"}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "roomchat",
	Short: "A terminal client for the roomchat service",
	Long: `roomchat is a terminal client for a socket-based chat service:
log in, join rooms, watch who is online and who is typing, and keep a
local archive of everything you saw.

Run without arguments for an interactive shell with completion.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		sessionStore = session.NewStore(viper.GetViper(), serverURL, logger)
		sessionStore.Restore()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// one-shot
	if len(os.Args) > 1 {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}

	// REPL
	fmt.Println("entering interactive mode, type 'exit' to quit")
	p := prompt.New(replExecutor, replCompleter,
		prompt.OptionPrefix("❯❯❯ "),
		prompt.OptionTitle("roomchat"),
	)
	p.Run()
}

func replExecutor(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if line == "exit" || line == "quit" {
		os.Exit(0)
	}
	args, err := shellwords.Parse(line)
	if err != nil {
		fmt.Fprintln(os.Stderr, "parse error:", err)
		return
	}
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}

func replCompleter(d prompt.Document) []prompt.Suggest {
	words := strings.Fields(d.TextBeforeCursor())
	// completing a room argument for chat/history
	if len(words) >= 1 && (words[0] == "chat" || words[0] == "history") {
		var suggestions []prompt.Suggest
		for _, room := range configuredRooms() {
			suggestions = append(suggestions, prompt.Suggest{Text: room})
		}
		return prompt.FilterHasPrefix(suggestions, d.GetWordBeforeCursor(), true)
	}
	suggestions := []prompt.Suggest{
		{Text: "login", Description: "Log in with an existing account"},
		{Text: "register", Description: "Create an account and log in"},
		{Text: "logout", Description: "Log out and clear the saved session"},
		{Text: "whoami", Description: "Show the active session"},
		{Text: "chat", Description: "Open the chat room view"},
		{Text: "history", Description: "Browse the local message archive"},
		{Text: "exit", Description: "Leave the shell"},
	}
	return prompt.FilterHasPrefix(suggestions, d.GetWordBeforeCursor(), true)
}

func configuredRooms() []string {
	rooms := viper.GetStringSlice(roomsKey)
	if len(rooms) == 0 {
		rooms = defaultRooms
	}
	return rooms
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.roomchat.yaml)")
	rootCmd.PersistentFlags().String("server", "http://localhost:5000", "Base URL of the chat service")

	viper.BindPFlag(serverURLKey, rootCmd.PersistentFlags().Lookup("server"))
	viper.SetDefault(serverURLKey, "http://localhost:5000")
	viper.SetDefault(roomsKey, defaultRooms)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	home, err := os.UserHomeDir()
	cobra.CheckErr(err)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigFile(filepath.Join(home, ".roomchat.yaml"))
	}
	viper.SetDefault(historyFileKey, filepath.Join(home, ".roomchat.db"))

	viper.AutomaticEnv() // read in environment variables that match

	if err := viper.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintln(os.Stderr, "Error reading config file:", err)
		}
	}

	serverURL = viper.GetString(serverURLKey)
}
