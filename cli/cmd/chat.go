package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ponyo877/roomchat/client/domain"
	"github.com/ponyo877/roomchat/client/history"
	"github.com/ponyo877/roomchat/client/realtime"
	"github.com/ponyo877/roomchat/client/room"
	"github.com/ponyo877/roomchat/client/typing"
)

const (
	reconnectBase = time.Second
	reconnectCap  = 15 * time.Second
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [room]",
	Short: "Open the chat room view",
	Long: `Opens a full-screen chat view: messages in the middle, rooms and
online users on the left, a typing indicator above the input line.

Enter sends, "/join <room>" switches rooms, Ctrl+C leaves.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sess := sessionStore.Current()
		if !sess.IsValid() {
			fmt.Fprintln(os.Stderr, "Not logged in. Run 'roomchat login <email>' first.")
			os.Exit(1)
		}
		if exp, ok := sessionStore.ExpiresAt(); ok && time.Now().After(exp) {
			fmt.Fprintln(os.Stderr, "Your session has expired. Run 'roomchat login <email>' again.")
			os.Exit(1)
		}

		initialRoom := configuredRooms()[0]
		if len(args) == 1 {
			initialRoom = args[0]
		}

		wsURL, err := websocketURL(serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Bad server URL: %v\n", err)
			os.Exit(1)
		}

		archive, err := history.Open(viper.GetString(historyFileKey))
		if err != nil {
			// The chat view works without the archive.
			fmt.Fprintf(os.Stderr, "Warning: message archive unavailable: %v\n", err)
			archive = nil
		} else {
			defer archive.Close()
		}

		if err := runChatUI(wsURL, sess.Token, sess.User.Username, initialRoom, archive); err != nil {
			fmt.Fprintf(os.Stderr, "Chat UI error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

// websocketURL derives the socket endpoint from the service base URL.
func websocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	return u.String(), nil
}

func runChatUI(wsURL, token, username, initialRoom string, archive *history.Archive) error {
	app := tview.NewApplication()

	messageView := tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true).
		SetScrollable(true).
		ScrollToEnd()
	messageView.SetBorder(true)
	messageView.SetChangedFunc(func() {
		app.Draw()
	})

	typingView := tview.NewTextView().SetTextColor(tcell.ColorGray)

	inputField := tview.NewInputField().
		SetLabel(username + " ❯❯ ").
		SetFieldWidth(0).
		SetAcceptanceFunc(tview.InputFieldMaxLength(domain.MaxContentLength))

	roomList := tview.NewList().ShowSecondaryText(false)
	roomList.SetBorder(true).SetTitle("Rooms")

	userView := tview.NewTextView()
	userView.SetBorder(true).SetTitle("Online")

	sidebar := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(roomList, 0, 1, false).
		AddItem(userView, 0, 1, false)

	main := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messageView, 0, 1, false).
		AddItem(typingView, 1, 0, false).
		AddItem(inputField, 1, 0, true)

	flex := tview.NewFlex().
		AddItem(sidebar, 24, 0, false).
		AddItem(main, 0, 1, true)

	app.SetRoot(flex, true).SetFocus(inputField)

	// Notices and channel errors land in the message pane, not stderr,
	// so they do not corrupt the terminal while the UI owns it.
	uiLog := log.New(messageView, "", log.Ltime)

	st := room.NewState(uiLog)
	deb := typing.NewDebouncer(typing.DefaultQuietPeriod, st.StartTyping, st.StopTyping)

	render := func() {
		view := st.View()
		messageView.SetTitle(fmt.Sprintf(" #%s (%s, %d online) ", view.Room, view.Phase, len(view.Online)))
		messageView.Clear()
		for _, msg := range view.Messages {
			fmt.Fprintf(messageView, "[white][%s] [blue]%s[white]: %s\n",
				msg.CreatedAt.Local().Format("15:04:05"),
				tview.Escape(msg.Sender.Username),
				tview.Escape(msg.Content))
		}
		messageView.ScrollToEnd()
		typingView.SetText(typingLabel(view.Typing))
		userView.SetText(tview.Escape(strings.Join(view.Online, "\n")))
	}
	st.OnChange(func() {
		// QueueUpdateDraw must not be called from the event loop itself.
		go app.QueueUpdateDraw(render)
	})

	knownRooms := map[string]bool{}
	addRoom := func(name string) {
		name = domain.NormalizeRoom(name)
		if name == "" || knownRooms[name] {
			return
		}
		knownRooms[name] = true
		roomList.AddItem(name, "", 0, func() {
			if err := st.ChangeRoom(name); err != nil {
				uiLog.Printf("switching room: %v", err)
			}
			app.SetFocus(inputField)
		})
	}
	for _, name := range configuredRooms() {
		addRoom(name)
	}
	addRoom(initialRoom)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connection loop: dial, bind, join; on teardown redial with capped
	// backoff and re-join so the fresh snapshot resyncs the room.
	go func() {
		backoff := reconnectBase
		for {
			ch, err := realtime.Dial(ctx, wsURL, token, uiLog)
			if err != nil {
				uiLog.Printf("[red]connect failed: %v (retrying in %s)", err, backoff)
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				backoff = min(backoff*2, reconnectCap)
				continue
			}
			backoff = reconnectBase

			st.Bind(ch)
			if archive != nil {
				bindArchive(ch, archive, uiLog)
			}
			if st.Room() == "" {
				if err := st.ChangeRoom(initialRoom); err != nil {
					uiLog.Printf("joining %s: %v", initialRoom, err)
				}
			} else {
				st.Rejoin()
			}

			select {
			case <-ctx.Done():
				st.Leave()
				ch.Close()
				return
			case <-ch.Done():
				st.SetEmitter(nil)
				uiLog.Printf("[red]connection lost, reconnecting...")
			}
		}
	}()

	inputField.SetChangedFunc(deb.Input)
	inputField.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := inputField.GetText()
		if name, ok := strings.CutPrefix(strings.TrimSpace(text), "/join "); ok {
			addRoom(name)
			if err := st.ChangeRoom(name); err != nil {
				uiLog.Printf("joining %s: %v", name, err)
			}
		} else if err := st.SendMessage(text); err != nil {
			uiLog.Printf("[red]%v", err)
		}
		deb.Submit()
		inputField.SetText("")
	})

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC {
			cancel()
			deb.Close()
			app.Stop()
			return nil
		}
		return event
	})

	err := app.Run()
	cancel()
	deb.Close()
	return err
}

func typingLabel(users []string) string {
	switch len(users) {
	case 0:
		return ""
	case 1:
		return users[0] + " is typing..."
	default:
		return fmt.Sprintf("%d people are typing...", len(users))
	}
}

// bindArchive mirrors every confirmed message into the local archive.
func bindArchive(ch *realtime.Channel, archive *history.Archive, uiLog *log.Logger) {
	ch.Subscribe(domain.EventNewMessage, func(data json.RawMessage) {
		var msg domain.Message
		if json.Unmarshal(data, &msg) != nil {
			return
		}
		if err := archive.Append(msg); err != nil {
			uiLog.Printf("archiving: %v", err)
		}
	})
	ch.Subscribe(domain.EventRoomMessages, func(data json.RawMessage) {
		var snap domain.Snapshot
		if json.Unmarshal(data, &snap) != nil {
			return
		}
		for _, msg := range snap.Messages {
			if err := archive.Append(msg); err != nil {
				uiLog.Printf("archiving: %v", err)
				return
			}
		}
	})
}
