package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"staylink/internal/api"
	"staylink/internal/chat"
	"staylink/internal/models"
)

var (
	historyPages       int
	startAccommodation int64
)

// tokenWait bounds how long chat open waits for a session before giving up.
const tokenWait = 3 * time.Second

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk with hosts and guests",
}

var chatRoomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List chat rooms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadRooms(cmd.Context()); err != nil {
			return err
		}
		rooms := app.chat.Rooms()
		return render(rooms, func(w io.Writer) {
			if len(rooms) == 0 {
				fmt.Fprintln(w, "No conversations yet.")
				return
			}
			fmt.Fprintln(w, "ROOM\tWITH\tLAST MESSAGE\tUNREAD")
			for _, r := range rooms {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", r.RoomID, r.CounterpartName, truncate(r.LastMessage, 40), r.UnreadCount)
			}
		})
	},
}

var chatStartCmd = &cobra.Command{
	Use:   "start <counterpart-id>",
	Short: "Open a conversation with a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room, err := app.client.StartChat(cmd.Context(), models.StartChatRequest{
			CounterpartID:   args[0],
			AccommodationID: startAccommodation,
		})
		if err != nil {
			return err
		}
		return render(room, func(w io.Writer) {
			fmt.Fprintf(w, "Room %s with %s\n", room.RoomID, room.CounterpartName)
		})
	},
}

var chatHistoryCmd = &cobra.Command{
	Use:   "history <room-id>",
	Short: "Print a room's message history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID := args[0]
		for i := 0; i < historyPages && app.chat.HasMore(roomID); i++ {
			if _, err := app.chat.LoadMoreMessages(cmd.Context(), roomID); err != nil {
				return err
			}
		}
		msgs := app.chat.Messages(roomID)
		return render(msgs, func(w io.Writer) {
			printDays(w, chat.GroupByDay(msgs, time.Local))
		})
	},
}

var chatOpenCmd = &cobra.Command{
	Use:   "open <room-id>",
	Short: "Follow a room live and send lines from stdin",
	Long: `Follow a room in real time.

Every line typed is sent to the room. Messages for other rooms are counted
as unread and reported when they arrive. Press Ctrl-C to leave.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		roomID := args[0]

		if _, ok := app.session.WaitForToken(ctx, tokenWait); !ok {
			app.hint.show()
			return api.ErrLoginRequired
		}
		if err := loadRooms(ctx); err != nil {
			return err
		}
		if err := app.channel.Connect(ctx); err != nil {
			return err
		}
		waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := app.channel.WaitConnected(waitCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("chat connection: %w", err)
		}

		stream, err := app.channel.SetActiveRoom(roomID)
		if err != nil {
			return err
		}
		defer app.channel.LeaveRoom()

		if _, err := app.chat.LoadMoreMessages(ctx, roomID); err != nil {
			return err
		}
		printDays(os.Stdout, app.chat.GroupByDay(roomID, time.Local))
		if err := app.client.MarkRoomRead(ctx, roomID); err != nil {
			app.logger.Warn().Err(err).Str("room", roomID).Msg("mark room read")
		}

		unsubscribe := app.chat.Subscribe(func(ev chat.Event) {
			if ev.Kind == chat.MessageAdded && ev.RoomID != roomID && ev.Message != nil {
				fmt.Fprintf(os.Stderr, "[%s] new message from %s\n", ev.RoomID, ev.Message.SenderName)
			}
		})
		defer unsubscribe()

		lines := make(chan string)
		go func() {
			defer close(lines)
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				lines <- scanner.Text()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-stream:
				if !ok {
					return nil
				}
				printMessage(os.Stdout, msg)
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if strings.TrimSpace(line) == "" {
					continue
				}
				if err := app.channel.SendMessage(roomID, line); err != nil {
					fmt.Fprintf(os.Stderr, "not sent: %v\n", err)
				}
			}
		}
	},
}

func loadRooms(ctx context.Context) error {
	rooms, err := app.client.ListChatRooms(ctx)
	if err != nil {
		return err
	}
	for _, r := range rooms {
		app.chat.AddRoom(r)
	}
	return nil
}

func printDays(w io.Writer, days []chat.DayGroup) {
	for _, d := range days {
		fmt.Fprintf(w, "--- %s ---\n", d.Day.Format("2006-01-02 (Mon)"))
		for _, m := range d.Messages {
			printMessage(w, m)
		}
	}
}

func printMessage(w io.Writer, m models.ChatMessage) {
	who := m.SenderName
	if m.IsMine {
		who = "me"
	}
	fmt.Fprintf(w, "%s %s: %s\n", m.Timestamp.Local().Format("15:04"), who, m.Content)
}

func init() {
	chatHistoryCmd.Flags().IntVar(&historyPages, "pages", 1, "Number of history pages to load")
	chatStartCmd.Flags().Int64Var(&startAccommodation, "accommodation", 0, "Accommodation the conversation is about")

	chatCmd.AddCommand(chatRoomsCmd, chatStartCmd, chatHistoryCmd, chatOpenCmd)
	rootCmd.AddCommand(chatCmd)
}
