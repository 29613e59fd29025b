// chatrelay CLI - command line client for the chat relay
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrelay/clients/go/chat"
	"github.com/eldtechnologies/chatrelay/internal/protocol"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("CHATRELAY_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	token := os.Getenv("CHATRELAY_TOKEN")
	user := os.Getenv("CHATRELAY_USER")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := chat.NewAPI(baseURL, token, user)
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := api.Health(ctx)
		exitOnError(err)
		printJSON(resp)

	case "register":
		need(3, "register <name>")
		resp, err := api.Register(ctx, os.Args[2])
		exitOnError(err)
		fmt.Printf("Registered as: %s (%s)\n", resp.ID, resp.Name)

	case "open":
		need(4, "open <conversation_id> <participant>...")
		conv, err := api.CreateConversation(ctx, os.Args[2], os.Args[3:]...)
		exitOnError(err)
		printJSON(conv)

	case "history":
		need(3, "history <conversation_id>")
		h, err := api.History(ctx, os.Args[2], 50)
		exitOnError(err)
		for _, m := range h.Messages {
			fmt.Printf("[%s] %s: %s (%s)\n", m.CreatedAt.Local().Format("15:04:05"), m.SenderID, m.Content, m.Status)
		}

	case "unread":
		n, err := api.Unread(ctx)
		exitOnError(err)
		fmt.Println(n)

	case "presence":
		need(3, "presence <user_id>")
		p, err := api.Presence(ctx, os.Args[2])
		exitOnError(err)
		printJSON(p)

	case "chat":
		need(3, "chat <conversation_id>")
		if user == "" {
			exitOnError(fmt.Errorf("CHATRELAY_USER is required"))
		}
		exitOnError(runChat(ctx, baseURL, token, user, os.Args[2]))

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// runChat joins a conversation and relays stdin lines as messages until
// EOF or interrupt. Incoming messages are acknowledged automatically.
func runChat(ctx context.Context, baseURL, token, user, conversationID string) error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(zerolog.WarnLevel).With().Timestamp().Logger()

	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
	c, err := chat.Dial(ctx, chat.Options{
		URL:          wsURL,
		Token:        token,
		UserID:       user,
		UserName:     user,
		AutoAck:      true,
		StatusBuffer: -1,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Join(conversationID); err != nil {
		return err
	}
	fmt.Printf("joined %s as %s; type to chat, Ctrl-D to quit\n", conversationID, user)

	go printEvents(c, user)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			return fmt.Errorf("connection closed")
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if _, err := c.Send(conversationID, line); err != nil {
				fmt.Fprintln(os.Stderr, "send failed:", err)
			}
		}
	}
}

func printEvents(c *chat.Client, self string) {
	for ev := range c.Events() {
		switch e := ev.(type) {
		case protocol.MessageNew:
			if e.SenderID != self {
				fmt.Printf("%s: %s\n", e.SenderID, e.Message.Content)
			}
		case protocol.MessageSent:
			fmt.Printf("  ✓ sent %s\n", e.MessageID)
		case protocol.MessageFailed:
			fmt.Printf("  ✗ failed: %s\n", e.Error)
		case protocol.MessageStatus:
			fmt.Printf("  %s %s\n", e.Status, strings.Join(e.MessageIDs, ","))
		case protocol.TypingUser:
			if e.IsTyping {
				fmt.Printf("  %s is typing...\n", e.UserID)
			}
		case protocol.UserStatus:
			fmt.Printf("  %s is %s\n", e.UserID, e.Status)
		}
	}
}

func need(n int, usageLine string) {
	if len(os.Args) < n {
		fmt.Fprintln(os.Stderr, "Usage: chatrelay "+usageLine)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`chatrelay CLI - chat relay client

Usage: chatrelay <command> [options]

Commands:
  register <name>                      Register the current user
  open <conversation> <participant>... Create a conversation
  chat <conversation>                  Join and chat interactively
  history <conversation>               Show latest messages
  unread                               Show unread count
  presence <user_id>                   Show a user's presence
  health                               Check server health

Environment:
  CHATRELAY_URL    Server URL (default: http://localhost:8080)
  CHATRELAY_USER   Your user id
  CHATRELAY_TOKEN  Signed token (see cmd/token); omit against a development server`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
