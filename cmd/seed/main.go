package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eldtechnologies/chatrelay/internal/agents"
	"github.com/eldtechnologies/chatrelay/internal/config"
	"github.com/eldtechnologies/chatrelay/internal/store"
)

func main() {
	user := flag.String("user", "", "human participant id")
	name := flag.String("name", "", "display name for -user")
	conversation := flag.String("conversation", "", "conversation id (random if empty)")
	with := flag.String("agents", strings.Join(agents.Names(), ","), "comma separated scripted participants")
	flag.Parse()

	if *user == "" {
		fmt.Fprintln(os.Stderr, "Usage: seed -user <id> [-name <name>] [-conversation <id>] [-agents alex,luna]")
		os.Exit(1)
	}

	cfg := config.Load()
	ctx := context.Background()

	var (
		db  store.DataStore
		err error
	)
	if cfg.DatabaseURL != "" {
		db, err = store.NewPostgresStore(ctx, cfg.DatabaseURL)
	} else {
		if err = os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err == nil {
			db, err = store.NewSQLiteStore(ctx, cfg.SQLitePath)
		}
	}
	exitOnError(err)
	defer db.Close()

	display := *name
	if display == "" {
		display = *user
	}
	_, err = db.CreateUser(ctx, *user, display, false)
	exitOnError(err)

	participants := []string{*user}
	for _, agent := range strings.Split(*with, ",") {
		agent = strings.TrimSpace(strings.ToLower(agent))
		if agent == "" {
			continue
		}
		_, err := db.CreateUser(ctx, agent, strings.ToUpper(agent[:1])+agent[1:], true)
		exitOnError(err)
		participants = append(participants, agent)
	}

	conv, err := db.CreateConversation(ctx, *conversation, participants)
	exitOnError(err)

	fmt.Printf("Conversation: %s\n", conv.ID)
	fmt.Printf("Participants: %s\n", strings.Join(conv.Participants, ", "))
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
