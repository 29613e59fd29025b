package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/eldtechnologies/chatrelay/internal/config"
	"github.com/eldtechnologies/chatrelay/internal/crypto"
)

func main() {
	subject := flag.String("user", "", "identity to sign for")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	secret := flag.String("secret", "", "signing secret (defaults to JWT_SECRET)")
	flag.Parse()

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "Usage: token -user <id> [-ttl 24h] [-secret <secret>]")
		os.Exit(1)
	}

	key := *secret
	if key == "" {
		key = config.Load().JWTSecret
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "no secret: set JWT_SECRET or pass -secret")
		os.Exit(1)
	}

	token, err := crypto.IssueToken([]byte(key), *subject, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
