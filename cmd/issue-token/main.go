package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/nurpe/marketplace/internal/auth"
	"github.com/nurpe/marketplace/internal/config"
)

// issue-token prints a bearer token for a profile, signed with
// JWT_ACCESS_SECRET from the service configuration.
func main() {
	profileID := flag.Uint("profile", 0, "profile id the token speaks for")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *profileID == 0 {
		fmt.Fprintln(os.Stderr, "-profile is required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	token, err := auth.NewParser(cfg.Auth.AccessSecret).Issue(*profileID, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
