// Command issuetoken prints a bearer token for the inventory API, signed
// with AUTH_SECRET. It is meant for operators and local development.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"sembako32/backend/internal/config"
	"sembako32/backend/internal/httpapi"
)

func main() {
	_ = godotenv.Load()

	username := flag.String("user", "", "username carried as the token subject")
	role := flag.String("role", "sales", "role claim (admin or sales)")
	flag.Parse()

	cfg := config.Load()
	if cfg.AuthSecret == "" {
		log.Fatal("AUTH_SECRET is not set")
	}

	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL())
	token, expiresAt, err := auth.IssueToken(*username, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		os.Exit(2)
	}
	fmt.Printf("%s\n# expires %s\n", token, expiresAt.Format("2006-01-02T15:04:05Z07:00"))
}
