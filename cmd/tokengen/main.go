// Command tokengen issues a bearer token for the extraction API.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/facturaIA/tax-extraction-service/internal/auth"
)

func main() {
	subject := flag.String("sub", "cli", "token subject")
	tenant := flag.String("tenant", "", "tenant the token is scoped to (required)")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()

	a, err := auth.NewAuthenticator(os.Getenv("JWT_SECRET"), *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tokengen: JWT_SECRET must be set")
		os.Exit(1)
	}
	tok, err := a.GenerateToken(*subject, *tenant)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tokengen: %v\n", err)
		os.Exit(2)
	}
	fmt.Println(tok)
}
