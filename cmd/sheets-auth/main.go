// Command sheets-auth runs the OAuth consent flow once and stores the token
// the report exporter uses to write to Google Sheets as a user.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"

	gsheet "notaspese/internal/sheets/google"
)

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("sheets-auth", flag.ContinueOnError)
	fs.SetOutput(stderr)

	clientFile := fs.String("client", os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"), "OAuth client secret JSON file")
	tokenFile := fs.String("token", envOr("GOOGLE_OAUTH_TOKEN_FILE", "token.json"), "Where to write the token")
	port := fs.String("port", envOr("OAUTH_REDIRECT_PORT", "8085"), "Local port for the redirect URI")
	timeout := fs.Duration("timeout", 5*time.Minute, "How long to wait for consent")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *clientFile == "" {
		return errors.New("missing OAuth client file: set -client or GOOGLE_OAUTH_CLIENT_FILE")
	}

	clientJSON, err := os.ReadFile(*clientFile)
	if err != nil {
		return fmt.Errorf("read client file: %w", err)
	}
	cfg, err := gsheet.OAuthConfig(clientJSON, "http://localhost:"+*port+"/callback")
	if err != nil {
		return err
	}

	state, err := randomState()
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", "localhost:"+*port)
	if err != nil {
		return fmt.Errorf("listen for redirect: %w", err)
	}
	codes := make(chan string, 1)
	failures := make(chan error, 1)
	srv := &http.Server{Handler: callbackHandler(state, codes, failures), ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	fmt.Fprintf(stdout, "Open this URL to authorize:\n%s\n", cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	select {
	case code := <-codes:
		tok, err := cfg.Exchange(ctx, code)
		if err != nil {
			return fmt.Errorf("token exchange: %w", err)
		}
		if err := gsheet.SaveToken(*tokenFile, tok); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Saved token to %s\n", *tokenFile)
		return nil
	case err := <-failures:
		return err
	case <-ctx.Done():
		return fmt.Errorf("authorization not completed: %w", ctx.Err())
	}
}

func callbackHandler(state string, codes chan<- string, failures chan<- error) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("error") != "":
			http.Error(w, "OAuth error: "+q.Get("error"), http.StatusBadRequest)
			send(failures, fmt.Errorf("oauth error: %s", q.Get("error")))
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
		case q.Get("code") == "":
			http.Error(w, "missing code", http.StatusBadRequest)
		default:
			fmt.Fprintln(w, "You may close this window and return to the terminal.")
			send(codes, q.Get("code"))
		}
	})
	return mux
}

func send[T any](ch chan<- T, v T) {
	select {
	case ch <- v:
	default:
	}
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
