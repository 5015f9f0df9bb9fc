package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	gsheet "budgetbuddy/internal/sheets/google"
)

var sheetsAuthCmd = &cobra.Command{
	Use:   "sheets-auth",
	Short: "Authorize Google Sheets export with a user account",
	Long: "Runs the OAuth consent flow for the client in GOOGLE_OAUTH_CLIENT_JSON or " +
		"GOOGLE_OAUTH_CLIENT_FILE and saves the token for the rollover worker.",
	RunE: runSheetsAuth,
}

var (
	flagRedirectPort string
	flagTokenFile    string
)

func init() {
	sheetsAuthCmd.Flags().StringVar(&flagRedirectPort, "port", "8085", "Local port for the OAuth redirect")
	sheetsAuthCmd.Flags().StringVar(&flagTokenFile, "out", "token.json", "Where to save the token (GOOGLE_OAUTH_TOKEN_FILE)")
	rootCmd.AddCommand(sheetsAuthCmd)
}

func runSheetsAuth(cmd *cobra.Command, _ []string) error {
	cfg, err := gsheet.OAuthConfig()
	if err != nil {
		return err
	}
	// The OAuth client must list this URI as an authorized redirect.
	cfg.RedirectURL = "http://localhost:" + flagRedirectPort + "/callback"
	state := uuid.NewString()

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	mux := http.NewServeMux()
	srv := &http.Server{Addr: "localhost:" + flagRedirectPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("error") != "":
			http.Error(w, "OAuth error: "+q.Get("error"), http.StatusBadRequest)
			errCh <- fmt.Errorf("authorization denied: %s", q.Get("error"))
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
		default:
			fmt.Fprintln(w, "You may close this window and return to the terminal.")
			codeCh <- q.Get("code")
		}
	})
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	defer srv.Close()

	fmt.Printf("Open this URL to authorize:\n%s\n", cfg.AuthCodeURL(state, oauth2.AccessTypeOffline))

	ctx := cmd.Context()
	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Minute):
		return errors.New("authorization timed out")
	case <-ctx.Done():
		return ctx.Err()
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("token exchange: %w", err)
	}
	f, err := os.OpenFile(flagTokenFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	fmt.Printf("Saved token to %s\n", flagTokenFile)
	return nil
}
