package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// oauthConfigured reports whether user OAuth credentials are configured.
func oauthConfigured() bool {
	return strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_JSON")) != "" ||
		strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_FILE")) != ""
}

// OAuthConfig loads the OAuth client from GOOGLE_OAUTH_CLIENT_JSON or
// GOOGLE_OAUTH_CLIENT_FILE, scoped to spreadsheets.
func OAuthConfig() (*oauth2.Config, error) {
	b, err := readEnvOrFile("GOOGLE_OAUTH_CLIENT_JSON", "GOOGLE_OAUTH_CLIENT_FILE")
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errors.New("missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	}
	cfg, err := googleoauth.ConfigFromJSON(b, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

// newOAuthService builds a Sheets service acting as the user whose token
// was saved by "budgetctl sheets-auth".
func newOAuthService(ctx context.Context) (*gsheet.Service, error) {
	cfg, err := OAuthConfig()
	if err != nil {
		return nil, err
	}
	b, err := readEnvOrFile("GOOGLE_OAUTH_TOKEN_JSON", "GOOGLE_OAUTH_TOKEN_FILE")
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}

	svc, err := gsheet.NewService(ctx, goption.WithTokenSource(cfg.TokenSource(ctx, &tok)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

// readEnvOrFile returns the inline value of jsonKey, else the contents of
// the file named by fileKey, else nil.
func readEnvOrFile(jsonKey, fileKey string) ([]byte, error) {
	if v := strings.TrimSpace(os.Getenv(jsonKey)); v != "" {
		return []byte(v), nil
	}
	path := strings.TrimSpace(os.Getenv(fileKey))
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileKey, err)
	}
	return b, nil
}
