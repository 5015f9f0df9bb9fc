package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"budgetbuddy/internal/core"
	ports "budgetbuddy/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultSheetName = "Periods"

// Client appends archived period summaries to one sheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ ports.PeriodExporter = (*Client)(nil)

// New creates a client using service account credentials from the
// environment. An empty sheetName means "Periods".
func New(ctx context.Context, spreadsheetID, sheetName string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, spreadsheetID, sheetName), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	sheetName = strings.TrimSpace(sheetName)
	if sheetName == "" {
		sheetName = defaultSheetName
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}
}

// newSheetsService prefers user OAuth credentials when a client is
// configured. Otherwise it reads service account credentials from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS, in that order.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	if oauthConfigured() {
		slog.InfoContext(ctx, "Using OAuth user credentials")
		return newOAuthService(ctx)
	}
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created successfully")
	return service, nil
}

// ExportPeriod appends one summary row and returns the updated range.
func (c *Client) ExportPeriod(ctx context.Context, userID string, p core.BudgetPeriod) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A:I", c.sheetName)
	vr := &gsheet.ValueRange{Values: [][]any{ports.PeriodRow(userID, p)}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append period row to %s: %w", c.sheetName, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	slog.InfoContext(ctx, "Exported period to sheet",
		"user_id", userID,
		"period_id", p.ID,
		"sheets_ref", ref)
	return ref, nil
}
