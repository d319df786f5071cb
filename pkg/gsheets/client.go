// Package gsheets wraps the Google Sheets API with the small surface the
// sync writer needs: read a sheet, update a range, append rows, and create
// missing sheets.
package gsheets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Client performs Google Sheets operations against one spreadsheet.
type Client interface {
	SheetTitles(ctx context.Context) ([]string, error)
	EnsureSheet(ctx context.Context, title string) error
	Values(ctx context.Context, sheet string) ([][]string, error)
	Update(ctx context.Context, sheet, ref string, rows [][]string) error
	Append(ctx context.Context, sheet string, rows [][]string) error
}

// Option configures the client.
type Option func(*sheetsClient)

// WithService overrides the underlying Sheets service (used in tests).
func WithService(svc *sheets.Service) Option {
	return func(c *sheetsClient) {
		c.svc = svc
	}
}

type sheetsClient struct {
	svc           *sheets.Service
	spreadsheetID string
}

// New creates a Sheets client authenticated with a service-account
// credentials file, scoped to the given spreadsheet.
func New(ctx context.Context, credentialsPath, spreadsheetID string, opts ...Option) (Client, error) {
	c := &sheetsClient{spreadsheetID: spreadsheetID}
	for _, o := range opts {
		o(c)
	}

	if c.svc == nil {
		data, err := os.ReadFile(credentialsPath)
		if err != nil {
			return nil, eris.Wrap(err, "gsheets: read credentials")
		}
		svc, err := sheets.NewService(ctx,
			option.WithCredentialsJSON(data),
			option.WithScopes(sheets.SpreadsheetsScope),
		)
		if err != nil {
			return nil, eris.Wrap(err, "gsheets: create service")
		}
		c.svc = svc
	}

	return c, nil
}

func (c *sheetsClient) SheetTitles(ctx context.Context) ([]string, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).Do()
	if err != nil {
		return nil, eris.Wrap(err, "gsheets: get spreadsheet")
	}

	titles := make([]string, 0, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			titles = append(titles, sh.Properties.Title)
		}
	}
	return titles, nil
}

func (c *sheetsClient) EnsureSheet(ctx context.Context, title string) error {
	titles, err := c.SheetTitles(ctx)
	if err != nil {
		return err
	}
	for _, t := range titles {
		if t == title {
			return nil
		}
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: title},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return eris.Wrapf(err, "gsheets: add sheet %q", title)
	}
	return nil
}

func (c *sheetsClient) Values(ctx context.Context, sheet string) ([][]string, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, quoteSheet(sheet)).
		Context(ctx).Do()
	if err != nil {
		return nil, eris.Wrapf(err, "gsheets: get values %q", sheet)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, r := range resp.Values {
		row := make([]string, len(r))
		for i, v := range r {
			row[i] = fmt.Sprint(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *sheetsClient) Update(ctx context.Context, sheet, ref string, rows [][]string) error {
	vr := &sheets.ValueRange{Values: toInterfaceRows(rows)}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, quoteSheet(sheet)+"!"+ref, vr).
		ValueInputOption("RAW").
		Context(ctx).Do()
	return eris.Wrapf(err, "gsheets: update %s!%s", sheet, ref)
}

func (c *sheetsClient) Append(ctx context.Context, sheet string, rows [][]string) error {
	vr := &sheets.ValueRange{Values: toInterfaceRows(rows)}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, quoteSheet(sheet), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	return eris.Wrapf(err, "gsheets: append to %q", sheet)
}

// quoteSheet wraps a sheet title in single quotes for A1 notation. Titles
// with spaces or punctuation (e.g. "Today's allocated") need this.
func quoteSheet(sheet string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
}

func toInterfaceRows(rows [][]string) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		row := make([]any, len(r))
		for j, v := range r {
			row[j] = v
		}
		out[i] = row
	}
	return out
}
