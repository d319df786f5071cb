package portal

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/talentops/bgvsync/internal/model"
)

// FetchTabExport pulls one report tab through the export API and parses the
// workbook it returns.
func (c *Client) FetchTabExport(ctx context.Context, m *model.EndpointMap, tab string) (*model.TabExport, error) {
	u := ExportURL(c.base, m, tab)
	data, err := c.GetBytes(ctx, u)
	if err != nil {
		return nil, err
	}
	header, rows, err := readExport(data)
	if err != nil {
		return nil, eris.Wrapf(ErrEndpointCall, "parse export for tab %q: %v", tab, err)
	}
	cands := CandidatesFromRows(tab, header, rows)
	c.log.Info("tab exported via api",
		zap.String("tab", tab),
		zap.Int("rows", len(cands)))
	return &model.TabExport{Tab: tab, Header: header, Rows: cands, Source: model.SourceAPI}, nil
}

// ReadExportFile parses a workbook downloaded through the browser into the
// same shape the API path produces.
func ReadExportFile(path, tab string) (*model.TabExport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "portal: read export file %s", path)
	}
	header, rows, err := readExport(data)
	if err != nil {
		return nil, eris.Wrapf(err, "portal: parse export file %s", path)
	}
	return &model.TabExport{
		Tab:    tab,
		Header: header,
		Rows:   CandidatesFromRows(tab, header, rows),
		Source: model.SourceBrowser,
	}, nil
}

// readExport parses export bytes as a workbook: first sheet, first row is
// the header.
func readExport(data []byte) ([]string, [][]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, nil, eris.Wrap(err, "xlsx: open export")
	}
	if len(f.Sheets) == 0 {
		return nil, nil, eris.New("xlsx: export has no sheets")
	}

	var header []string
	var rows [][]string
	for i, row := range f.Sheets[0].Rows {
		cells := rowToStrings(row)
		if i == 0 {
			header = cells
			continue
		}
		if emptyRow(cells) {
			continue
		}
		rows = append(rows, cells)
	}
	if len(header) == 0 {
		return nil, nil, eris.New("xlsx: export has no header row")
	}
	return header, rows, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func emptyRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// CandidatesFromRows turns raw export rows into candidate records keyed by
// the Candidate ID column. Rows without an id cannot be keyed for sync and
// are dropped with a warning.
func CandidatesFromRows(tab string, header []string, rows [][]string) []model.CandidateRecord {
	idCol := findColumn(header, "candidate id", "candidateid", "id")
	nameCol := findColumn(header, "candidate name", "candidatename", "name")

	var out []model.CandidateRecord
	for _, row := range rows {
		id := cellAt(row, idCol)
		if id == "" {
			zap.L().Warn("export row without candidate id skipped",
				zap.String("tab", tab))
			continue
		}
		fields := make(map[string]string, len(header))
		for i, h := range header {
			if h == "" {
				continue
			}
			fields[h] = cellAt(row, i)
		}
		out = append(out, model.CandidateRecord{
			ID:     id,
			Name:   cellAt(row, nameCol),
			Tab:    tab,
			Fields: fields,
		})
	}
	return out
}

func findColumn(header []string, names ...string) int {
	for i, h := range header {
		norm := strings.ToLower(strings.TrimSpace(h))
		for _, n := range names {
			if norm == n {
				return i
			}
		}
	}
	return -1
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
