// Package sheetsync merges fetched tab exports into the target spreadsheet
// incrementally and appends an audit trail describing every write.
package sheetsync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/talentops/bgvsync/internal/model"
	"github.com/talentops/bgvsync/pkg/gsheets"
)

// keyColumn keys the merge: rows are inserted or updated by candidate id,
// never deleted.
const keyColumn = "Candidate ID"

// Syncer merges tab exports into one spreadsheet. A merge is one logical
// read-modify-append transaction; the run-level mutual exclusion flag is the
// only protection against interleaved merges, so callers must not run two
// Syncers against the same spreadsheet concurrently.
type Syncer struct {
	sheets     gsheets.Client
	auditSheet string
	log        *zap.Logger
	now        func() time.Time
}

func New(sheets gsheets.Client, auditSheet string) *Syncer {
	if auditSheet == "" {
		auditSheet = "Audit Log"
	}
	return &Syncer{
		sheets:     sheets,
		auditSheet: auditSheet,
		log:        zap.L().With(zap.String("component", "sheetsync")),
		now:        time.Now,
	}
}

// SyncAll merges every export in order and aggregates the counts. A tab
// that fails to merge is recorded and the rest still sync.
func (s *Syncer) SyncAll(ctx context.Context, exports []model.TabExport) (*model.SyncResult, error) {
	total := &model.SyncResult{}
	var problems []string
	for i := range exports {
		res, err := s.SyncTab(ctx, &exports[i])
		if err != nil {
			s.log.Error("tab sync failed",
				zap.String("tab", exports[i].Tab), zap.Error(err))
			problems = append(problems, fmt.Sprintf("%s: %v", exports[i].Tab, err))
			continue
		}
		total.Added += res.Added
		total.Updated += res.Updated
		total.Audited += res.Audited
	}
	if len(problems) > 0 {
		return total, eris.Errorf("sheetsync: %s", strings.Join(problems, "; "))
	}
	return total, nil
}

// SyncTab merges one export into the sheet named after its tab: new
// candidates append, changed candidates update in place, and rows for
// candidates absent from this export are left untouched. Each merge appends
// per-change audit entries plus one summary entry.
func (s *Syncer) SyncTab(ctx context.Context, exp *model.TabExport) (*model.SyncResult, error) {
	if len(exp.Header) == 0 {
		return nil, eris.Errorf("sheetsync: tab %q export has no header", exp.Tab)
	}
	if findKey(exp.Header) < 0 {
		return nil, eris.Errorf("sheetsync: tab %q export has no %q column", exp.Tab, keyColumn)
	}

	if err := s.sheets.EnsureSheet(ctx, exp.Tab); err != nil {
		return nil, err
	}
	existing, err := s.sheets.Values(ctx, exp.Tab)
	if err != nil {
		return nil, err
	}

	res := &model.SyncResult{}
	var audits []model.AuditEntry

	if len(existing) == 0 {
		audits, err = s.writeFresh(ctx, exp, res)
	} else {
		audits, err = s.mergeInto(ctx, exp, existing, res)
	}
	if err != nil {
		return nil, err
	}

	audits = append(audits, model.AuditEntry{
		Timestamp: s.now(),
		Tab:       exp.Tab,
		Action:    model.AuditSummary,
		NewValue:  fmt.Sprintf("added=%d updated=%d rows=%d", res.Added, res.Updated, len(exp.Rows)),
	})
	if err := s.writeAudit(ctx, audits); err != nil {
		return nil, err
	}
	res.Audited = len(audits)

	s.log.Info("tab synced",
		zap.String("tab", exp.Tab),
		zap.Int("added", res.Added),
		zap.Int("updated", res.Updated),
		zap.Int("audited", res.Audited))
	return res, nil
}

// writeFresh populates an empty sheet with the export's header and rows.
func (s *Syncer) writeFresh(ctx context.Context, exp *model.TabExport, res *model.SyncResult) ([]model.AuditEntry, error) {
	rows := [][]string{exp.Header}
	var audits []model.AuditEntry
	seen := make(map[string]bool, len(exp.Rows))
	for _, c := range exp.Rows {
		if seen[c.ID] {
			s.log.Warn("duplicate candidate id in export",
				zap.String("tab", exp.Tab), zap.String("candidate_id", c.ID))
			continue
		}
		seen[c.ID] = true
		rows = append(rows, exp.Row(c))
		audits = append(audits, s.entry(exp.Tab, c.ID, model.AuditAdded, "", "", ""))
		res.Added++
	}
	if err := s.sheets.Update(ctx, exp.Tab, "A1", rows); err != nil {
		return nil, err
	}
	return audits, nil
}

// mergeInto applies the export to a sheet that already has data. Alignment
// is by header name, so a hand-reordered sheet still merges correctly.
// Export columns the sheet does not carry are skipped with a warning rather
// than rewriting the sheet's header.
func (s *Syncer) mergeInto(ctx context.Context, exp *model.TabExport, existing [][]string, res *model.SyncResult) ([]model.AuditEntry, error) {
	sheetHeader := existing[0]
	sheetKey := findKey(sheetHeader)
	if sheetKey < 0 {
		return nil, eris.Errorf("sheetsync: sheet %q has no %q column", exp.Tab, keyColumn)
	}
	for _, h := range exp.Header {
		if h != "" && columnOf(sheetHeader, h) < 0 {
			s.log.Warn("export column missing from sheet, skipped",
				zap.String("tab", exp.Tab), zap.String("column", h))
		}
	}

	// Candidate id -> index into existing.
	index := make(map[string]int, len(existing)-1)
	for i := 1; i < len(existing); i++ {
		id := cellAt(existing[i], sheetKey)
		if id == "" {
			continue
		}
		if _, dup := index[id]; !dup {
			index[id] = i
		}
	}

	var audits []model.AuditEntry
	var appends [][]string
	seen := make(map[string]bool, len(exp.Rows))
	for _, c := range exp.Rows {
		if seen[c.ID] {
			s.log.Warn("duplicate candidate id in export",
				zap.String("tab", exp.Tab), zap.String("candidate_id", c.ID))
			continue
		}
		seen[c.ID] = true

		rowIdx, ok := index[c.ID]
		if !ok {
			appends = append(appends, alignRow(sheetHeader, exp, c))
			audits = append(audits, s.entry(exp.Tab, c.ID, model.AuditAdded, "", "", ""))
			res.Added++
			continue
		}

		merged, changes := s.mergeRow(exp, c, sheetHeader, existing[rowIdx])
		if len(changes) == 0 {
			continue
		}
		audits = append(audits, changes...)
		// Sheet rows are 1-based and existing[0] is the header.
		if err := s.sheets.Update(ctx, exp.Tab, fmt.Sprintf("A%d", rowIdx+1), [][]string{merged}); err != nil {
			return nil, err
		}
		res.Updated++
	}

	if len(appends) > 0 {
		if err := s.sheets.Append(ctx, exp.Tab, appends); err != nil {
			return nil, err
		}
	}
	return audits, nil
}

// mergeRow folds the export's values into the sheet row and reports one
// audit entry per changed cell.
func (s *Syncer) mergeRow(exp *model.TabExport, c model.CandidateRecord, sheetHeader, sheetRow []string) ([]string, []model.AuditEntry) {
	merged := make([]string, len(sheetHeader))
	copy(merged, sheetRow)

	var changes []model.AuditEntry
	for _, h := range exp.Header {
		if h == "" {
			continue
		}
		col := columnOf(sheetHeader, h)
		if col < 0 {
			continue
		}
		oldV := cellAt(sheetRow, col)
		newV := c.Fields[h]
		if oldV == newV {
			continue
		}
		merged[col] = newV
		changes = append(changes, s.entry(exp.Tab, c.ID, model.AuditUpdated, h, oldV, newV))
	}
	return merged, changes
}

func (s *Syncer) writeAudit(ctx context.Context, entries []model.AuditEntry) error {
	if err := s.sheets.EnsureSheet(ctx, s.auditSheet); err != nil {
		return err
	}
	vals, err := s.sheets.Values(ctx, s.auditSheet)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(entries)+1)
	if len(vals) == 0 {
		rows = append(rows, model.AuditHeader())
	}
	for _, e := range entries {
		rows = append(rows, e.SheetRow())
	}
	return s.sheets.Append(ctx, s.auditSheet, rows)
}

func (s *Syncer) entry(tab, candidateID string, action model.AuditAction, column, oldV, newV string) model.AuditEntry {
	return model.AuditEntry{
		Timestamp:   s.now(),
		Tab:         tab,
		CandidateID: candidateID,
		Action:      action,
		Column:      column,
		OldValue:    oldV,
		NewValue:    newV,
	}
}

// alignRow renders the candidate's values in the sheet's column order.
func alignRow(sheetHeader []string, exp *model.TabExport, c model.CandidateRecord) []string {
	row := make([]string, len(sheetHeader))
	for i, h := range sheetHeader {
		row[i] = c.Fields[h]
	}
	return row
}

func findKey(header []string) int {
	return columnOf(header, keyColumn)
}

func columnOf(header []string, name string) int {
	want := normalize(name)
	for i, h := range header {
		if normalize(h) == want {
			return i
		}
	}
	return -1
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
