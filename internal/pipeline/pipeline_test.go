package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/talentops/bgvsync/internal/config"
	"github.com/talentops/bgvsync/internal/model"
	"github.com/talentops/bgvsync/internal/portal"
)

type fakeAPI struct {
	exports      map[string]*model.TabExport
	docs         map[string][]portal.DocRef
	listErr      map[string]bool
	downloadErr  map[string]bool
	profileDelay time.Duration

	mu           sync.Mutex
	profileCalls int
}

func (f *fakeAPI) FetchTabExport(_ context.Context, _ *model.EndpointMap, tab string) (*model.TabExport, error) {
	exp, ok := f.exports[tab]
	if !ok || exp == nil {
		return nil, errors.New("export endpoint unavailable")
	}
	return exp, nil
}

func (f *fakeAPI) FetchProfile(ctx context.Context, _ *model.EndpointMap, candidateID string) ([]byte, error) {
	f.mu.Lock()
	f.profileCalls++
	f.mu.Unlock()
	if f.profileDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.profileDelay):
		}
	}
	return []byte(`{"candidateId": "` + candidateID + `"}`), nil
}

func (f *fakeAPI) ListDocuments(_ context.Context, _ *model.EndpointMap, candidateID string) ([]portal.DocRef, error) {
	if f.listErr[candidateID] {
		return nil, errors.New("document list unavailable")
	}
	return f.docs[candidateID], nil
}

func (f *fakeAPI) DownloadDocument(_ context.Context, _ *model.EndpointMap, candidateID string, ref portal.DocRef, path string) (int64, error) {
	if f.downloadErr[candidateID+"/"+ref.ID] {
		return 0, errors.New("document endpoint unavailable")
	}
	data := []byte("%PDF-1.4 " + ref.Name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

type fakeFallback struct {
	exportPaths map[string]string
	docs        map[string][]portal.DocRef
	pifErr      bool

	mu          sync.Mutex
	exportCalls []string
}

func (f *fakeFallback) ExportTab(_ context.Context, tab string) (string, error) {
	f.mu.Lock()
	f.exportCalls = append(f.exportCalls, tab)
	f.mu.Unlock()
	path, ok := f.exportPaths[tab]
	if !ok {
		return "", errors.New("export control not found")
	}
	return path, nil
}

func (f *fakeFallback) CandidateDocuments(_ context.Context, candidateID string) ([]portal.DocRef, error) {
	refs, ok := f.docs[candidateID]
	if !ok {
		return nil, errors.New("no document links")
	}
	return refs, nil
}

func (f *fakeFallback) DownloadDocument(_ context.Context, _ string, ref portal.DocRef, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(destDir, sanitizeName(ref.Name))
	return path, os.WriteFile(path, []byte("%PDF-1.4 via browser"), 0o644)
}

func (f *fakeFallback) DownloadPIF(_ context.Context, _ string, destDir string) (string, error) {
	if f.pifErr {
		return "", errors.New("no pif link")
	}
	path := filepath.Join(destDir, "pif.pdf")
	return path, os.WriteFile(path, []byte("%PDF-1.4 pif"), 0o644)
}

type stubParser struct{}

func (stubParser) ParseForm(_ context.Context, _ string) (*model.FormData, error) {
	return &model.FormData{RawText: "Candidate ID: C1", Parsed: map[string]string{"candidate_id": "C1"}}, nil
}

func tabExport(tab string, ids ...string) *model.TabExport {
	exp := &model.TabExport{Tab: tab, Header: []string{"Candidate ID", "Name"}, Source: model.SourceAPI}
	for _, id := range ids {
		exp.Rows = append(exp.Rows, model.CandidateRecord{
			ID:     id,
			Name:   "Candidate " + id,
			Tab:    tab,
			Fields: map[string]string{"Candidate ID": id, "Name": "Candidate " + id},
		})
	}
	return exp
}

func writeTabsFile(t *testing.T, tabs ...string) string {
	t.Helper()
	var b strings.Builder
	for _, tab := range tabs {
		fmt.Fprintf(&b, "- %q\n", tab)
	}
	path := filepath.Join(t.TempDir(), "tabs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func testFetchConfig(t *testing.T, tabs ...string) config.FetchConfig {
	t.Helper()
	return config.FetchConfig{
		OutDir:                  t.TempDir(),
		MaxConcurrentCandidates: 2,
		TabsFile:                writeTabsFile(t, tabs...),
	}
}

func TestRunRefusesMismatchedEndpointMap(t *testing.T) {
	o := New(testFetchConfig(t, "Draft"), &fakeAPI{}, nil, nil, nil, config.DriveConfig{})

	m := model.NewEndpointMap("other-session")
	_, err := o.Run(context.Background(), "this-session", m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "other-session")
}

func TestRunConcurrencyBound(t *testing.T) {
	const workers = 2
	const unit = 100 * time.Millisecond

	ids := make([]string, 10)
	for i := range ids {
		ids[i] = fmt.Sprintf("%d", 100+i)
	}
	api := &fakeAPI{
		exports:      map[string]*model.TabExport{"Draft": tabExport("Draft", ids...)},
		profileDelay: unit,
	}
	cfg := testFetchConfig(t, "Draft")
	cfg.MaxConcurrentCandidates = workers

	o := New(cfg, api, nil, nil, nil, config.DriveConfig{})

	start := time.Now()
	summary, err := o.Run(context.Background(), "s1", nil)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Len(t, summary.Outcomes, 10)
	// Ten candidates at two in flight need at least five rounds, and running
	// faster than one round per candidate would mean the limit leaked.
	assert.Greater(t, elapsed, 5*unit)
	assert.Less(t, elapsed, 10*unit)
}

func TestRunRecordsFailuresAndContinues(t *testing.T) {
	api := &fakeAPI{
		exports: map[string]*model.TabExport{"Draft": tabExport("Draft", "C1", "C2", "C3")},
		listErr: map[string]bool{"C2": true},
	}
	o := New(testFetchConfig(t, "Draft"), api, nil, nil, nil, config.DriveConfig{})

	summary, err := o.Run(context.Background(), "s1", nil)
	require.NoError(t, err)

	require.Len(t, summary.Outcomes, 3)
	byID := make(map[string]model.CandidateOutcome)
	for _, out := range summary.Outcomes {
		byID[out.CandidateID] = out
	}
	assert.Equal(t, model.SourceFailed, byID["C2"].Source)
	assert.Contains(t, byID["C2"].Error, "list documents")
	assert.Equal(t, model.SourceAPI, byID["C1"].Source)
	assert.Equal(t, model.SourceAPI, byID["C3"].Source)

	require.Len(t, summary.Failures, 1)
	assert.Contains(t, summary.Failures[0], "C2")
}

func TestRunDeduplicatesCandidatesAcrossTabs(t *testing.T) {
	api := &fakeAPI{
		exports: map[string]*model.TabExport{
			"Draft":     tabExport("Draft", "C1", "C2"),
			"Submitted": tabExport("Submitted", "C2", "C3"),
		},
	}
	o := New(testFetchConfig(t, "Draft", "Submitted"), api, nil, nil, nil, config.DriveConfig{})

	summary, err := o.Run(context.Background(), "s1", nil)
	require.NoError(t, err)

	assert.Len(t, summary.Outcomes, 3)
	byID := make(map[string]string)
	for _, out := range summary.Outcomes {
		byID[out.CandidateID] = out.Tab
	}
	assert.Equal(t, "Draft", byID["C2"], "first tab to list a candidate keeps it")
	assert.Equal(t, 3, api.profileCalls, "the duplicate is processed once")
}

func TestRunFallsBackToBrowserExport(t *testing.T) {
	wb := xlsx.NewFile()
	sheet, err := wb.AddSheet("export")
	require.NoError(t, err)
	for _, row := range [][]string{{"Candidate ID", "Name"}, {"C9", "Meera Iyer"}} {
		r := sheet.AddRow()
		for _, cell := range row {
			r.AddCell().Value = cell
		}
	}
	path := filepath.Join(t.TempDir(), "draft.xlsx")
	require.NoError(t, wb.Save(path))

	api := &fakeAPI{exports: map[string]*model.TabExport{}}
	fb := &fakeFallback{
		exportPaths: map[string]string{"Draft": path},
		pifErr:      true,
	}
	o := New(testFetchConfig(t, "Draft"), api, fb, nil, nil, config.DriveConfig{})

	summary, err := o.Run(context.Background(), "s1", nil)
	require.NoError(t, err)

	require.Len(t, summary.Tabs, 1)
	assert.Equal(t, model.SourceBrowser, summary.Tabs[0].Source)
	assert.Equal(t, 1, summary.Tabs[0].Rows)
	assert.Equal(t, []string{"Draft"}, fb.exportCalls)
}

func TestRunAllTabExportsFailed(t *testing.T) {
	api := &fakeAPI{exports: map[string]*model.TabExport{}}
	o := New(testFetchConfig(t, "Draft", "Submitted"), api, nil, nil, nil, config.DriveConfig{})

	summary, err := o.Run(context.Background(), "s1", nil)
	require.Error(t, err)
	assert.Len(t, summary.Failures, 2)
}

func TestRunExtractsPIF(t *testing.T) {
	api := &fakeAPI{
		exports: map[string]*model.TabExport{"Draft": tabExport("Draft", "C1")},
		docs: map[string][]portal.DocRef{
			"C1": {
				{ID: "11", Name: "Personal Information Form.pdf"},
				{ID: "12", Name: "aadhaar.pdf"},
			},
		},
	}
	cfg := testFetchConfig(t, "Draft")
	o := New(cfg, api, nil, nil, nil, config.DriveConfig{})
	o.forms = stubParser{}

	summary, err := o.Run(context.Background(), "s1", nil)
	require.NoError(t, err)

	require.Len(t, summary.Outcomes, 1)
	out := summary.Outcomes[0]
	assert.Equal(t, 2, out.Documents)
	assert.True(t, out.FormParsed)
	assert.Equal(t, 1, summary.FormsParsed)

	dir := filepath.Join(cfg.OutDir, CandidateFolder("C1", "Candidate C1"))
	assert.FileExists(t, filepath.Join(dir, "pif.pdf"))
	assert.FileExists(t, filepath.Join(dir, "pif.json"))
	assert.FileExists(t, filepath.Join(dir, "documents", "aadhaar.pdf"))
	assert.FileExists(t, filepath.Join(dir, "details.json"))
	assert.NoFileExists(t, filepath.Join(dir, "documents", "Personal Information Form.pdf"),
		"the PIF lives at the candidate root, not under documents")
}

func TestRunStreamsOutcomes(t *testing.T) {
	api := &fakeAPI{
		exports: map[string]*model.TabExport{"Draft": tabExport("Draft", "C1", "C2", "C3")},
	}
	o := New(testFetchConfig(t, "Draft"), api, nil, nil, nil, config.DriveConfig{})

	var mu sync.Mutex
	var streamed []string
	o.OnOutcome(func(oc model.CandidateOutcome) {
		mu.Lock()
		streamed = append(streamed, oc.CandidateID)
		mu.Unlock()
	})

	summary, err := o.Run(context.Background(), "s1", nil)
	require.NoError(t, err)
	require.Len(t, summary.Outcomes, 3)

	mu.Lock()
	defer mu.Unlock()
	sort.Strings(streamed)
	assert.Equal(t, []string{"C1", "C2", "C3"}, streamed)
}

func TestRunDocumentFallback(t *testing.T) {
	api := &fakeAPI{
		exports:     map[string]*model.TabExport{"Draft": tabExport("Draft", "C1")},
		docs:        map[string][]portal.DocRef{"C1": {{ID: "11", Name: "degree.pdf"}}},
		downloadErr: map[string]bool{"C1/11": true},
	}
	fb := &fakeFallback{pifErr: true}
	o := New(testFetchConfig(t, "Draft"), api, fb, nil, nil, config.DriveConfig{})

	summary, err := o.Run(context.Background(), "s1", nil)
	require.NoError(t, err)

	require.Len(t, summary.Outcomes, 1)
	out := summary.Outcomes[0]
	assert.Equal(t, 1, out.Documents)
	assert.Equal(t, model.SourceBrowser, out.Source, "a browser-fetched document degrades the source tag")
	assert.Empty(t, out.Error)
}
