package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/talentops/bgvsync/internal/extract"
	"github.com/talentops/bgvsync/internal/model"
	"github.com/talentops/bgvsync/internal/portal"
)

// pifLinkText matches PIF document names and links. Shared with the browser
// fallback, which feeds it to a JavaScript RegExp, so the case-insensitivity
// flag stays out of the pattern itself.
const pifLinkText = `\bpif\b|personal\s+information\s+form`

var pifNamePattern = regexp.MustCompile(`(?i)` + pifLinkText)

func isPIF(name string) bool {
	return pifNamePattern.MatchString(name)
}

// processCandidate fetches one candidate's artifacts into
// <out_dir>/<ID> - <Name>/: details.json, documents/, pif.pdf and pif.json.
// Failures are accumulated into the outcome, never propagated; the batch
// always continues.
func (o *Orchestrator) processCandidate(ctx context.Context, m *model.EndpointMap, c model.CandidateRecord, idx, total int) model.CandidateOutcome {
	log := o.log.With(
		zap.String("progress", fmt.Sprintf("[%d/%d]", idx+1, total)),
		zap.String("candidate_id", c.ID),
		zap.String("tab", c.Tab),
	)
	log.Info("fetching candidate")

	outcome := model.CandidateOutcome{
		CandidateID: c.ID,
		Name:        c.Name,
		Tab:         c.Tab,
		Source:      model.SourceAPI,
		RecordedAt:  time.Now().UTC(),
	}
	var problems []string

	dir := filepath.Join(o.cfg.OutDir, CandidateFolder(c.ID, c.Name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		outcome.Source = model.SourceFailed
		outcome.Error = fmt.Sprintf("create artifact dir: %v", err)
		return outcome
	}

	// Profile is best effort; a candidate without details.json still gets
	// documents and the PIF.
	if data, err := o.api.FetchProfile(ctx, m, c.ID); err != nil {
		log.Debug("profile unavailable", zap.Error(err))
	} else if err := os.WriteFile(filepath.Join(dir, "details.json"), data, 0o644); err != nil {
		log.Warn("write details.json failed", zap.Error(err))
	}

	refs, err := o.api.ListDocuments(ctx, m, c.ID)
	if err != nil && o.fallback != nil {
		log.Warn("document list via API failed, trying browser", zap.Error(err))
		refs, err = o.fallback.CandidateDocuments(ctx, c.ID)
		if err == nil {
			outcome.Source = model.SourceBrowser
		}
	}
	if err != nil {
		outcome.Source = model.SourceFailed
		problems = append(problems, fmt.Sprintf("list documents: %v", err))
	}

	pifPath := ""
	docsDir := filepath.Join(dir, "documents")
	for i, ref := range refs {
		if i > 0 {
			if err := sleep(ctx, o.documentDelay()); err != nil {
				problems = append(problems, "canceled mid-download")
				break
			}
		}
		path, viaBrowser, err := o.fetchDocument(ctx, m, c.ID, ref, dir, docsDir)
		if err != nil {
			log.Warn("document not retrievable", zap.String("document", ref.Name), zap.Error(err))
			problems = append(problems, fmt.Sprintf("document %s: %v", ref.Name, err))
			continue
		}
		outcome.Documents++
		if viaBrowser && outcome.Source == model.SourceAPI {
			outcome.Source = model.SourceBrowser
		}
		if isPIF(ref.Name) {
			pifPath = path
		}
	}

	// The PIF sometimes is not listed with the other documents and only
	// hangs off the candidate page itself.
	if pifPath == "" && o.fallback != nil {
		got, err := o.fallback.DownloadPIF(ctx, c.ID, dir)
		if err != nil {
			log.Debug("no PIF via browser", zap.Error(err))
		} else {
			pifPath = got
			if outcome.Source == model.SourceAPI {
				outcome.Source = model.SourceBrowser
			}
		}
	}

	if pifPath != "" && o.forms != nil {
		fd, err := o.forms.ParseForm(ctx, pifPath)
		if err != nil {
			log.Warn("form extraction failed", zap.Error(err))
			problems = append(problems, fmt.Sprintf("extract PIF: %v", err))
		} else if _, err := extract.WriteForm(pifPath, fd); err != nil {
			log.Warn("write pif.json failed", zap.Error(err))
			problems = append(problems, fmt.Sprintf("write form: %v", err))
		} else {
			outcome.FormParsed = true
		}
	}

	if o.drive != nil {
		if err := o.uploadArtifacts(ctx, CandidateFolder(c.ID, c.Name), dir); err != nil {
			log.Warn("drive upload failed", zap.Error(err))
		}
	}

	outcome.Error = strings.Join(problems, "; ")
	return outcome
}

// fetchDocument downloads one document, API shapes first and browser second.
// The PIF lands at the candidate root as pif.pdf; everything else goes under
// documents/ with a sanitized name.
func (o *Orchestrator) fetchDocument(ctx context.Context, m *model.EndpointMap, candidateID string, ref portal.DocRef, dir, docsDir string) (string, bool, error) {
	destDir, destName := docsDir, sanitizeName(ref.Name)
	if isPIF(ref.Name) {
		destDir, destName = dir, "pif.pdf"
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", false, err
	}
	path := filepath.Join(destDir, destName)

	apiErr := func() error {
		_, err := o.api.DownloadDocument(ctx, m, candidateID, ref, path)
		return err
	}()
	if apiErr == nil {
		return path, false, nil
	}
	if o.fallback == nil {
		return "", false, apiErr
	}

	o.log.Debug("document via API failed, trying browser",
		zap.String("candidate_id", candidateID), zap.String("document", ref.Name), zap.Error(apiErr))
	got, err := o.fallback.DownloadDocument(ctx, candidateID, ref, destDir)
	if err != nil {
		return "", false, err
	}
	if got != path {
		if mvErr := moveFile(got, path); mvErr != nil {
			// Keep the browser's filename rather than losing the artifact.
			return got, true, nil
		}
	}
	return path, true, nil
}

// uploadArtifacts mirrors the candidate's local artifact directory into
// Drive: one folder per candidate under the configured root, documents in a
// nested folder.
func (o *Orchestrator) uploadArtifacts(ctx context.Context, folderName, dir string) error {
	folderID, err := o.drive.EnsureFolder(ctx, folderName, o.driveRoot)
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			if e.Name() != "documents" {
				continue
			}
			subID, err := o.drive.EnsureFolder(ctx, "documents", folderID)
			if err != nil {
				return err
			}
			docs, err := os.ReadDir(filepath.Join(dir, e.Name()))
			if err != nil {
				return err
			}
			for _, d := range docs {
				if d.IsDir() {
					continue
				}
				if _, err := o.drive.UploadFile(ctx, subID, d.Name(), filepath.Join(dir, e.Name(), d.Name())); err != nil {
					return err
				}
			}
			continue
		}
		if _, err := o.drive.UploadFile(ctx, folderID, e.Name(), filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// moveFile renames src to dst, copying when the rename fails (staging and
// destination can sit on different mounts).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return err
	}
	return os.Remove(src)
}
