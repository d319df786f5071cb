package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/talentops/bgvsync/internal/model"
)

// exportsFile is written beside the fetched artifacts so a sheets-only sync
// can rerun without refetching the portal.
const exportsFile = "exports.json"

// WriteExports persists the parsed tab exports into dir and returns the
// file's path.
func WriteExports(dir string, exports []model.TabExport) (string, error) {
	path := filepath.Join(dir, exportsFile)
	data, err := json.MarshalIndent(exports, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "pipeline: marshal exports")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "pipeline: write %s", path)
	}
	return path, nil
}

// ReadExports loads the exports persisted by a previous fetch into dir.
func ReadExports(dir string) ([]model.TabExport, error) {
	path := filepath.Join(dir, exportsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read %s", path)
	}
	var exports []model.TabExport
	if err := json.Unmarshal(data, &exports); err != nil {
		return nil, eris.Wrapf(err, "pipeline: parse %s", path)
	}
	if len(exports) == 0 {
		return nil, eris.Errorf("pipeline: %s holds no tab exports", path)
	}
	return exports, nil
}
