package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentops/bgvsync/internal/config"
	"github.com/talentops/bgvsync/internal/model"
)

func TestRunPersistsExports(t *testing.T) {
	api := &fakeAPI{
		exports: map[string]*model.TabExport{"Draft": tabExport("Draft", "C1")},
	}
	cfg := testFetchConfig(t, "Draft")
	o := New(cfg, api, nil, nil, nil, config.DriveConfig{})

	_, err := o.Run(context.Background(), "s1", nil)
	require.NoError(t, err)

	exports, err := ReadExports(cfg.OutDir)
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Equal(t, "Draft", exports[0].Tab)
	assert.Equal(t, model.SourceAPI, exports[0].Source)
	require.Len(t, exports[0].Rows, 1)
	assert.Equal(t, "C1", exports[0].Rows[0].ID)
	assert.Equal(t, "Candidate C1", exports[0].Rows[0].Fields["Name"])
}

func TestReadExportsMissing(t *testing.T) {
	_, err := ReadExports(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exports.json")
}

func TestReadExportsEmptyList(t *testing.T) {
	dir := t.TempDir()
	_, err := WriteExports(dir, nil)
	require.NoError(t, err)

	_, err = ReadExports(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tab exports")
}
