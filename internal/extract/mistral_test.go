package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFakePDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pif.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7 scanned"), 0o644))
	return path
}

func TestMistralExtractText(t *testing.T) {
	var gotAuth string
	var gotReq mistralOCRRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		resp := mistralOCRResponse{Pages: []mistralOCRPage{
			{Index: 0, Markdown: "Candidate ID: C-3"},
			{Index: 1, Markdown: "DOB: 02/02/1992"},
		}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	m := NewMistralOCR("test-key", "")
	m.endpoint = srv.URL
	m.client = srv.Client()

	text, err := m.ExtractText(context.Background(), writeFakePDF(t))
	require.NoError(t, err)

	assert.Equal(t, "Candidate ID: C-3\n\nDOB: 02/02/1992", text)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, defaultMistralModel, gotReq.Model)
	assert.Equal(t, "document_url", gotReq.Document.Type)
	assert.True(t, strings.HasPrefix(gotReq.Document.DocumentURL, "data:application/pdf;base64,"))
}

func TestMistralExtractTextAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := NewMistralOCR("bad-key", "custom-model")
	m.endpoint = srv.URL
	m.client = srv.Client()

	_, err := m.ExtractText(context.Background(), writeFakePDF(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
