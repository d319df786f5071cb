package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocList(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []DocRef
	}{
		{
			name: "bare array",
			body: `[{"id": 11, "name": "passport.pdf"}, {"id": 12, "name": "pif.pdf"}]`,
			want: []DocRef{{ID: "11", Name: "passport.pdf"}, {ID: "12", Name: "pif.pdf"}},
		},
		{
			name: "documents wrapper",
			body: `{"documents": [{"documentId": "d-9", "fileName": "degree.pdf"}]}`,
			want: []DocRef{{ID: "d-9", Name: "degree.pdf"}},
		},
		{
			name: "data wrapper with numeric ids",
			body: `{"data": [{"id": 3}]}`,
			want: []DocRef{{ID: "3", Name: "document_3"}},
		},
		{
			name: "items without ids are skipped",
			body: `[{"name": "orphan.pdf"}, {"id": "5", "name": "ok.pdf"}]`,
			want: []DocRef{{ID: "5", Name: "ok.pdf"}},
		},
		{
			name: "empty array",
			body: `[]`,
			want: []DocRef{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs, err := parseDocList([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, refs)
		})
	}
}

func TestParseDocListNotJSON(t *testing.T) {
	_, err := parseDocList([]byte(`<html>login</html>`))
	require.Error(t, err)
}
