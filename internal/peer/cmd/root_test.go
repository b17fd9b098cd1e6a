package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShare(t *testing.T) {
	tests := []struct {
		in       string
		name     string
		path     string
		hasError bool
	}{
		{in: "doc.txt=/srv/files/doc.txt", name: "doc.txt", path: "/srv/files/doc.txt"},
		{in: "/srv/files/report.pdf", name: "report.pdf", path: "/srv/files/report.pdf"},
		{in: "alias=report.pdf", name: "alias", path: "report.pdf"},
		{in: "=/srv/x", hasError: true},
		{in: "x=", hasError: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, path, err := parseShare(tt.in)
			if tt.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.path, path)
		})
	}
}
