package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleKey = "sk-proj-abcdefghijklmnopqrstuvwxyz1234567890123456"

func TestRedactor_NoSecrets(t *testing.T) {
	r, err := NewRedactor(nil, nil)
	require.NoError(t, err)

	content := "Edit: /proj/internal/theme/toggle.go"
	assert.Equal(t, content, r.Redact(content))
	assert.Empty(t, r.Detect(""))
}

func TestRedactor_RedactsKnownPattern(t *testing.T) {
	r, err := NewRedactor(nil, nil)
	require.NoError(t, err)

	content := `export OPENAI_API_KEY="` + sampleKey + `"`
	if len(r.Detect(content)) == 0 {
		t.Skip("Gitleaks didn't detect this pattern - skipping redaction validation")
	}

	got := r.Redact(content)
	assert.NotContains(t, got, sampleKey)
	assert.Contains(t, got, "[REDACTED:")
	assert.True(t, strings.HasPrefix(got, "export OPENAI_API_KEY="))
}

func TestLoadAllowlists(t *testing.T) {
	project := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(project, ProjectAllowlistFile), []byte(`
[allowlist]
regexes = ['''sk-proj-abcdef''']
`), 0o600))

	userFile := filepath.Join(t.TempDir(), "allowlist.toml")
	require.NoError(t, os.WriteFile(userFile, []byte(`
[allowlist]
stopwords = ["example"]
`), 0o600))

	a, err := LoadAllowlists(project, userFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"sk-proj-abcdef"}, a.Regexes)
	assert.Equal(t, []string{"example"}, a.StopWords)
	assert.False(t, a.Empty())

	a, err = LoadAllowlists(t.TempDir(), filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.True(t, a.Empty())
}

func TestLoadAllowlists_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"bad toml", "[allowlist\nregexes = 1", ErrInvalidTOML},
		{"bad regex", "[allowlist]\nregexes = ['''(unclosed''']", ErrInvalidRegex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectAllowlistFile), []byte(tt.content), 0o600))
			_, err := LoadAllowlists(dir, "")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRedactor_Allowlist(t *testing.T) {
	plain, err := NewRedactor(nil, nil)
	require.NoError(t, err)
	content := `export OPENAI_API_KEY="` + sampleKey + `"`
	if len(plain.Detect(content)) == 0 {
		t.Skip("Gitleaks didn't detect this pattern - skipping allowlist validation")
	}

	allowed, err := NewRedactor(&Allowlist{Regexes: []string{`sk-proj-abcdef`}}, nil)
	require.NoError(t, err)
	assert.Equal(t, content, allowed.Redact(content))
}

func TestMarker(t *testing.T) {
	assert.Equal(t, "[REDACTED:github-pat]", Marker("github-pat"))
}
