package keywords

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", []string{}},
		{"stop words only", "add the fix to this", []string{}},
		{"lowercases", "Dark MODE Toggle", []string{"dark", "mode", "toggle"}},
		{"drops short tokens", "go to db ui api", []string{"api"}},
		{"identifier characters", "user_id v2beta", []string{"user_id", "v2beta"}},
		{"no leading digit", "3rd 42abc abc42", []string{"abc42"}},
		{"domain verbs filtered", "implement phase step update create", []string{}},
		{"deduplicates", "queue queue QUEUE", []string{"queue"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.text).Sorted()
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract_Deterministic(t *testing.T) {
	text := "Updated billing queue migration script"
	assert.Equal(t, Extract(text).Sorted(), Extract(text).Sorted())
}

func TestScore_Symmetric(t *testing.T) {
	a := Extract("migrate billing service to new queue")
	b := Extract("Updated billing queue migration script")

	assert.Equal(t, Score(a, b), Score(b, a))
	assert.Equal(t, 2, Score(a, b))
}

func TestScore_EmptySets(t *testing.T) {
	full := Extract("billing queue")
	empty := Extract("")

	assert.Zero(t, Score(full, empty))
	assert.Zero(t, Score(empty, full))
	assert.Zero(t, Score(empty, empty))
}

func TestMatch(t *testing.T) {
	score, shared := Match(
		"Edit: src/theme/dark_mode.ts toggle dark theme",
		"add dark mode toggle",
	)
	assert.Equal(t, 2, score)
	assert.Equal(t, []string{"dark", "toggle"}, shared)

	score, shared = Match("", "anything here")
	assert.Zero(t, score)
	assert.Nil(t, shared)
}

func TestIsStopWord(t *testing.T) {
	assert.True(t, IsStopWord("Implement"))
	assert.False(t, IsStopWord("billing"))
}
