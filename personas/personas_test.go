package personas

import (
	"errors"
	"html"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogOrder(t *testing.T) {
	c := Default()
	assert.Equal(t, []string{"Inner Child", "Inner Critic", "Future Self", "Calm Self"}, c.Names())

	p, ok := c.Get("future-self")
	require.True(t, ok)
	assert.Equal(t, "bg-blue-200", p.Style)
	assert.NotEmpty(t, p.Prompt)
}

func TestSystemPromptDefault(t *testing.T) {
	p := &Persona{Name: "Ghost", Prompt: "  "}
	assert.Equal(t, DefaultSystemPrompt, p.SystemPrompt())
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New([]Persona{{ID: "a"}, {ID: "a"}})
	assert.True(t, errors.Is(err, ErrDuplicateID))

	_, err = New([]Persona{{ID: ""}})
	assert.True(t, errors.Is(err, ErrEmptyID))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
personas:
  - id: skeptic
    name: Skeptic
    prompt: Doubt everything.
  - id: dreamer
    name: Dreamer
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Skeptic", "Dreamer"}, c.Names())

	d, _ := c.Get("dreamer")
	assert.Equal(t, DefaultSystemPrompt, d.SystemPrompt())
}

func TestLoadSampleFile(t *testing.T) {
	c, err := Load(filepath.Join("..", "config", "personas.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Names(), c.Names())
}

func TestHighlight(t *testing.T) {
	c := Default()

	got := c.Highlight("Inner Critic: cố lên. Inner Critic: nữa.")
	assert.Equal(t,
		"<span class='text-red-600 font-semibold'>Inner Critic:</span> cố lên. <span class='text-red-600 font-semibold'>Inner Critic:</span> nữa.",
		got)

	// Only the first persona in catalog order is highlighted.
	got = c.Highlight("Calm Self: thở đi. Inner Child: vâng")
	assert.Contains(t, got, "<span class='text-red-600 font-semibold'>Inner Child:</span>")
	assert.NotContains(t, got, "<span class='text-red-600 font-semibold'>Calm Self:</span>")

	assert.Equal(t, "no labels here", c.Highlight("no labels here"))
}

func TestHighlightEscapesNames(t *testing.T) {
	c, err := New([]Persona{{ID: "q", Name: "Why?"}})
	require.NoError(t, err)
	assert.Equal(t, "Why", c.Highlight("Why"))
	assert.Equal(t, "<span class='text-red-600 font-semibold'>Why?:</span> x", c.Highlight("Why?: x"))
}

func TestHighlightMatchesEscapedNames(t *testing.T) {
	c, err := New([]Persona{{ID: "rr", Name: "Rock & Roll <3"}})
	require.NoError(t, err)

	escaped := html.EscapeString("Rock & Roll <3: hey")
	assert.Equal(t,
		"<span class='text-red-600 font-semibold'>Rock &amp; Roll &lt;3:</span> hey",
		c.Highlight(escaped))
}
