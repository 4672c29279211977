// Package personas holds the catalog of inner selves a user can talk to.
package personas

import (
	"errors"
	"fmt"
	"html"
	"os"
	"strings"

	"github.com/dlclark/regexp2"
	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt is sent when a persona has no prompt of its own.
const DefaultSystemPrompt = "Bạn là một người bạn đồng hành đầy cảm xúc."

var (
	ErrDuplicateID = errors.New("duplicate persona id")
	ErrEmptyID     = errors.New("persona id is empty")
)

type Persona struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Style  string `json:"style" yaml:"style"`
	Prompt string `json:"prompt,omitempty" yaml:"prompt"`
}

// SystemPrompt returns the prompt, or DefaultSystemPrompt when it is blank.
func (p *Persona) SystemPrompt() string {
	if strings.TrimSpace(p.Prompt) == "" {
		return DefaultSystemPrompt
	}
	return p.Prompt
}

// Catalog is an ordered, read-only set of personas.
type Catalog struct {
	list []*Persona
	byID map[string]*Persona
}

// New builds a catalog, keeping the given order.
func New(list []Persona) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]*Persona, len(list))}
	for i := range list {
		p := list[i]
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("persona %d: %w", i, ErrEmptyID)
		}
		if _, exists := c.byID[p.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, p.ID)
		}
		if p.Name == "" {
			p.Name = p.ID
		}
		c.list = append(c.list, &p)
		c.byID[p.ID] = &p
	}
	return c, nil
}

// Default returns the four built-in personas.
func Default() *Catalog {
	c, err := New([]Persona{
		{
			ID:     "inner-child",
			Name:   "Inner Child",
			Style:  "bg-pink-200",
			Prompt: "Bạn là đứa trẻ bên trong tôi. Hãy nói chuyện bằng sự ngây thơ, cảm xúc và thật lòng.",
		},
		{
			ID:     "inner-critic",
			Name:   "Inner Critic",
			Style:  "bg-red-200",
			Prompt: "Bạn là tiếng nói nội tâm chỉ trích. Hãy trả lời như một người thẳng thắn, khắt khe và luôn đòi hỏi bản thân tốt hơn.",
		},
		{
			ID:     "future-self",
			Name:   "Future Self",
			Style:  "bg-blue-200",
			Prompt: "Bạn là tôi của 5 năm sau. Hãy trả lời như một người điềm tĩnh, đã vượt qua khó khăn và hiểu bản thân.",
		},
		{
			ID:     "calm-self",
			Name:   "Calm Self",
			Style:  "bg-green-200",
			Prompt: "Bạn là bản thể bình an trong tôi. Hãy trả lời nhẹ nhàng, mang tính chữa lành, không phán xét.",
		},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads a YAML file with a top-level "personas" list.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read personas file: %w", err)
	}

	var file struct {
		Personas []Persona `yaml:"personas"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(file.Personas) == 0 {
		return nil, fmt.Errorf("%s defines no personas", path)
	}
	return New(file.Personas)
}

func (c *Catalog) Get(id string) (*Persona, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// List returns the personas in configured order.
func (c *Catalog) List() []*Persona {
	out := make([]*Persona, len(c.list))
	copy(out, c.list)
	return out
}

func (c *Catalog) Names() []string {
	names := make([]string, len(c.list))
	for i, p := range c.list {
		names[i] = p.Name
	}
	return names
}

func (c *Catalog) Len() int { return len(c.list) }

// Highlight wraps every "Name:" label of the first persona found in text.
// text is HTML-escaped, so labels are matched in their escaped form.
func (c *Catalog) Highlight(text string) string {
	for _, p := range c.list {
		label := html.EscapeString(p.Name + ":")
		re := regexp2.MustCompile("("+regexp2.Escape(label)+")", regexp2.None)
		if ok, _ := re.MatchString(text); !ok {
			continue
		}
		out, err := re.Replace(text, "<span class='text-red-600 font-semibold'>$1</span>", -1, -1)
		if err != nil {
			return text
		}
		return out
	}
	return text
}
