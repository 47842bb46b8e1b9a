// Package catalog holds the prompt templates offered to users: the built-in
// seed set plus templates users add at runtime, persisted to a JSON file.
package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/segmentio/ksuid"

	"atelier/pkg/utils"
)

type Kind string

const (
	// KindCreative templates are system prompts for the writing assistant.
	KindCreative Kind = "creative"
	// KindImage templates are example prompts for image generation.
	KindImage Kind = "image"
	// KindArticle templates are long-form writing prompts.
	KindArticle Kind = "article"
	// KindCode templates are prompts for generating code.
	KindCode Kind = "code"
)

// CreativeCategories is the fixed category set for creative templates, in
// display order.
var CreativeCategories = []string{"内容分析", "个人IP", "文章创作", "营销文案", "销售成交"}

var (
	ErrNotFound = errors.New("catalog: template not found")
	ErrBuiltin  = errors.New("catalog: built-in templates cannot be deleted")
	ErrInvalid  = errors.New("catalog: invalid template")
)

type Template struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Category    string `json:"category"`

	SystemPrompt string `json:"systemPrompt,omitempty"`
	Placeholder  string `json:"placeholder,omitempty"`

	Model    string `json:"model,omitempty"`
	PromptZh string `json:"promptZh,omitempty"`
	PromptEn string `json:"promptEn,omitempty"`
	Source   string `json:"source,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`

	Builtin   bool      `json:"builtin"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// Validate checks the fields a template of its kind needs.
func (t *Template) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}
	switch t.Kind {
	case KindCreative:
		if strings.TrimSpace(t.SystemPrompt) == "" {
			return fmt.Errorf("%w: systemPrompt is required", ErrInvalid)
		}
		if !slices.Contains(CreativeCategories, t.Category) {
			return fmt.Errorf("%w: unknown category %q", ErrInvalid, t.Category)
		}
	case KindImage, KindArticle, KindCode:
		if strings.TrimSpace(t.PromptZh) == "" && strings.TrimSpace(t.PromptEn) == "" {
			return fmt.Errorf("%w: promptZh or promptEn is required", ErrInvalid)
		}
		if strings.TrimSpace(t.Category) == "" {
			return fmt.Errorf("%w: category is required", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalid, t.Kind)
	}
	return nil
}

//go:embed seed.json
var seedJSON []byte

type Store struct {
	mu   sync.RWMutex
	path string
	seed []Template
	user []Template

	dirty bool
	now   func() time.Time
}

// Open loads the built-in templates and any user templates saved at path.
// A missing file is an empty user set.
func Open(path string) (*Store, error) {
	var seed []Template
	if err := json.Unmarshal(seedJSON, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed templates: %w", err)
	}
	for i := range seed {
		seed[i].Builtin = true
	}

	s := &Store{path: path, seed: seed, now: time.Now}
	if path == "" {
		return s, nil
	}

	user, err := utils.Load[[]Template](path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("loading %s: %w", path, err)
	default:
		for i := range user {
			user[i].Builtin = false
		}
		s.user = user
	}

	log.Info("Loaded prompt templates", "builtin", len(s.seed), "user", len(s.user))
	return s, nil
}

// List returns templates of kind (all kinds when empty) in category (all
// categories when empty), built-ins first.
func (s *Store) List(kind Kind, category string) []Template {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Template, 0, len(s.seed)+len(s.user))
	for _, t := range slices.Concat(s.seed, s.user) {
		if kind != "" && t.Kind != kind {
			continue
		}
		if category != "" && t.Category != category {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (s *Store) Get(id string) (Template, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range slices.Concat(s.seed, s.user) {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}

// Create validates t, assigns it an id and persists it as a user template.
func (s *Store) Create(t Template) (Template, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Kind == "" {
		t.Kind = KindCreative
	}
	if err := t.Validate(); err != nil {
		return Template{}, err
	}

	t.ID = ksuid.New().String()
	t.Builtin = false
	t.CreatedAt = s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = append(s.user, t)
	s.dirty = true
	if err := s.saveLocked(); err != nil {
		log.Warn("saving prompt templates", "error", err)
	}
	return t, nil
}

// Delete removes a user template.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.ContainsFunc(s.seed, func(t Template) bool { return t.ID == id }) {
		return ErrBuiltin
	}
	i := slices.IndexFunc(s.user, func(t Template) bool { return t.ID == id })
	if i < 0 {
		return ErrNotFound
	}
	s.user = slices.Delete(s.user, i, i+1)
	s.dirty = true
	if err := s.saveLocked(); err != nil {
		log.Warn("saving prompt templates", "error", err)
	}
	return nil
}

// Categories lists the categories in use for kind. Creative templates always
// report the fixed set.
func (s *Store) Categories(kind Kind) []string {
	if kind == KindCreative {
		return slices.Clone(CreativeCategories)
	}

	var out []string
	for _, t := range s.List(kind, "") {
		if t.Category != "" && !slices.Contains(out, t.Category) {
			out = append(out, t.Category)
		}
	}
	return out
}

// Save writes the user templates when they changed since the last save.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if !s.dirty || s.path == "" {
		return nil
	}
	if err := utils.Save(s.path, s.user); err != nil {
		return err
	}
	s.dirty = false
	return nil
}
