package registry

import (
	"fmt"
	"os"
	"sort"

	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
	"gopkg.in/yaml.v3"
)

// Registry resolves app codes to their profiles.
// It is safe for concurrent use because it is never mutated after construction.
type Registry struct {
	apps map[string]domain.AppProfile
}

// appEntry is one application in the YAML app table.
type appEntry struct {
	Name                string   `yaml:"name"`
	AllowedRequestTypes []string `yaml:"allowed_request_types"`
	RateLimit           string   `yaml:"rate_limit"`
	MaxTokens           int      `yaml:"max_tokens"`
	Temperature         *float64 `yaml:"temperature"`
}

type appTable struct {
	Apps map[string]appEntry `yaml:"apps"`
}

// New builds a registry from already validated profiles.
// Duplicate codes are rejected.
func New(profiles ...domain.AppProfile) (*Registry, error) {
	r := &Registry{apps: make(map[string]domain.AppProfile, len(profiles))}
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("app %q: %w", p.Code, err)
		}
		if _, dup := r.apps[p.Code]; dup {
			return nil, fmt.Errorf("%w: duplicate app code %q", domain.ErrValidation, p.Code)
		}
		r.apps[p.Code] = p
	}
	return r, nil
}

// Load reads the YAML app table at path. An empty path yields the defaults.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read app table: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML app table:
//
//	apps:
//	  flashcards_app_001:
//	    name: FlashCards App
//	    allowed_request_types: [generate_flashcard, explain_concept]
//	    rate_limit: 100/hour
//	    max_tokens: 1000
//	    temperature: 0.7
func Parse(data []byte) (*Registry, error) {
	var table appTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse app table: %w", err)
	}
	if len(table.Apps) == 0 {
		return nil, fmt.Errorf("%w: app table defines no apps", domain.ErrValidation)
	}

	profiles := make([]domain.AppProfile, 0, len(table.Apps))
	for code, entry := range table.Apps {
		limit, err := domain.ParseRateLimit(entry.RateLimit)
		if err != nil {
			return nil, fmt.Errorf("app %q: %w", code, err)
		}
		temperature := 0.7
		if entry.Temperature != nil {
			temperature = *entry.Temperature
		}
		p, err := domain.NewAppProfile(code, entry.Name, entry.AllowedRequestTypes, limit, entry.MaxTokens, temperature)
		if err != nil {
			return nil, fmt.Errorf("app %q: %w", code, err)
		}
		profiles = append(profiles, p)
	}
	return New(profiles...)
}

// Lookup returns the profile for code or domain.ErrUnknownApp.
func (r *Registry) Lookup(code string) (domain.AppProfile, error) {
	p, ok := r.apps[code]
	if !ok {
		return domain.AppProfile{}, domain.ErrUnknownApp
	}
	return p, nil
}

// List returns every profile sorted by code.
func (r *Registry) List() []domain.AppProfile {
	out := make([]domain.AppProfile, 0, len(r.apps))
	for _, p := range r.apps {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Len returns the number of registered apps.
func (r *Registry) Len() int {
	return len(r.apps)
}
