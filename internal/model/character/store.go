package character

import (
	"sort"
	"strings"
	"sync"
)

// Store exposes character lookup to the services and HTTP handlers.
type Store interface {
	List() []Character
	FindByID(id string) (Character, bool)
	Search(query, category string) []Character
	Categories() []string
}

// MemoryStore implements Store over an in-memory slice kept in insertion order.
type MemoryStore struct {
	mu    sync.RWMutex
	items []Character
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied characters.
func NewMemoryStore(items []Character) *MemoryStore {
	return &MemoryStore{items: append([]Character(nil), items...)}
}

// List returns every character.
func (s *MemoryStore) List() []Character {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Character(nil), s.items...)
}

// FindByID looks up a character by identifier.
func (s *MemoryStore) FindByID(id string) (Character, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Character{}, false
}

// Search matches query against name, description and skills, optionally within one category.
func (s *MemoryStore) Search(query, category string) []Character {
	query = strings.ToLower(strings.TrimSpace(query))
	category = strings.TrimSpace(category)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Character
	for _, item := range s.items {
		if category != "" && item.Category != category {
			continue
		}
		if query != "" && !matches(item, query) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// Categories returns the distinct categories, sorted.
func (s *MemoryStore) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(s.items))
	var out []string
	for _, item := range s.items {
		if item.Category == "" {
			continue
		}
		if _, ok := seen[item.Category]; ok {
			continue
		}
		seen[item.Category] = struct{}{}
		out = append(out, item.Category)
	}
	sort.Strings(out)
	return out
}

func matches(c Character, query string) bool {
	if strings.Contains(strings.ToLower(c.Name), query) ||
		strings.Contains(strings.ToLower(c.Description), query) {
		return true
	}
	for _, skill := range c.Skills {
		if strings.Contains(strings.ToLower(skill), query) {
			return true
		}
	}
	return false
}
