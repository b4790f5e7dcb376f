package country

import "strings"

// Store exposes the country catalogue for handlers and the chat service.
type Store interface {
	List() []Country
	Find(key string) (Country, bool)
	Default() (Country, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Country
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied countries.
func NewMemoryStore(items []Country) *MemoryStore {
	return &MemoryStore{items: append([]Country(nil), items...)}
}

// List returns the configured countries in display order.
func (s *MemoryStore) List() []Country {
	return append([]Country(nil), s.items...)
}

// Find matches either the identifier or the label, ignoring case.
func (s *MemoryStore) Find(key string) (Country, bool) {
	key = strings.TrimSpace(key)
	for _, item := range s.items {
		if strings.EqualFold(item.ID, key) || strings.EqualFold(item.Label, key) {
			return item, true
		}
	}
	return Country{}, false
}

// Default returns the first configured country.
func (s *MemoryStore) Default() (Country, bool) {
	if len(s.items) == 0 {
		return Country{}, false
	}
	return s.items[0], true
}
