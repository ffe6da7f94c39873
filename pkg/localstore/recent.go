package localstore

import (
	"strings"
	"sync"
)

const (
	// RecentSearchesKey is where recent searches are stored
	RecentSearchesKey = "recentSearches"

	// MaxRecentSearches caps the list
	MaxRecentSearches = 10
)

// RecentSearches is the most-recent-first list of search terms
type RecentSearches struct {
	store *Store
	mu    sync.Mutex
}

// NewRecentSearches wraps store
func NewRecentSearches(store *Store) *RecentSearches {
	return &RecentSearches{store: store}
}

// List returns the stored terms, most recent first
func (r *RecentSearches) List() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

// Push records term as the most recent search and returns the new list
func (r *RecentSearches) Push(term string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := r.load()
	if err != nil {
		return nil, err
	}
	list = pushRecent(list, term)
	if err := r.store.SetJSON(RecentSearchesKey, list); err != nil {
		return nil, err
	}
	return list, nil
}

// Clear forgets every recent search
func (r *RecentSearches) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Delete(RecentSearchesKey)
}

func (r *RecentSearches) load() ([]string, error) {
	var list []string
	if _, err := r.store.GetJSON(RecentSearchesKey, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// pushRecent moves term to the front, dropping duplicates and anything past the cap
func pushRecent(list []string, term string) []string {
	term = strings.TrimSpace(term)
	if term == "" {
		return list
	}
	out := make([]string, 0, MaxRecentSearches)
	out = append(out, term)
	for _, t := range list {
		if t == term {
			continue
		}
		if len(out) == MaxRecentSearches {
			break
		}
		out = append(out, t)
	}
	return out
}
