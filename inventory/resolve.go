package inventory

import (
	"fmt"
	"strings"

	"github.com/warp/pantry-engine/generic"
)

// Ref points at an inventory item by ID, by name, or both. The ID wins when
// it still exists; the name is the fallback for items re-created by the user.
type Ref struct {
	ID   generic.ItemID
	Name string
}

func (r Ref) String() string {
	if r.ID != "" {
		return fmt.Sprintf("%s (%s)", r.Name, r.ID)
	}
	return r.Name
}

// MatchMode controls how far Resolve falls back.
type MatchMode int

const (
	// Strict: exact id, then case-insensitive exact name.
	Strict MatchMode = iota
	// Fuzzy: Strict, then substring in either direction.
	Fuzzy
)

type MatchKind string

const (
	MatchNone      MatchKind = ""
	MatchID        MatchKind = "id"
	MatchName      MatchKind = "name"
	MatchSubstring MatchKind = "substring"
)

// Resolve finds the item ref points at. Order: exact id -> exact name ->
// substring (Fuzzy only). The first item in insertion order wins ties.
func (s *Store) Resolve(ref Ref, mode MatchMode) (Item, MatchKind, bool) {
	idx, kind, ok := s.resolveIndex(ref, mode)
	if !ok {
		return Item{}, MatchNone, false
	}
	return s.items[idx], kind, true
}

func (s *Store) resolveIndex(ref Ref, mode MatchMode) (int, MatchKind, bool) {
	return resolve(s.items, ref, mode)
}

func resolve(items []Item, ref Ref, mode MatchMode) (int, MatchKind, bool) {
	if ref.ID != "" {
		for i, it := range items {
			if it.ID == ref.ID {
				return i, MatchID, true
			}
		}
	}

	name := strings.ToLower(strings.TrimSpace(ref.Name))
	if name == "" {
		return -1, MatchNone, false
	}
	for i, it := range items {
		if strings.ToLower(strings.TrimSpace(it.Name)) == name {
			return i, MatchName, true
		}
	}
	if mode == Strict {
		return -1, MatchNone, false
	}

	for i, it := range items {
		candidate := strings.ToLower(strings.TrimSpace(it.Name))
		if candidate == "" {
			continue
		}
		if strings.Contains(candidate, name) || strings.Contains(name, candidate) {
			return i, MatchSubstring, true
		}
	}
	return -1, MatchNone, false
}
