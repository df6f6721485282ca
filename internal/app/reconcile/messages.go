package reconcile

import "github.com/PabloGalante/vetassist/internal/domain"

// Messages is an ordered, deduplicated log of conversation entries.
//
// A Messages value is never modified after it is built: every mutation
// returns a new value. Entries that did not change keep their pointer
// identity so consumers can cheaply tell what moved.
type Messages struct {
	entries []*domain.ConversationEntry
	index   map[domain.EntryID]int
}

func NewMessages(entries ...domain.ConversationEntry) Messages {
	return Messages{}.ReplaceAll(entries)
}

func (m Messages) Len() int { return len(m.entries) }

// Lookup finds an entry by id in constant time.
func (m Messages) Lookup(id domain.EntryID) (*domain.ConversationEntry, bool) {
	i, ok := m.index[id]
	if !ok {
		return nil, false
	}
	return m.entries[i], true
}

// Entries returns a copy of the log for rendering.
func (m Messages) Entries() []domain.ConversationEntry {
	out := make([]domain.ConversationEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	return out
}

// Append adds e at the end. Appending an id that is already present is a no-op.
func (m Messages) Append(e domain.ConversationEntry) Messages {
	if _, exists := m.index[e.ID]; exists {
		return m
	}

	entries := make([]*domain.ConversationEntry, len(m.entries), len(m.entries)+1)
	copy(entries, m.entries)
	entries = append(entries, &e)

	index := make(map[domain.EntryID]int, len(m.index)+1)
	for k, v := range m.index {
		index[k] = v
	}
	index[e.ID] = len(entries) - 1

	return Messages{entries: entries, index: index}
}

// ReplaceAll sets the whole log in one step. Later duplicates of an id are dropped.
func (m Messages) ReplaceAll(entries []domain.ConversationEntry) Messages {
	out := Messages{
		entries: make([]*domain.ConversationEntry, 0, len(entries)),
		index:   make(map[domain.EntryID]int, len(entries)),
	}
	for i := range entries {
		e := entries[i]
		if _, dup := out.index[e.ID]; dup {
			continue
		}
		out.index[e.ID] = len(out.entries)
		out.entries = append(out.entries, &e)
	}
	return out
}

// Remove drops the entry with the given id, if present.
func (m Messages) Remove(id domain.EntryID) Messages {
	pos, ok := m.index[id]
	if !ok {
		return m
	}

	entries := make([]*domain.ConversationEntry, 0, len(m.entries)-1)
	entries = append(entries, m.entries[:pos]...)
	entries = append(entries, m.entries[pos+1:]...)

	return Messages{entries: entries, index: reindex(entries)}
}

// Replace swaps the entry with the given id for e, keeping its position.
// The new entry may carry a different id.
func (m Messages) Replace(id domain.EntryID, e domain.ConversationEntry) Messages {
	pos, ok := m.index[id]
	if !ok {
		return m
	}
	if other, exists := m.index[e.ID]; exists && other != pos {
		return m.Remove(id)
	}

	entries := make([]*domain.ConversationEntry, len(m.entries))
	copy(entries, m.entries)
	entries[pos] = &e

	if id == e.ID {
		return Messages{entries: entries, index: m.index}
	}
	return Messages{entries: entries, index: reindex(entries)}
}

func reindex(entries []*domain.ConversationEntry) map[domain.EntryID]int {
	index := make(map[domain.EntryID]int, len(entries))
	for i, e := range entries {
		index[e.ID] = i
	}
	return index
}
