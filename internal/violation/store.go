package violation

import (
	"errors"
	"sync"
)

var (
	// ErrNotFound is returned when no record exists for the serial number.
	ErrNotFound = errors.New("violation not found")
	// ErrExists is returned by Insert when a record already exists.
	ErrExists = errors.New("violation already exists")
)

// Store is a keyed table of violation records. Values are copied on the way
// in and on the way out, so callers never share memory with the table.
type Store struct {
	mu      sync.RWMutex
	records map[string]*Violation
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{records: make(map[string]*Violation)}
}

// Insert adds a new record.
func (s *Store) Insert(id string, v Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; ok {
		return ErrExists
	}
	c := v.Clone()
	s.records[id] = &c
	return nil
}

// Delete removes a record and reports whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false
	}
	delete(s.records, id)
	return true
}

// Has reports whether a record exists.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok
}

// Get returns a copy of a record.
func (s *Store) Get(id string) (Violation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.records[id]
	if !ok {
		return Violation{}, false
	}
	return v.Clone(), true
}

// GetAll returns a copy of every record keyed by serial number.
func (s *Store) GetAll() map[string]Violation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Violation, len(s.records))
	for id, v := range s.records {
		out[id] = v.Clone()
	}
	return out
}

// Count returns the number of records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// SetField overwrites a single field.
func (s *Store) SetField(id string, f Field, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	c := v.Clone()
	if err := c.set(f, value); err != nil {
		return err
	}
	s.records[id] = &c
	return nil
}

// UpdateField is the single-field form of Update and behaves like SetField.
func (s *Store) UpdateField(id string, f Field, value any) error {
	return s.SetField(id, f, value)
}

// Update merges a partial record into an existing one.
func (s *Store) Update(id string, p Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	p.apply(v)
	return nil
}

// Upsert inserts v when absent and merges it into the existing record
// otherwise. It reports whether a new record was created.
func (s *Store) Upsert(id string, v Violation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.records[id]; ok {
		PatchOf(v).apply(cur)
		return false
	}
	c := v.Clone()
	s.records[id] = &c
	return true
}

// Drop removes every record.
func (s *Store) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*Violation)
}

// snapshot copies the table so callbacks can run without holding the lock.
func (s *Store) snapshot() ([]string, map[string]Violation) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	recs := make(map[string]Violation, len(s.records))
	for id, v := range s.records {
		ids = append(ids, id)
		recs[id] = v.Clone()
	}
	return ids, recs
}

// ForEach calls fn once per record present when ForEach was called. fn may
// modify the store.
func (s *Store) ForEach(fn func(id string, v Violation)) {
	ids, recs := s.snapshot()
	for _, id := range ids {
		fn(id, recs[id])
	}
}

// Where calls fn for every record of the current snapshot matching pred.
// fn may modify the store, including deleting the record it was handed.
func (s *Store) Where(pred func(id string, v Violation) bool, fn func(id string, v Violation)) {
	ids, recs := s.snapshot()
	for _, id := range ids {
		if v := recs[id]; pred(id, v) {
			fn(id, v)
		}
	}
}

// Find returns copies of the records matching pred.
func (s *Store) Find(pred func(id string, v Violation) bool) map[string]Violation {
	out := make(map[string]Violation)
	s.Where(pred, func(id string, v Violation) { out[id] = v })
	return out
}
