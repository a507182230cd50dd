// Package memstore is the in-memory Store backend (C5): a capacity-
// capped spi -> SA map. GetOperational does a linear scan, which the
// spec accepts since real stores hold O(10)-O(100) SAs.
package memstore

import (
	"sync"

	"github.com/nasa-itc/sdls/internal/sa"
)

// DefaultCapacity bounds how many SAs a single store may hold. The
// SPI namespace is 16-bit but no real deployment populates anywhere
// near that; this simply prevents unbounded growth from a misbehaving
// caller.
const DefaultCapacity = 4096

// Store is an in-memory, mutex-guarded Store implementation.
type Store struct {
	mu             sync.Mutex
	capacity       int
	entries        map[uint16]*sa.SecurityAssociation
	uniquePerMAPID bool
}

// New returns an empty in-memory store with DefaultCapacity.
func New() *Store {
	return NewWithCapacity(DefaultCapacity)
}

// NewWithCapacity returns an empty in-memory store bounded to cap.
func NewWithCapacity(cap int) *Store {
	return &Store{capacity: cap, entries: make(map[uint16]*sa.SecurityAssociation), uniquePerMAPID: true}
}

// SetUniqueSAPerMAPID controls whether MAPID participates in the
// Operational-uniqueness scope (gvcid_tc, mapid) checked by SetState.
// When false, the scope narrows to gvcid_tc alone, so at most one
// Operational SA may exist per GVCID regardless of MAPID. Defaults to
// true, matching the behavior before this flag existed.
func (s *Store) SetUniqueSAPerMAPID(unique bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uniquePerMAPID = unique
}

func cloneSA(s *sa.SecurityAssociation) *sa.SecurityAssociation {
	cp := *s
	cp.IV = append([]byte(nil), s.IV...)
	cp.ARC = append([]byte(nil), s.ARC...)
	cp.ABM = append([]byte(nil), s.ABM...)
	if s.MAPID != nil {
		m := *s.MAPID
		cp.MAPID = &m
	}
	return &cp
}

func sameGVCID(a sa.GVCID, b sa.GVCID) bool {
	return a.TFVN == b.TFVN && a.SCID == b.SCID && a.VCID == b.VCID
}

func sameMapID(a, b *uint8) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func (s *Store) GetBySPI(spi uint16) (*sa.SecurityAssociation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[spi]
	if !ok {
		return nil, sa.ErrNotFound
	}
	return cloneSA(entry), nil
}

func (s *Store) GetOperational(gvcid sa.GVCID, mapid *uint8) (*sa.SecurityAssociation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries {
		if entry.State == sa.Operational && sameGVCID(entry.GVCIDTC, gvcid) && sameMapID(entry.MAPID, mapid) {
			return cloneSA(entry), nil
		}
	}
	return nil, sa.ErrNotFound
}

func (s *Store) GetAnyForGVCID(gvcid sa.GVCID) (*sa.SecurityAssociation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *sa.SecurityAssociation
	for _, entry := range s.entries {
		if sameGVCID(entry.GVCIDTC, gvcid) && (found == nil || entry.SPI < found.SPI) {
			found = entry
		}
	}
	if found == nil {
		return nil, sa.ErrNotFound
	}
	return cloneSA(found), nil
}

func (s *Store) Save(update *sa.SecurityAssociation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[update.SPI]
	if !ok {
		return sa.ErrNotFound
	}
	entry.IV = append([]byte(nil), update.IV...)
	entry.ARC = append([]byte(nil), update.ARC...)
	return nil
}

func (s *Store) Create(newSA *sa.SecurityAssociation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[newSA.SPI]; exists {
		return sa.ErrDuplicate
	}
	if len(s.entries) >= s.capacity {
		return sa.ErrStoreUnavailable
	}
	s.entries[newSA.SPI] = cloneSA(newSA)
	return nil
}

func (s *Store) Delete(spi uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[spi]; !ok {
		return sa.ErrNotFound
	}
	delete(s.entries, spi)
	return nil
}

func (s *Store) SetState(spi uint16, newState sa.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[spi]
	if !ok {
		return sa.ErrNotFound
	}
	if newState == sa.Operational {
		for otherSPI, other := range s.entries {
			if otherSPI == spi {
				continue
			}
			if other.State != sa.Operational || !sameGVCID(other.GVCIDTC, entry.GVCIDTC) {
				continue
			}
			if !s.uniquePerMAPID || sameMapID(other.MAPID, entry.MAPID) {
				return sa.ErrInvalidTransition
			}
		}
	}
	entry.State = newState
	return nil
}

func (s *Store) SetARSN(spi uint16, arc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[spi]
	if !ok {
		return sa.ErrNotFound
	}
	entry.ARC = append([]byte(nil), arc...)
	return nil
}

func (s *Store) SetARSNW(spi uint16, arcw uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[spi]
	if !ok {
		return sa.ErrNotFound
	}
	entry.ARCW = arcw
	return nil
}

func (s *Store) Rekey(spi uint16, ekid, akid uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[spi]
	if !ok {
		return sa.ErrNotFound
	}
	entry.EKID = ekid
	entry.AKID = akid
	entry.State = sa.Keyed
	return nil
}

func (s *Store) Expire(spi uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[spi]
	if !ok {
		return sa.ErrNotFound
	}
	entry.State = sa.Unkeyed
	entry.EKID = 0
	entry.AKID = 0
	return nil
}

func (s *Store) List() ([]*sa.SecurityAssociation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*sa.SecurityAssociation, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, cloneSA(entry))
	}
	return out, nil
}
