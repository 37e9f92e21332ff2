package messaging

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(_ context.Context, rec Record) (Record, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
	return rec, nil
}

func (s *MemoryStore) FindByProviderID(_ context.Context, providerMessageID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if providerMessageID != "" && s.records[i].ProviderMessageID == providerMessageID {
			return s.records[i], nil
		}
	}
	return Record{}, ErrRecordNotFound
}

func (s *MemoryStore) CompareAndSetStatus(_ context.Context, id uuid.UUID, from, to Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			if s.records[i].Status != from {
				return false, nil
			}
			s.records[i].Status = to
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) ListByPhone(_ context.Context, phone string, limit int) ([]Record, error) {
	s.mu.RLock()
	var out []Record
	for _, rec := range s.records {
		if rec.FromNumber == phone || rec.ToNumber == phone {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()
	return newestFirst(out, 0, limit), nil
}

func (s *MemoryStore) List(_ context.Context, offset, limit int) ([]Record, error) {
	s.mu.RLock()
	out := append([]Record(nil), s.records...)
	s.mu.RUnlock()
	return newestFirst(out, offset, limit), nil
}

func (s *MemoryStore) Counts(_ context.Context) (Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := Counts{Total: int64(len(s.records))}
	for _, rec := range s.records {
		switch rec.Direction {
		case DirectionInbound:
			c.Inbound++
		case DirectionOutbound:
			c.Outbound++
		}
	}
	return c, nil
}

func newestFirst(recs []Record, offset, limit int) []Record {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Timestamp.After(recs[j].Timestamp)
	})
	if offset >= len(recs) {
		return []Record{}
	}
	recs = recs[offset:]
	if limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}
	return recs
}
