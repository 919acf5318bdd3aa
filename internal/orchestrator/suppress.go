package orchestrator

import (
	"container/list"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
)

// suppressList remembers requests whose last attempt failed terminally, so
// the next cycles do not OCR the same document again until the entry
// expires. It is bounded; the least recently touched entry is evicted.
type suppressList struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[solana.PublicKey]*list.Element
	order    *list.List
	now      func() time.Time
}

type suppression struct {
	key       solana.PublicKey
	reason    string
	attempts  int
	expiresAt time.Time
}

// Suppression is an exported view of one entry.
type Suppression struct {
	Request   solana.PublicKey `json:"request"`
	Reason    string           `json:"reason"`
	Attempts  int              `json:"attempts"`
	ExpiresAt time.Time        `json:"expires_at"`
}

func newSuppressList(capacity int, ttl time.Duration) *suppressList {
	if capacity <= 0 {
		capacity = 1024
	}
	return &suppressList{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[solana.PublicKey]*list.Element, capacity),
		order:    list.New(),
		now:      time.Now,
	}
}

// Add suppresses key for the TTL. Adding an entry again extends it and
// counts the attempt.
func (s *suppressList) Add(key solana.PublicKey, reason string) {
	if s.ttl <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		s.order.MoveToFront(elem)
		e := elem.Value.(*suppression)
		e.reason = reason
		e.attempts++
		e.expiresAt = s.now().Add(s.ttl)
		return
	}

	if s.order.Len() >= s.capacity {
		if oldest := s.order.Back(); oldest != nil {
			s.remove(oldest)
		}
	}
	s.items[key] = s.order.PushFront(&suppression{
		key:       key,
		reason:    reason,
		attempts:  1,
		expiresAt: s.now().Add(s.ttl),
	})
}

// Suppressed reports whether key is suppressed, dropping it if expired.
func (s *suppressList) Suppressed(key solana.PublicKey) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return "", false
	}
	e := elem.Value.(*suppression)
	if s.now().After(e.expiresAt) {
		s.remove(elem)
		return "", false
	}
	return e.reason, true
}

func (s *suppressList) Forget(key solana.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.items[key]; ok {
		s.remove(elem)
	}
}

// List returns the live entries, most recent first.
func (s *suppressList) List() []Suppression {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make([]Suppression, 0, s.order.Len())
	for elem := s.order.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*suppression)
		if now.After(e.expiresAt) {
			continue
		}
		out = append(out, Suppression{Request: e.key, Reason: e.reason, Attempts: e.attempts, ExpiresAt: e.expiresAt})
	}
	return out
}

func (s *suppressList) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *suppressList) remove(elem *list.Element) {
	s.order.Remove(elem)
	delete(s.items, elem.Value.(*suppression).key)
}
