package store

import (
	"context"
	"sort"
	"sync"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// MemoryStore is an in-process RecordStore. Update calls are serialized by a
// single writer lock, so every transaction sees the effects of all earlier
// ones.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[solana.PublicKey]Account
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[solana.PublicKey]Account)}
}

func (s *MemoryStore) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memTx{base: s.accounts, readOnly: true})
}

func (s *MemoryStore) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{base: s.accounts, overlay: make(map[solana.PublicKey]*Account)}
	if err := fn(tx); err != nil {
		return err
	}
	for key, acc := range tx.overlay {
		if acc == nil {
			delete(s.accounts, key)
			continue
		}
		s.accounts[key] = *acc
	}
	return nil
}

func (s *MemoryStore) List(ctx context.Context, disc bin.TypeID) ([]Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Account
	for _, acc := range s.accounts {
		if acc.Discriminator() == disc {
			out = append(out, cloneAccount(acc))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

// Len returns the number of live records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

type memTx struct {
	base     map[solana.PublicKey]Account
	overlay  map[solana.PublicKey]*Account // nil value marks a delete
	readOnly bool
}

func (t *memTx) lookup(key solana.PublicKey) (Account, bool) {
	if acc, ok := t.overlay[key]; ok {
		if acc == nil {
			return Account{}, false
		}
		return *acc, true
	}
	acc, ok := t.base[key]
	return acc, ok
}

func (t *memTx) Get(key solana.PublicKey) (Account, error) {
	acc, ok := t.lookup(key)
	if !ok {
		return Account{}, ErrNotFound
	}
	return cloneAccount(acc), nil
}

func (t *memTx) Create(key solana.PublicKey, data []byte, deposit uint64) error {
	if t.readOnly {
		return ErrReadOnly
	}
	if _, ok := t.lookup(key); ok {
		return ErrAlreadyExists
	}
	t.overlay[key] = &Account{Key: key, Data: cloneBytes(data), Deposit: deposit}
	return nil
}

func (t *memTx) Put(key solana.PublicKey, data []byte) error {
	if t.readOnly {
		return ErrReadOnly
	}
	acc, ok := t.lookup(key)
	if !ok {
		return ErrNotFound
	}
	acc.Data = cloneBytes(data)
	t.overlay[key] = &acc
	return nil
}

func (t *memTx) Delete(key solana.PublicKey) (uint64, error) {
	if t.readOnly {
		return 0, ErrReadOnly
	}
	acc, ok := t.lookup(key)
	if !ok {
		return 0, ErrNotFound
	}
	t.overlay[key] = nil
	return acc.Deposit, nil
}

func cloneAccount(a Account) Account {
	a.Data = cloneBytes(a.Data)
	return a
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
