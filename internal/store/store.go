// Package store defines the keyed record store the protocol runs on. A
// record is an opaque encoded value addressed by its derived key and carrying
// the deposit its creator paid to keep it live.
package store

import (
	"context"
	"errors"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrReadOnly      = errors.New("write in read-only transaction")
)

const (
	// accountStorageOverhead and lamportsPerByteYear mirror the ledger's
	// rent-exemption schedule.
	accountStorageOverhead = 128
	lamportsPerByteYear    = 3480
	exemptionYears         = 2
)

// RentExemptDeposit is the deposit required to keep a record of dataLen
// bytes live.
func RentExemptDeposit(dataLen int) uint64 {
	return uint64(accountStorageOverhead+dataLen) * lamportsPerByteYear * exemptionYears
}

// Account is a stored record with its key and deposit.
type Account struct {
	Key     solana.PublicKey
	Data    []byte
	Deposit uint64
}

// Discriminator returns the record type prefix, or the zero id for records
// shorter than a prefix.
func (a Account) Discriminator() bin.TypeID {
	if len(a.Data) < 8 {
		return bin.TypeID{}
	}
	return bin.TypeIDFromBytes(a.Data[:8])
}

// Tx is a view of the store inside one View or Update call.
type Tx interface {
	// Get returns ErrNotFound when no live record has key.
	Get(key solana.PublicKey) (Account, error)
	// Create returns ErrAlreadyExists when a live record has key.
	Create(key solana.PublicKey, data []byte, deposit uint64) error
	// Put replaces the data of a live record and returns ErrNotFound otherwise.
	Put(key solana.PublicKey, data []byte) error
	// Delete removes a live record and returns the deposit it held.
	Delete(key solana.PublicKey) (uint64, error)
}

// RecordStore runs transactions against the records.
type RecordStore interface {
	// View runs fn against a consistent snapshot. Writes fail with ErrReadOnly.
	View(ctx context.Context, fn func(Tx) error) error
	// Update runs fn atomically. If fn returns an error none of its writes
	// are applied.
	Update(ctx context.Context, fn func(Tx) error) error
	// List returns every record whose data starts with disc.
	List(ctx context.Context, disc bin.TypeID) ([]Account, error)
	Close() error
}
