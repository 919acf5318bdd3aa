// Package local is a ledger backend that executes instructions against the
// in-process protocol engine.
package local

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/emperorhan/invoice-oracle/internal/protocol"
	"github.com/emperorhan/invoice-oracle/internal/store"
)

var ErrWrongProgram = errors.New("instruction addressed to another program")

type Backend struct {
	engine *protocol.Engine
	store  store.RecordStore
	seq    atomic.Uint64
}

func New(engine *protocol.Engine, s store.RecordStore) *Backend {
	return &Backend{engine: engine, store: s}
}

func (b *Backend) Name() string { return "local" }

// Submit dispatches each instruction in order and stops at the first
// rejection. Instructions that already applied stay applied. The returned
// signature is signer's signature over the payloads and a sequence number.
func (b *Backend) Submit(ctx context.Context, signer solana.PrivateKey, instructions ...solana.Instruction) (string, error) {
	if len(instructions) == 0 {
		return "", errors.New("no instructions")
	}
	programID := b.engine.Keys().ProgramID()
	var message []byte
	for i, ix := range instructions {
		if !ix.ProgramID().Equals(programID) {
			return "", fmt.Errorf("instruction %d: %w: %s", i, ErrWrongProgram, ix.ProgramID())
		}
		call, err := protocol.NewCall(signer.PublicKey(), ix)
		if err != nil {
			return "", fmt.Errorf("instruction %d: %w", i, err)
		}
		if _, err := b.engine.Dispatch(ctx, call); err != nil {
			return "", fmt.Errorf("instruction %d: %w", i, err)
		}
		message = append(message, call.Data...)
	}
	message = binary.LittleEndian.AppendUint64(message, b.seq.Add(1))

	sig, err := signer.Sign(message)
	if err != nil {
		return "", fmt.Errorf("sign receipt: %w", err)
	}
	return sig.String(), nil
}

func (b *Backend) Account(ctx context.Context, key solana.PublicKey) (store.Account, error) {
	var acc store.Account
	err := b.store.View(ctx, func(tx store.Tx) error {
		var err error
		acc, err = tx.Get(key)
		return err
	})
	return acc, err
}

func (b *Backend) Accounts(ctx context.Context, disc bin.TypeID) ([]store.Account, error) {
	return b.store.List(ctx, disc)
}
