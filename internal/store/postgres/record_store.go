package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/lib/pq"

	"github.com/emperorhan/invoice-oracle/internal/store"
)

const (
	// pq error codes retried by Update.
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"

	maxUpdateAttempts = 5
)

// RecordStore is a store.RecordStore backed by the protocol_records table.
// Update runs at SERIALIZABLE isolation and transparently retries
// serialization failures.
type RecordStore struct {
	db     *DB
	logger *slog.Logger
}

var _ store.RecordStore = (*RecordStore)(nil)

func NewRecordStore(db *DB, logger *slog.Logger) *RecordStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordStore{db: db, logger: logger.With("component", "record_store")}
}

func (s *RecordStore) View(ctx context.Context, fn func(store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin view: %w", err)
	}
	defer sqlTx.Rollback() //nolint:errcheck

	return fn(&pgTx{ctx: ctx, tx: sqlTx, readOnly: true})
}

func (s *RecordStore) Update(ctx context.Context, fn func(store.Tx) error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxUpdateAttempts-1),
		ctx,
	)

	var fnErr error
	err := backoff.RetryNotify(func() error {
		fnErr = nil
		err := s.updateOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if isRetryableConflict(err) {
			return err
		}
		fnErr = err
		return backoff.Permanent(err)
	}, policy, func(err error, wait time.Duration) {
		s.logger.Debug("record update conflict, retrying", "error", err, "wait", wait)
	})
	if fnErr != nil {
		return fnErr
	}
	return err
}

func (s *RecordStore) updateOnce(ctx context.Context, fn func(store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer sqlTx.Rollback() //nolint:errcheck

	if err := fn(&pgTx{ctx: ctx, tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

func (s *RecordStore) List(ctx context.Context, disc bin.TypeID) ([]store.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT record_key, data, deposit
		FROM protocol_records
		WHERE discriminator = $1
		ORDER BY record_key
	`, disc[:])
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []store.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func (s *RecordStore) Close() error {
	return s.db.Close()
}

type pgTx struct {
	ctx      context.Context
	tx       *sql.Tx
	readOnly bool
}

func (t *pgTx) Get(key solana.PublicKey) (store.Account, error) {
	query := `SELECT record_key, data, deposit FROM protocol_records WHERE record_key = $1`
	if !t.readOnly {
		query += ` FOR UPDATE`
	}
	acc, err := scanAccount(t.tx.QueryRowContext(t.ctx, query, key[:]))
	if errors.Is(err, sql.ErrNoRows) {
		return store.Account{}, store.ErrNotFound
	}
	if err != nil {
		return store.Account{}, fmt.Errorf("get record %s: %w", key, err)
	}
	return acc, nil
}

func (t *pgTx) Create(key solana.PublicKey, data []byte, deposit uint64) error {
	if t.readOnly {
		return store.ErrReadOnly
	}
	res, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO protocol_records (record_key, discriminator, data, deposit)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (record_key) DO NOTHING
	`, key[:], discriminatorOf(data), data, int64(deposit))
	if err != nil {
		return fmt.Errorf("create record %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create record %s: %w", key, err)
	}
	if n == 0 {
		return store.ErrAlreadyExists
	}
	return nil
}

func (t *pgTx) Put(key solana.PublicKey, data []byte) error {
	if t.readOnly {
		return store.ErrReadOnly
	}
	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE protocol_records
		SET data = $2, discriminator = $3, updated_at = now()
		WHERE record_key = $1
	`, key[:], data, discriminatorOf(data))
	if err != nil {
		return fmt.Errorf("put record %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("put record %s: %w", key, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) Delete(key solana.PublicKey) (uint64, error) {
	if t.readOnly {
		return 0, store.ErrReadOnly
	}
	var (
		deposit int64
		disc    []byte
	)
	err := t.tx.QueryRowContext(t.ctx, `
		DELETE FROM protocol_records WHERE record_key = $1
		RETURNING deposit, discriminator
	`, key[:]).Scan(&deposit, &disc)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("delete record %s: %w", key, err)
	}
	if _, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO record_deposit_refunds (record_key, discriminator, deposit)
		VALUES ($1, $2, $3)
	`, key[:], disc, deposit); err != nil {
		return 0, fmt.Errorf("log refund %s: %w", key, err)
	}
	return uint64(deposit), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (store.Account, error) {
	var (
		rawKey  []byte
		data    []byte
		deposit int64
	)
	if err := row.Scan(&rawKey, &data, &deposit); err != nil {
		return store.Account{}, err
	}
	if len(rawKey) != solana.PublicKeyLength {
		return store.Account{}, fmt.Errorf("record key has %d bytes", len(rawKey))
	}
	return store.Account{
		Key:     solana.PublicKeyFromBytes(rawKey),
		Data:    data,
		Deposit: uint64(deposit),
	}, nil
}

func discriminatorOf(data []byte) []byte {
	if len(data) < 8 {
		return []byte{}
	}
	return data[:8]
}

func isRetryableConflict(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == codeSerializationFailure || pqErr.Code == codeDeadlockDetected
	}
	return false
}
