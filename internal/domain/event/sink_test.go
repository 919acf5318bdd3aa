package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSink struct{ err error }

func (f failingSink) Publish(context.Context, []Transition) error { return f.err }

func TestMultiSink_DeliversToAllAndJoinsErrors(t *testing.T) {
	var a, b Buffer
	boom := errors.New("boom")
	sink := MultiSink{&a, failingSink{err: boom}, &b}

	tr := NewTransition("org_init", RecordKindOrgConfig, solana.PublicKey{}, solana.PublicKey{}, time.Now())
	err := sink.Publish(context.Background(), []Transition{tr})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"org_init"}, a.Ops())
	assert.Equal(t, []string{"org_init"}, b.Ops())
}

func TestNewTransition_AssignsIDAndUTC(t *testing.T) {
	loc := time.FixedZone("KST", 9*3600)
	at := time.Date(2025, 1, 1, 9, 0, 0, 0, loc)

	a := NewTransition("close_invoice", RecordKindInvoice, solana.PublicKey{}, solana.PublicKey{}, at)
	b := NewTransition("close_invoice", RecordKindInvoice, solana.PublicKey{}, solana.PublicKey{}, at)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, time.UTC, a.At.Location())
	assert.True(t, a.At.Equal(at))
}
