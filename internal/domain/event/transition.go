package event

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// RecordKind names the record a transition touched.
type RecordKind string

const (
	RecordKindOrgConfig RecordKind = "org_config"
	RecordKindRequest   RecordKind = "request"
	RecordKindInvoice   RecordKind = "invoice"
	RecordKindVendor    RecordKind = "vendor"
)

// Transition is emitted after a protocol operation commits.
// From is empty when the record was created; To is empty when it was closed.
type Transition struct {
	ID       uuid.UUID        `json:"id"`
	Op       string           `json:"op"`
	Kind     RecordKind       `json:"kind"`
	Record   solana.PublicKey `json:"record"`
	Actor    solana.PublicKey `json:"actor"`
	Claimant solana.PublicKey `json:"claimant,omitempty"`
	From     string           `json:"from,omitempty"`
	To       string           `json:"to,omitempty"`
	Amount   uint64           `json:"amount,omitempty"`
	At       time.Time        `json:"at"`
}

// NewTransition stamps a transition with a fresh id.
func NewTransition(op string, kind RecordKind, record, actor solana.PublicKey, at time.Time) Transition {
	return Transition{
		ID:     uuid.New(),
		Op:     op,
		Kind:   kind,
		Record: record,
		Actor:  actor,
		At:     at.UTC(),
	}
}

// RandomnessRequest asks the randomness service to call back into the
// audit selector for one invoice.
type RandomnessRequest struct {
	Payer                 solana.PublicKey
	Invoice               solana.PublicKey
	OrgConfig             solana.PublicKey
	Queue                 solana.PublicKey
	CallerSeed            [32]byte
	CallbackDiscriminator [8]byte
}
