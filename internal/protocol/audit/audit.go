// Package audit decides whether a validated invoice is selected for audit.
// The decision is a pure function of externally supplied randomness, so any
// party holding the random value can replay it.
package audit

import (
	"encoding/binary"

	"github.com/emperorhan/invoice-oracle/internal/domain/model"
)

// Decision is the outcome of Classify.
type Decision uint8

const (
	ReadyForPayment Decision = iota
	Audit
)

func (d Decision) String() string {
	if d == Audit {
		return "Audit"
	}
	return "ReadyForPayment"
}

// Status is the invoice status the decision moves a Validated invoice to.
func (d Decision) Status() model.InvoiceStatus {
	if d == Audit {
		return model.InvoiceStatusAuditPending
	}
	return model.InvoiceStatusReadyForPayment
}

// Sample reduces the first eight bytes of random, read little-endian, into
// the basis-point range.
func Sample(random [32]byte) uint64 {
	return binary.LittleEndian.Uint64(random[:8]) % model.MaxAuditRateBps
}

// Classify selects an invoice for audit when its sample falls below rateBps.
func Classify(random [32]byte, rateBps uint16) Decision {
	if Sample(random) < uint64(rateBps) {
		return Audit
	}
	return ReadyForPayment
}
