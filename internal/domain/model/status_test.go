package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvoiceStatus_String(t *testing.T) {
	assert.Equal(t, "ReadyForPayment", InvoiceStatusReadyForPayment.String())
	assert.Equal(t, "AuditPending", InvoiceStatusAuditPending.String())
	assert.Equal(t, "Validated", InvoiceStatusValidated.String())
	assert.Equal(t, "InEscrow", InvoiceStatusInEscrow.String())
	assert.Equal(t, "Paid", InvoiceStatusPaid.String())
	assert.Equal(t, "Unknown", InvoiceStatus(9).String())
}

func TestInvoiceStatus_WireOrder(t *testing.T) {
	// Persisted as the enum index; reordering breaks decoding of existing records.
	assert.Equal(t, InvoiceStatus(0), InvoiceStatusReadyForPayment)
	assert.Equal(t, InvoiceStatus(2), InvoiceStatusValidated)
	assert.Equal(t, InvoiceStatus(4), InvoiceStatusPaid)
}

func TestInvoiceStatus_Terminal(t *testing.T) {
	assert.True(t, InvoiceStatusPaid.IsTerminal())
	assert.False(t, InvoiceStatusInEscrow.IsTerminal())
	assert.False(t, InvoiceStatusValidated.IsTerminal())
}

func TestRequestStatus(t *testing.T) {
	assert.Equal(t, "Pending", RequestStatusPending.String())
	assert.Equal(t, "Completed", RequestStatusCompleted.String())
	assert.True(t, RequestStatusCompleted.IsTerminal())
	assert.False(t, RequestStatusPending.IsTerminal())
	assert.False(t, RequestStatus(7).Valid())
}

func TestDayIndex(t *testing.T) {
	assert.Equal(t, int64(0), DayIndex(86399))
	assert.Equal(t, int64(1), DayIndex(86400))
	assert.Equal(t, int64(19723), DayIndex(1704067200))
}
