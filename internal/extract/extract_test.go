package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)

const sampleInvoice = `INVOICE #0042
Issued March 1, 2025

Bill to
  
billing@acme.example
Acme Corp
12 Harbour Road

Total $1234.56 due April 15, 2025
`

func TestParse_SampleInvoice(t *testing.T) {
	fields, err := Parse(sampleInvoice, testNow)
	require.NoError(t, err)

	assert.Equal(t, "Acme Corp", fields.Vendor)
	assert.Equal(t, uint64(1_234_560_000), fields.Amount)
	// The first date in the text wins, and it is already past.
	assert.False(t, fields.DueDateFound)
	assert.Equal(t, testNow.Add(FallbackDueIn).Unix(), fields.DueDate)
}

func TestParse_MissingAmount(t *testing.T) {
	_, err := Parse("Bill to\nAcme Corp\nTotal: 12.00", testNow)
	assert.ErrorIs(t, err, ErrAmountNotFound)
}

func TestVendor(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "line after marker", text: "Bill to\nJane Roe\n", want: "Jane Roe"},
		{name: "rest of marker line ignored", text: "Bill to: Someone Else\nJane Roe", want: "Jane Roe"},
		{name: "skips email and blank lines", text: "Bill to\n\n  \njane@example.com\n  Roe Holdings  \n", want: "Roe Holdings"},
		{name: "windows line endings", text: "Bill to\r\nJane Roe\r\n", want: "Jane Roe"},
		{name: "marker with nothing after", text: "Bill to\n\nx@y.z", want: UnknownVendor},
		{name: "capitalized name fallback", text: "payable to Maria Lopez by friday", want: "Maria Lopez"},
		{name: "nothing found", text: "total 12 usd", want: UnknownVendor},
		{name: "multi-byte name", text: "Bill to\nZoë Café\n", want: "Zoë Café"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Vendor(tt.text))
		})
	}
}

func TestAmount(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    uint64
		wantErr bool
	}{
		{name: "simple", text: "$12.50 due", want: 12_500_000},
		{name: "cents only", text: "$0.01 due", want: 10_000},
		{name: "whitespace before due", text: "$100.00\n due today", want: 100_000_000},
		{name: "first match wins", text: "$1.00 due now, $2.00 due later", want: 1_000_000},
		{name: "not followed by due", text: "$12.50 total", wantErr: true},
		{name: "one decimal", text: "$12.5 due", wantErr: true},
		{name: "too large", text: "$99999999999999999999.00 due", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Amount(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDueDate(t *testing.T) {
	fallback := testNow.Add(FallbackDueIn).Unix()
	tests := []struct {
		name      string
		text      string
		want      int64
		wantFound bool
	}{
		{name: "future date", text: "due April 15, 2025", want: time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC).Unix(), wantFound: true},
		{name: "single digit day", text: "Due: June 3, 2026", want: time.Date(2026, 6, 3, 0, 0, 0, 0, time.UTC).Unix(), wantFound: true},
		{name: "past date", text: "January 2, 2024", want: fallback},
		{name: "today is not future", text: "March 3, 2025", want: fallback},
		{name: "impossible date", text: "February 30, 2026", want: fallback},
		{name: "missing", text: "due on receipt", want: fallback},
		{name: "abbreviated month", text: "Apr 15, 2025", want: fallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := DueDate(tt.text, testNow)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantFound, found)
		})
	}
}
