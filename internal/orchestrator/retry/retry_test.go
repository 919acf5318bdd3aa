package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/emperorhan/invoice-oracle/internal/ledger/solana/rpc"
	"github.com/emperorhan/invoice-oracle/internal/protocol"
)

func TestClassify_ExplicitMarkers(t *testing.T) {
	transient := Classify(Transient(errors.New("rpc timed out")))
	assert.Equal(t, ClassTransient, transient.Class)
	assert.Equal(t, "explicit_transient", transient.Reason)

	terminal := Classify(Terminal(errors.New("invalid params")))
	assert.Equal(t, ClassTerminal, terminal.Class)
	assert.Equal(t, "explicit_terminal", terminal.Reason)
}

func TestClassify_RepresentativeRuntimeErrors(t *testing.T) {
	testCases := []struct {
		name          string
		err           error
		expectedClass Class
	}{
		{
			name:          "protocol rejection terminal",
			err:           fmt.Errorf("submit: %w", &protocol.Error{Kind: protocol.KindCapacity, Code: protocol.CodeCapExceeded}),
			expectedClass: ClassTerminal,
		},
		{
			name:          "context deadline transient",
			err:           context.DeadlineExceeded,
			expectedClass: ClassTransient,
		},
		{
			name:          "context canceled terminal",
			err:           context.Canceled,
			expectedClass: ClassTerminal,
		},
		{
			name:          "node behind transient",
			err:           fmt.Errorf("sendTransaction: %w", &rpc.RPCError{Code: -32005, Message: "Node is behind"}),
			expectedClass: ClassTransient,
		},
		{
			name:          "simulation failure terminal",
			err:           &rpc.RPCError{Code: -32002, Message: "Transaction simulation failed: custom program error: 0x1771"},
			expectedClass: ClassTerminal,
		},
		{
			name:          "ocr rate limited transient",
			err:           errors.New("ocr: http status 429: too many requests"),
			expectedClass: ClassTransient,
		},
		{
			name:          "breaker open transient",
			err:           errors.New("ocr: circuit breaker is open"),
			expectedClass: ClassTransient,
		},
		{
			name:          "unknown defaults terminal",
			err:           errors.New("unexpected failure"),
			expectedClass: ClassTerminal,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			decision := Classify(tc.err)
			assert.Equal(t, tc.expectedClass, decision.Class)
		})
	}
}

func TestClassify_ProtocolReasonNamesCode(t *testing.T) {
	d := Classify(&protocol.Error{Code: protocol.CodeOrgPaused})
	assert.Equal(t, "protocol_orgpaused", d.Reason)
	assert.False(t, d.IsTransient())
}
