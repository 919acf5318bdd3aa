package rpc

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// JSON-RPC request/response types

type Request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// contextResult wraps results that carry the slot they were read at.
type contextResult[T any] struct {
	Context struct {
		Slot int64 `json:"slot"`
	} `json:"context"`
	Value T `json:"value"`
}

// getLatestBlockhash response
type BlockhashResult struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// getSignatureStatuses response entry; nil when the signature is unknown.
type SignatureStatus struct {
	Slot               int64       `json:"slot"`
	Confirmations      *int64      `json:"confirmations"`
	Err                interface{} `json:"err"`
	ConfirmationStatus string      `json:"confirmationStatus"`
}

// Confirmed reports whether the status reached confirmed or finalized.
func (s *SignatureStatus) Confirmed() bool {
	return s != nil && (s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized")
}

// getAccountInfo / getProgramAccounts account payload with base64 data.
type AccountInfo struct {
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	Data       []string `json:"data"`
	Executable bool     `json:"executable"`
	RentEpoch  uint64   `json:"rentEpoch"`
}

// Bytes decodes the base64 account data.
func (a *AccountInfo) Bytes() ([]byte, error) {
	if len(a.Data) == 0 {
		return nil, nil
	}
	if len(a.Data) > 1 && a.Data[1] != "base64" {
		return nil, fmt.Errorf("unsupported account encoding %q", a.Data[1])
	}
	b, err := base64.StdEncoding.DecodeString(a.Data[0])
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	return b, nil
}

type KeyedAccount struct {
	Pubkey  string      `json:"pubkey"`
	Account AccountInfo `json:"account"`
}

// Filter is a getProgramAccounts filter. Set exactly one of Memcmp or
// DataSize.
type Filter struct {
	Memcmp   *Memcmp `json:"memcmp,omitempty"`
	DataSize uint64  `json:"dataSize,omitempty"`
}

// Memcmp matches Bytes (base58) at Offset.
type Memcmp struct {
	Offset uint64 `json:"offset"`
	Bytes  string `json:"bytes"`
}
