package rpc

import (
	"context"
	"encoding/json"
	"fmt"
)

// GetSlot returns the current slot.
func (c *Client) GetSlot(ctx context.Context, commitment string) (int64, error) {
	params := []interface{}{
		map[string]string{"commitment": commitment},
	}
	result, err := c.call(ctx, "getSlot", params)
	if err != nil {
		return 0, fmt.Errorf("getSlot: %w", err)
	}

	var slot int64
	if err := json.Unmarshal(result, &slot); err != nil {
		return 0, fmt.Errorf("unmarshal slot: %w", err)
	}
	return slot, nil
}

// GetLatestBlockhash returns the blockhash new transactions should
// reference.
func (c *Client) GetLatestBlockhash(ctx context.Context, commitment string) (string, error) {
	params := []interface{}{
		map[string]string{"commitment": commitment},
	}
	result, err := c.call(ctx, "getLatestBlockhash", params)
	if err != nil {
		return "", fmt.Errorf("getLatestBlockhash: %w", err)
	}

	var out contextResult[BlockhashResult]
	if err := json.Unmarshal(result, &out); err != nil {
		return "", fmt.Errorf("unmarshal blockhash: %w", err)
	}
	return out.Value.Blockhash, nil
}

// SendTransaction submits a base64-encoded signed transaction and returns
// its signature.
func (c *Client) SendTransaction(ctx context.Context, encoded string) (string, error) {
	params := []interface{}{
		encoded,
		map[string]interface{}{
			"encoding":            "base64",
			"preflightCommitment": "confirmed",
		},
	}
	result, err := c.call(ctx, "sendTransaction", params)
	if err != nil {
		return "", fmt.Errorf("sendTransaction: %w", err)
	}

	var sig string
	if err := json.Unmarshal(result, &sig); err != nil {
		return "", fmt.Errorf("unmarshal signature: %w", err)
	}
	return sig, nil
}

// GetSignatureStatuses returns one status per signature, nil for
// signatures the node has not seen.
func (c *Client) GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error) {
	if len(signatures) == 0 {
		return []*SignatureStatus{}, nil
	}
	params := []interface{}{
		signatures,
		map[string]bool{"searchTransactionHistory": false},
	}
	result, err := c.call(ctx, "getSignatureStatuses", params)
	if err != nil {
		return nil, fmt.Errorf("getSignatureStatuses: %w", err)
	}

	var out contextResult[[]*SignatureStatus]
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("unmarshal signature statuses: %w", err)
	}
	return out.Value, nil
}

// GetAccountInfo returns the account at address, or nil when it does not
// exist.
func (c *Client) GetAccountInfo(ctx context.Context, address string) (*AccountInfo, error) {
	params := []interface{}{
		address,
		map[string]string{"encoding": "base64", "commitment": "confirmed"},
	}
	result, err := c.call(ctx, "getAccountInfo", params)
	if err != nil {
		return nil, fmt.Errorf("getAccountInfo(%s): %w", address, err)
	}

	var out contextResult[*AccountInfo]
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("unmarshal account info: %w", err)
	}
	return out.Value, nil
}

// GetProgramAccounts lists the accounts owned by program that match every
// filter.
func (c *Client) GetProgramAccounts(ctx context.Context, program string, filters []Filter) ([]KeyedAccount, error) {
	config := map[string]interface{}{
		"encoding":   "base64",
		"commitment": "confirmed",
	}
	if len(filters) > 0 {
		config["filters"] = filters
	}
	result, err := c.call(ctx, "getProgramAccounts", []interface{}{program, config})
	if err != nil {
		return nil, fmt.Errorf("getProgramAccounts(%s): %w", program, err)
	}

	var accounts []KeyedAccount
	if err := json.Unmarshal(result, &accounts); err != nil {
		return nil, fmt.Errorf("unmarshal program accounts: %w", err)
	}
	return accounts, nil
}
