package solana

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/emperorhan/invoice-oracle/internal/codec"
	"github.com/emperorhan/invoice-oracle/internal/domain/model"
	"github.com/emperorhan/invoice-oracle/internal/keys"
	"github.com/emperorhan/invoice-oracle/internal/ledger"
	"github.com/emperorhan/invoice-oracle/internal/ledger/solana/rpc"
	rpcmocks "github.com/emperorhan/invoice-oracle/internal/ledger/solana/rpc/mocks"
	"github.com/emperorhan/invoice-oracle/internal/store"
)

const testBlockhash = "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N"

func newTestBackend(ctrl *gomock.Controller) (*Backend, *rpcmocks.MockRPCClient) {
	mockClient := rpcmocks.NewMockRPCClient(ctrl)
	backend := New(mockClient, keys.DefaultProgramID, Config{
		MaxRetries:      2,
		ConfirmTimeout:  time.Second,
		ConfirmInterval: 10 * time.Millisecond,
	}, slog.Default())
	return backend, mockClient
}

func testInstruction(t *testing.T, signer solanago.PublicKey) solanago.Instruction {
	t.Helper()
	b := ledger.NewBuilder(keys.NewDeriver(keys.DefaultProgramID), solanago.PublicKey{}, solanago.PublicKey{})
	ix, err := b.RequestExtraction(signer, "QmDoc", 10)
	require.NoError(t, err)
	return ix
}

func TestBackend_RPCClientContractParity(t *testing.T) {
	var _ rpc.RPCClient = (*rpc.Client)(nil)
	var _ rpc.RPCClient = (*rpcmocks.MockRPCClient)(nil)
	var _ ledger.Backend = (*Backend)(nil)
}

func TestBackend_SubmitSignsAndConfirms(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend, mockClient := newTestBackend(ctrl)
	signer, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)

	mockClient.EXPECT().GetLatestBlockhash(gomock.Any(), "confirmed").Return(testBlockhash, nil)
	mockClient.EXPECT().SendTransaction(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, encoded string) (string, error) {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		require.NoError(t, err)
		tx, err := solanago.TransactionFromBytes(raw)
		require.NoError(t, err)
		require.Len(t, tx.Signatures, 1)
		assert.Equal(t, signer.PublicKey(), tx.Message.AccountKeys[0])
		assert.NoError(t, tx.VerifySignatures())
		return tx.Signatures[0].String(), nil
	})
	gomock.InOrder(
		mockClient.EXPECT().GetSignatureStatuses(gomock.Any(), gomock.Len(1)).Return([]*rpc.SignatureStatus{nil}, nil),
		mockClient.EXPECT().GetSignatureStatuses(gomock.Any(), gomock.Len(1)).Return([]*rpc.SignatureStatus{{ConfirmationStatus: "processed"}}, nil),
		mockClient.EXPECT().GetSignatureStatuses(gomock.Any(), gomock.Len(1)).Return([]*rpc.SignatureStatus{{ConfirmationStatus: "confirmed"}}, nil),
	)

	sig, err := backend.Submit(context.Background(), signer, testInstruction(t, signer.PublicKey()))
	require.NoError(t, err)
	assert.NotEmpty(t, sig)
}

func TestBackend_SubmitRetriesTransientSend(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend, mockClient := newTestBackend(ctrl)
	signer, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)

	mockClient.EXPECT().GetLatestBlockhash(gomock.Any(), "confirmed").Return(testBlockhash, nil).Times(2)
	gomock.InOrder(
		mockClient.EXPECT().SendTransaction(gomock.Any(), gomock.Any()).Return("", &rpc.RPCError{Code: -32005, Message: "Node is behind"}),
		mockClient.EXPECT().SendTransaction(gomock.Any(), gomock.Any()).Return("sig-1", nil),
	)
	mockClient.EXPECT().GetSignatureStatuses(gomock.Any(), []string{"sig-1"}).Return([]*rpc.SignatureStatus{{ConfirmationStatus: "finalized"}}, nil)

	sig, err := backend.Submit(context.Background(), signer, testInstruction(t, signer.PublicKey()))
	require.NoError(t, err)
	assert.Equal(t, "sig-1", sig)
}

func TestBackend_SubmitDoesNotRetrySimulationFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend, mockClient := newTestBackend(ctrl)
	signer, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)

	mockClient.EXPECT().GetLatestBlockhash(gomock.Any(), "confirmed").Return(testBlockhash, nil).Times(1)
	mockClient.EXPECT().SendTransaction(gomock.Any(), gomock.Any()).
		Return("", &rpc.RPCError{Code: -32002, Message: "Transaction simulation failed"}).Times(1)

	_, err = backend.Submit(context.Background(), signer, testInstruction(t, signer.PublicKey()))
	var rpcErr *rpc.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32002, rpcErr.Code)
}

func TestBackend_SubmitReportsExecutionFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend, mockClient := newTestBackend(ctrl)
	signer, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)

	mockClient.EXPECT().GetLatestBlockhash(gomock.Any(), gomock.Any()).Return(testBlockhash, nil)
	mockClient.EXPECT().SendTransaction(gomock.Any(), gomock.Any()).Return("sig-2", nil)
	mockClient.EXPECT().GetSignatureStatuses(gomock.Any(), gomock.Any()).
		Return([]*rpc.SignatureStatus{{Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}}}, nil)

	sig, err := backend.Submit(context.Background(), signer, testInstruction(t, signer.PublicKey()))
	assert.Equal(t, "sig-2", sig)
	assert.ErrorIs(t, err, ErrTransactionFailed)
}

func TestBackend_SubmitConfirmTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := rpcmocks.NewMockRPCClient(ctrl)
	backend := New(mockClient, keys.DefaultProgramID, Config{ConfirmTimeout: 50 * time.Millisecond, ConfirmInterval: 10 * time.Millisecond}, nil)
	signer, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)

	mockClient.EXPECT().GetLatestBlockhash(gomock.Any(), gomock.Any()).Return(testBlockhash, nil)
	mockClient.EXPECT().SendTransaction(gomock.Any(), gomock.Any()).Return("sig-3", nil)
	mockClient.EXPECT().GetSignatureStatuses(gomock.Any(), gomock.Any()).Return([]*rpc.SignatureStatus{nil}, nil).AnyTimes()

	_, err = backend.Submit(context.Background(), signer, testInstruction(t, signer.PublicKey()))
	assert.ErrorIs(t, err, ErrNotConfirmed)
}

func TestBackend_Account(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend, mockClient := newTestBackend(ctrl)
	key := solanago.NewWallet().PublicKey()
	data, err := codec.EncodeRecord(&model.ExtractionRequest{Authority: key, IPFSHash: "QmDoc", Amount: 3})
	require.NoError(t, err)

	mockClient.EXPECT().GetAccountInfo(gomock.Any(), key.String()).Return(&rpc.AccountInfo{
		Lamports: 1_500_000,
		Owner:    keys.DefaultProgramID.String(),
		Data:     []string{base64.StdEncoding.EncodeToString(data), "base64"},
	}, nil)

	acc, err := backend.Account(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, data, acc.Data)
	assert.Equal(t, uint64(1_500_000), acc.Deposit)
}

func TestBackend_AccountMissing(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend, mockClient := newTestBackend(ctrl)

	mockClient.EXPECT().GetAccountInfo(gomock.Any(), gomock.Any()).Return(nil, nil)
	_, err := backend.Account(context.Background(), solanago.NewWallet().PublicKey())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBackend_AccountForeignOwner(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend, mockClient := newTestBackend(ctrl)

	mockClient.EXPECT().GetAccountInfo(gomock.Any(), gomock.Any()).Return(&rpc.AccountInfo{Owner: solanago.SystemProgramID.String()}, nil)
	_, err := backend.Account(context.Background(), solanago.NewWallet().PublicKey())
	assert.Error(t, err)
}

func TestBackend_AccountsFiltersByDiscriminator(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend, mockClient := newTestBackend(ctrl)
	key := solanago.NewWallet().PublicKey()

	mockClient.EXPECT().GetProgramAccounts(gomock.Any(), keys.DefaultProgramID.String(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, filters []rpc.Filter) ([]rpc.KeyedAccount, error) {
			require.Len(t, filters, 1)
			require.NotNil(t, filters[0].Memcmp)
			want := codec.DiscExtractionRequest
			assert.Equal(t, base58.Encode(want[:]), filters[0].Memcmp.Bytes)
			return []rpc.KeyedAccount{{
				Pubkey:  key.String(),
				Account: rpc.AccountInfo{Data: []string{"AQID", "base64"}},
			}}, nil
		})

	accounts, err := backend.Accounts(context.Background(), codec.DiscExtractionRequest)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, key, accounts[0].Key)
	assert.Equal(t, []byte{1, 2, 3}, accounts[0].Data)
}

func TestBackend_AccountsError(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend, mockClient := newTestBackend(ctrl)

	mockClient.EXPECT().GetProgramAccounts(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("boom"))
	_, err := backend.Accounts(context.Background(), codec.DiscInvoice)
	assert.Error(t, err)
}
