package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// ErrUnknownOp is returned when a payload discriminator names no operation.
var ErrUnknownOp = errors.New("unknown operation")

// Op is the snake-case operation name the payload discriminator derives from.
type Op string

const (
	OpRequestExtraction  Op = "request_invoice_extraction"
	OpProcessExtraction  Op = "process_extraction_result"
	OpRequestAudit       Op = "request_invoice_audit_vrf"
	OpAuditCallback      Op = "callback_invoice_vrf"
	OpProcessPayment     Op = "process_invoice_payment"
	OpCompletePayment    Op = "complete_payment"
	OpFundEscrow         Op = "fund_escrow"
	OpSettleToVendor     Op = "settle_to_vendor"
	OpCloseInvoice       Op = "close_invoice"
	OpCloseRequest       Op = "close_request"
	OpOrgInit            Op = "org_init"
	OpUpdateOrgConfig    Op = "update_org_config"
	OpRegisterVendor     Op = "register_vendor"
	OpDeactivateVendor   Op = "deactivate_vendor"
	OpActivateVendor     Op = "activate_vendor"
	OpUpdateVendorWallet Op = "update_vendor_wallet"
)

// Ops lists every operation in instruction-handler order.
var Ops = []Op{
	OpRequestExtraction,
	OpProcessExtraction,
	OpProcessPayment,
	OpCompletePayment,
	OpCloseInvoice,
	OpCloseRequest,
	OpOrgInit,
	OpUpdateOrgConfig,
	OpFundEscrow,
	OpSettleToVendor,
	OpRegisterVendor,
	OpDeactivateVendor,
	OpActivateVendor,
	OpUpdateVendorWallet,
	OpRequestAudit,
	OpAuditCallback,
}

var opsByDisc = func() map[bin.TypeID]Op {
	m := make(map[bin.TypeID]Op, len(Ops))
	for _, op := range Ops {
		m[op.Discriminator()] = op
	}
	return m
}()

func (o Op) Discriminator() bin.TypeID {
	return OpDiscriminator(string(o))
}

func (o Op) String() string { return string(o) }

// Args is implemented by every operation argument payload.
type Args interface {
	Op() Op
	MarshalWithEncoder(enc *bin.Encoder) error
	UnmarshalWithDecoder(dec *bin.Decoder) error
}

type RequestExtractionArgs struct {
	IPFSHash string
	Amount   uint64
}

func (*RequestExtractionArgs) Op() Op { return OpRequestExtraction }

func (a *RequestExtractionArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteString(a.IPFSHash); err != nil {
		return err
	}
	return enc.WriteUint64(a.Amount, binary.LittleEndian)
}

func (a *RequestExtractionArgs) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if a.IPFSHash, err = dec.ReadString(); err != nil {
		return err
	}
	a.Amount, err = dec.ReadUint64(binary.LittleEndian)
	return err
}

type ProcessExtractionArgs struct {
	VendorName string
	Amount     uint64
	DueDate    int64
}

func (*ProcessExtractionArgs) Op() Op { return OpProcessExtraction }

func (a *ProcessExtractionArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteString(a.VendorName); err != nil {
		return err
	}
	if err := enc.WriteUint64(a.Amount, binary.LittleEndian); err != nil {
		return err
	}
	return enc.WriteInt64(a.DueDate, binary.LittleEndian)
}

func (a *ProcessExtractionArgs) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if a.VendorName, err = dec.ReadString(); err != nil {
		return err
	}
	if a.Amount, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	a.DueDate, err = dec.ReadInt64(binary.LittleEndian)
	return err
}

type RequestAuditArgs struct {
	ClientSeed uint8
}

func (*RequestAuditArgs) Op() Op { return OpRequestAudit }

func (a *RequestAuditArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	return enc.WriteUint8(a.ClientSeed)
}

func (a *RequestAuditArgs) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	a.ClientSeed, err = dec.ReadUint8()
	return err
}

type AuditCallbackArgs struct {
	Randomness [32]byte
}

func (*AuditCallbackArgs) Op() Op { return OpAuditCallback }

func (a *AuditCallbackArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	return enc.WriteBytes(a.Randomness[:], false)
}

func (a *AuditCallbackArgs) UnmarshalWithDecoder(dec *bin.Decoder) error {
	raw, err := dec.ReadNBytes(len(a.Randomness))
	if err != nil {
		return err
	}
	copy(a.Randomness[:], raw)
	return nil
}

type OrgInitArgs struct {
	TreasuryVault solana.PublicKey
	Mint          solana.PublicKey
	PerInvoiceCap uint64
	DailyCap      uint64
	AuditRateBps  uint16
}

func (*OrgInitArgs) Op() Op { return OpOrgInit }

func (a *OrgInitArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	return writeAll(
		func() error { return writeKey(enc, a.TreasuryVault) },
		func() error { return writeKey(enc, a.Mint) },
		func() error { return enc.WriteUint64(a.PerInvoiceCap, binary.LittleEndian) },
		func() error { return enc.WriteUint64(a.DailyCap, binary.LittleEndian) },
		func() error { return enc.WriteUint16(a.AuditRateBps, binary.LittleEndian) },
	)
}

func (a *OrgInitArgs) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if a.TreasuryVault, err = readKey(dec); err != nil {
		return err
	}
	if a.Mint, err = readKey(dec); err != nil {
		return err
	}
	if a.PerInvoiceCap, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	if a.DailyCap, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	a.AuditRateBps, err = dec.ReadUint16(binary.LittleEndian)
	return err
}

// UpdateOrgConfigArgs carries optional fields; a nil field is left unchanged.
type UpdateOrgConfigArgs struct {
	PerInvoiceCap *uint64
	DailyCap      *uint64
	Paused        *bool
	OracleSigner  *solana.PublicKey
}

func (*UpdateOrgConfigArgs) Op() Op { return OpUpdateOrgConfig }

func (a *UpdateOrgConfigArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := writeOption(enc, a.PerInvoiceCap != nil, func() error {
		return enc.WriteUint64(*a.PerInvoiceCap, binary.LittleEndian)
	}); err != nil {
		return err
	}
	if err := writeOption(enc, a.DailyCap != nil, func() error {
		return enc.WriteUint64(*a.DailyCap, binary.LittleEndian)
	}); err != nil {
		return err
	}
	if err := writeOption(enc, a.Paused != nil, func() error {
		return enc.WriteBool(*a.Paused)
	}); err != nil {
		return err
	}
	return writeOption(enc, a.OracleSigner != nil, func() error {
		return writeKey(enc, *a.OracleSigner)
	})
}

func (a *UpdateOrgConfigArgs) UnmarshalWithDecoder(dec *bin.Decoder) error {
	if err := readOption(dec, func() error {
		v, err := dec.ReadUint64(binary.LittleEndian)
		a.PerInvoiceCap = &v
		return err
	}); err != nil {
		return err
	}
	if err := readOption(dec, func() error {
		v, err := dec.ReadUint64(binary.LittleEndian)
		a.DailyCap = &v
		return err
	}); err != nil {
		return err
	}
	if err := readOption(dec, func() error {
		v, err := dec.ReadBool()
		a.Paused = &v
		return err
	}); err != nil {
		return err
	}
	return readOption(dec, func() error {
		v, err := readKey(dec)
		a.OracleSigner = &v
		return err
	})
}

type RegisterVendorArgs struct {
	VendorName string
	Wallet     solana.PublicKey
}

func (*RegisterVendorArgs) Op() Op { return OpRegisterVendor }

func (a *RegisterVendorArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteString(a.VendorName); err != nil {
		return err
	}
	return writeKey(enc, a.Wallet)
}

func (a *RegisterVendorArgs) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if a.VendorName, err = dec.ReadString(); err != nil {
		return err
	}
	a.Wallet, err = readKey(dec)
	return err
}

type UpdateVendorWalletArgs struct {
	NewWallet solana.PublicKey
}

func (*UpdateVendorWalletArgs) Op() Op { return OpUpdateVendorWallet }

func (a *UpdateVendorWalletArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	return writeKey(enc, a.NewWallet)
}

func (a *UpdateVendorWalletArgs) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	a.NewWallet, err = readKey(dec)
	return err
}

// NoArgs is the payload of operations that take no arguments.
type NoArgs struct {
	op Op
}

func Empty(op Op) *NoArgs { return &NoArgs{op: op} }

func (a *NoArgs) Op() Op                                { return a.op }
func (*NoArgs) MarshalWithEncoder(*bin.Encoder) error   { return nil }
func (*NoArgs) UnmarshalWithDecoder(*bin.Decoder) error { return nil }

// EncodeInstruction prefixes the encoded arguments with the operation
// discriminator.
func EncodeInstruction(args Args) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	disc := args.Op().Discriminator()
	if err := enc.WriteBytes(disc[:], false); err != nil {
		return nil, err
	}
	if err := args.MarshalWithEncoder(enc); err != nil {
		return nil, fmt.Errorf("encode %s args: %w", args.Op(), err)
	}
	return buf.Bytes(), nil
}

// DecodeInstruction resolves the operation from its discriminator and
// decodes its arguments.
func DecodeInstruction(data []byte) (Args, error) {
	if len(data) < DiscriminatorLen {
		return nil, fmt.Errorf("decode instruction: %d bytes: %w", len(data), ErrUnknownOp)
	}
	op, ok := opsByDisc[bin.TypeIDFromBytes(data[:DiscriminatorLen])]
	if !ok {
		return nil, fmt.Errorf("decode instruction %x: %w", data[:DiscriminatorLen], ErrUnknownOp)
	}
	args := newArgs(op)
	dec := bin.NewBorshDecoder(data[DiscriminatorLen:])
	if err := args.UnmarshalWithDecoder(dec); err != nil {
		return nil, fmt.Errorf("decode %s args: %w", op, err)
	}
	if dec.Remaining() > 0 {
		return nil, fmt.Errorf("decode %s args: %d bytes: %w", op, dec.Remaining(), ErrTrailingData)
	}
	return args, nil
}

func newArgs(op Op) Args {
	switch op {
	case OpRequestExtraction:
		return &RequestExtractionArgs{}
	case OpProcessExtraction:
		return &ProcessExtractionArgs{}
	case OpRequestAudit:
		return &RequestAuditArgs{}
	case OpAuditCallback:
		return &AuditCallbackArgs{}
	case OpOrgInit:
		return &OrgInitArgs{}
	case OpUpdateOrgConfig:
		return &UpdateOrgConfigArgs{}
	case OpRegisterVendor:
		return &RegisterVendorArgs{}
	case OpUpdateVendorWallet:
		return &UpdateVendorWalletArgs{}
	default:
		return Empty(op)
	}
}

func writeOption(enc *bin.Encoder, present bool, write func() error) error {
	if err := enc.WriteBool(present); err != nil {
		return err
	}
	if !present {
		return nil
	}
	return write()
}

func readOption(dec *bin.Decoder, read func() error) error {
	present, err := dec.ReadBool()
	if err != nil || !present {
		return err
	}
	return read()
}
