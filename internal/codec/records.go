// Package codec implements the binary layout of protocol records and
// operation payloads: an 8-byte discriminator followed by the fields in
// declaration order, integers little-endian and strings as a u32 length
// prefix plus UTF-8 bytes.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/emperorhan/invoice-oracle/internal/domain/model"
)

var (
	// ErrUnknownRecordType is returned when the discriminator does not name a
	// known record kind.
	ErrUnknownRecordType = errors.New("unknown record type")
	// ErrStringTooLong is returned when a bounded string exceeds its limit.
	ErrStringTooLong = errors.New("string exceeds declared bound")
	// ErrTrailingData is returned when a record has bytes past its last field.
	ErrTrailingData = errors.New("trailing data after record")
)

var (
	DiscOrgConfig         = AccountDiscriminator((&model.OrgConfig{}).AccountName())
	DiscExtractionRequest = AccountDiscriminator((&model.ExtractionRequest{}).AccountName())
	DiscInvoice           = AccountDiscriminator((&model.Invoice{}).AccountName())
	DiscVendor            = AccountDiscriminator((&model.Vendor{}).AccountName())
	DiscTokenHolding      = AccountDiscriminator((&model.TokenHolding{}).AccountName())
)

// EncodeRecord serializes a record with its discriminator.
func EncodeRecord(rec model.Record) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	var err error
	switch r := rec.(type) {
	case *model.OrgConfig:
		err = encodeOrgConfig(enc, r)
	case *model.ExtractionRequest:
		err = encodeExtractionRequest(enc, r)
	case *model.Invoice:
		err = encodeInvoice(enc, r)
	case *model.Vendor:
		err = encodeVendor(enc, r)
	case *model.TokenHolding:
		err = encodeTokenHolding(enc, r)
	default:
		return nil, fmt.Errorf("encode %T: %w", rec, ErrUnknownRecordType)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", rec.AccountName(), err)
	}
	return buf.Bytes(), nil
}

// DecodeRecord validates the discriminator and decodes the matching record.
func DecodeRecord(data []byte) (model.Record, error) {
	if len(data) < DiscriminatorLen {
		return nil, fmt.Errorf("decode record: %d bytes: %w", len(data), ErrUnknownRecordType)
	}
	disc := bin.TypeIDFromBytes(data[:DiscriminatorLen])

	var (
		rec model.Record
		err error
	)
	dec := bin.NewBorshDecoder(data[DiscriminatorLen:])
	switch disc {
	case DiscOrgConfig:
		rec, err = decodeOrgConfig(dec)
	case DiscExtractionRequest:
		rec, err = decodeExtractionRequest(dec)
	case DiscInvoice:
		rec, err = decodeInvoice(dec)
	case DiscVendor:
		rec, err = decodeVendor(dec)
	case DiscTokenHolding:
		rec, err = decodeTokenHolding(dec)
	default:
		return nil, fmt.Errorf("decode record %x: %w", disc[:], ErrUnknownRecordType)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", rec.AccountName(), err)
	}
	if dec.Remaining() > 0 {
		return nil, fmt.Errorf("decode %s: %d bytes: %w", rec.AccountName(), dec.Remaining(), ErrTrailingData)
	}
	return rec, nil
}

// DecodeAs decodes data and asserts the record kind.
func DecodeAs[T model.Record](data []byte) (T, error) {
	var zero T
	rec, err := DecodeRecord(data)
	if err != nil {
		return zero, err
	}
	typed, ok := rec.(T)
	if !ok {
		return zero, fmt.Errorf("decode: got %s, want %s: %w", rec.AccountName(), zero.AccountName(), ErrUnknownRecordType)
	}
	return typed, nil
}

func encodeOrgConfig(enc *bin.Encoder, r *model.OrgConfig) error {
	return writeAll(
		func() error { return enc.WriteBytes(DiscOrgConfig[:], false) },
		func() error { return writeKey(enc, r.Authority) },
		func() error { return writeKey(enc, r.OracleSigner) },
		func() error { return writeKey(enc, r.TreasuryVault) },
		func() error { return writeKey(enc, r.Mint) },
		func() error { return enc.WriteUint64(r.PerInvoiceCap, binary.LittleEndian) },
		func() error { return enc.WriteUint64(r.DailyCap, binary.LittleEndian) },
		func() error { return enc.WriteUint64(r.DailySpent, binary.LittleEndian) },
		func() error { return enc.WriteInt64(r.LastResetDay, binary.LittleEndian) },
		func() error { return enc.WriteUint16(r.AuditRateBps, binary.LittleEndian) },
		func() error { return enc.WriteBool(r.Paused) },
		func() error { return enc.WriteUint64(r.InvoiceCounter, binary.LittleEndian) },
		func() error { return enc.WriteUint8(r.Version) },
		func() error { return enc.WriteUint8(r.Bump) },
	)
}

func decodeOrgConfig(dec *bin.Decoder) (*model.OrgConfig, error) {
	r := &model.OrgConfig{}
	var err error
	if r.Authority, err = readKey(dec); err != nil {
		return r, err
	}
	if r.OracleSigner, err = readKey(dec); err != nil {
		return r, err
	}
	if r.TreasuryVault, err = readKey(dec); err != nil {
		return r, err
	}
	if r.Mint, err = readKey(dec); err != nil {
		return r, err
	}
	if r.PerInvoiceCap, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return r, err
	}
	if r.DailyCap, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return r, err
	}
	if r.DailySpent, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return r, err
	}
	if r.LastResetDay, err = dec.ReadInt64(binary.LittleEndian); err != nil {
		return r, err
	}
	if r.AuditRateBps, err = dec.ReadUint16(binary.LittleEndian); err != nil {
		return r, err
	}
	if r.Paused, err = dec.ReadBool(); err != nil {
		return r, err
	}
	if r.InvoiceCounter, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return r, err
	}
	if r.Version, err = dec.ReadUint8(); err != nil {
		return r, err
	}
	r.Bump, err = dec.ReadUint8()
	return r, err
}

func encodeExtractionRequest(enc *bin.Encoder, r *model.ExtractionRequest) error {
	return writeAll(
		func() error { return enc.WriteBytes(DiscExtractionRequest[:], false) },
		func() error { return writeKey(enc, r.Authority) },
		func() error { return writeBounded(enc, r.IPFSHash, model.MaxDocumentRefLen) },
		func() error { return enc.WriteUint8(uint8(r.Status)) },
		func() error { return enc.WriteInt64(r.Timestamp, binary.LittleEndian) },
		func() error { return enc.WriteUint64(r.Amount, binary.LittleEndian) },
	)
}

func decodeExtractionRequest(dec *bin.Decoder) (*model.ExtractionRequest, error) {
	r := &model.ExtractionRequest{}
	var err error
	if r.Authority, err = readKey(dec); err != nil {
		return r, err
	}
	if r.IPFSHash, err = readBounded(dec, model.MaxDocumentRefLen); err != nil {
		return r, err
	}
	status, err := dec.ReadUint8()
	if err != nil {
		return r, err
	}
	r.Status = model.RequestStatus(status)
	if !r.Status.Valid() {
		return r, fmt.Errorf("request status %d out of range", status)
	}
	if r.Timestamp, err = dec.ReadInt64(binary.LittleEndian); err != nil {
		return r, err
	}
	r.Amount, err = dec.ReadUint64(binary.LittleEndian)
	return r, err
}

func encodeInvoice(enc *bin.Encoder, r *model.Invoice) error {
	return writeAll(
		func() error { return enc.WriteBytes(DiscInvoice[:], false) },
		func() error { return writeKey(enc, r.Authority) },
		func() error { return writeKey(enc, r.Vendor) },
		func() error { return writeBounded(enc, r.VendorName, model.MaxVendorNameLen) },
		func() error { return enc.WriteUint64(r.Amount, binary.LittleEndian) },
		func() error { return enc.WriteInt64(r.DueDate, binary.LittleEndian) },
		func() error { return writeBounded(enc, r.IPFSHash, model.MaxDocumentRefLen) },
		func() error { return enc.WriteUint8(uint8(r.Status)) },
		func() error { return enc.WriteInt64(r.Timestamp, binary.LittleEndian) },
	)
}

func decodeInvoice(dec *bin.Decoder) (*model.Invoice, error) {
	r := &model.Invoice{}
	var err error
	if r.Authority, err = readKey(dec); err != nil {
		return r, err
	}
	if r.Vendor, err = readKey(dec); err != nil {
		return r, err
	}
	if r.VendorName, err = readBounded(dec, model.MaxVendorNameLen); err != nil {
		return r, err
	}
	if r.Amount, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return r, err
	}
	if r.DueDate, err = dec.ReadInt64(binary.LittleEndian); err != nil {
		return r, err
	}
	if r.IPFSHash, err = readBounded(dec, model.MaxDocumentRefLen); err != nil {
		return r, err
	}
	status, err := dec.ReadUint8()
	if err != nil {
		return r, err
	}
	r.Status = model.InvoiceStatus(status)
	if !r.Status.Valid() {
		return r, fmt.Errorf("invoice status %d out of range", status)
	}
	r.Timestamp, err = dec.ReadInt64(binary.LittleEndian)
	return r, err
}

func encodeVendor(enc *bin.Encoder, r *model.Vendor) error {
	return writeAll(
		func() error { return enc.WriteBytes(DiscVendor[:], false) },
		func() error { return writeKey(enc, r.Org) },
		func() error { return writeBounded(enc, r.VendorName, model.MaxVendorNameLen) },
		func() error { return writeKey(enc, r.Wallet) },
		func() error { return enc.WriteUint64(r.TotalPaid, binary.LittleEndian) },
		func() error { return enc.WriteInt64(r.LastPayment, binary.LittleEndian) },
		func() error { return enc.WriteBool(r.IsActive) },
		func() error { return writeKey(enc, r.CurrencyPreference) },
	)
}

func decodeVendor(dec *bin.Decoder) (*model.Vendor, error) {
	r := &model.Vendor{}
	var err error
	if r.Org, err = readKey(dec); err != nil {
		return r, err
	}
	if r.VendorName, err = readBounded(dec, model.MaxVendorNameLen); err != nil {
		return r, err
	}
	if r.Wallet, err = readKey(dec); err != nil {
		return r, err
	}
	if r.TotalPaid, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return r, err
	}
	if r.LastPayment, err = dec.ReadInt64(binary.LittleEndian); err != nil {
		return r, err
	}
	if r.IsActive, err = dec.ReadBool(); err != nil {
		return r, err
	}
	r.CurrencyPreference, err = readKey(dec)
	return r, err
}

func encodeTokenHolding(enc *bin.Encoder, r *model.TokenHolding) error {
	return writeAll(
		func() error { return enc.WriteBytes(DiscTokenHolding[:], false) },
		func() error { return writeKey(enc, r.Mint) },
		func() error { return writeKey(enc, r.Owner) },
		func() error { return enc.WriteUint64(r.Amount, binary.LittleEndian) },
	)
}

func decodeTokenHolding(dec *bin.Decoder) (*model.TokenHolding, error) {
	r := &model.TokenHolding{}
	var err error
	if r.Mint, err = readKey(dec); err != nil {
		return r, err
	}
	if r.Owner, err = readKey(dec); err != nil {
		return r, err
	}
	r.Amount, err = dec.ReadUint64(binary.LittleEndian)
	return r, err
}

func writeAll(steps ...func() error) error {
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func writeKey(enc *bin.Encoder, key solana.PublicKey) error {
	return enc.WriteBytes(key[:], false)
}

func readKey(dec *bin.Decoder) (solana.PublicKey, error) {
	raw, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(raw), nil
}

// writeBounded enforces the byte bound of a string field. Bounds count UTF-8
// bytes, not characters.
func writeBounded(enc *bin.Encoder, s string, maxLen int) error {
	if len(s) > maxLen {
		return fmt.Errorf("%d bytes, max %d: %w", len(s), maxLen, ErrStringTooLong)
	}
	return enc.WriteBytes([]byte(s), true)
}

func readBounded(dec *bin.Decoder, maxLen int) (string, error) {
	n, err := dec.ReadLength()
	if err != nil {
		return "", err
	}
	if n > maxLen {
		return "", fmt.Errorf("%d bytes, max %d: %w", n, maxLen, ErrStringTooLong)
	}
	raw, err := dec.ReadNBytes(n)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
