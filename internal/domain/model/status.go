package model

// RequestStatus is the lifecycle state of an ExtractionRequest.
// Values are persisted as a single byte in declaration order.
type RequestStatus uint8

const (
	RequestStatusPending RequestStatus = iota
	RequestStatusCompleted
)

func (s RequestStatus) String() string {
	switch s {
	case RequestStatusPending:
		return "Pending"
	case RequestStatusCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusCompleted
}

func (s RequestStatus) Valid() bool {
	return s <= RequestStatusCompleted
}

// InvoiceStatus is the lifecycle state of an Invoice. The declaration order
// matches the on-chain enum and must not be reordered.
type InvoiceStatus uint8

const (
	InvoiceStatusReadyForPayment InvoiceStatus = iota
	InvoiceStatusAuditPending
	InvoiceStatusValidated
	InvoiceStatusInEscrow
	InvoiceStatusPaid
)

func (s InvoiceStatus) String() string {
	switch s {
	case InvoiceStatusReadyForPayment:
		return "ReadyForPayment"
	case InvoiceStatusAuditPending:
		return "AuditPending"
	case InvoiceStatusValidated:
		return "Validated"
	case InvoiceStatusInEscrow:
		return "InEscrow"
	case InvoiceStatusPaid:
		return "Paid"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether no transition other than close may follow.
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid
}

func (s InvoiceStatus) Valid() bool {
	return s <= InvoiceStatusPaid
}

func (s RequestStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s InvoiceStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
