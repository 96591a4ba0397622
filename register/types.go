/*
Package register provides the cash register lifecycle and transaction ledger.

PURPOSE:
  This package contains the domain types and algorithms for tracking physical
  cash drawers: whether each register is open or closed, its running balance,
  and the ordered, immutable history of monetary movements (sales, refunds,
  deposits, withdrawals, adjustments) that produced that balance.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: An exact monetary quantity (decimal, never floating point)
  - Transaction: An immutable ledger entry recording a balance change
  - Register/Transaction/Principal IDs: Type-safe identifiers
  - Sign conventions: which transaction types move cash in vs. out

DESIGN PRINCIPLES:
  1. Immutability: Ledger entries are never modified or deleted
  2. Precision: Uses decimal.Decimal to avoid floating-point drift
  3. Derivability: Balance is always reproducible by replaying the ledger
  4. Auditability: Every entry carries its actor and originating document

SEE ALSO:
  - register.go: Register entity and its state machine
  - ledger.go: Balance derivation and reconciliation
  - service.go: The only writer of registers and ledger entries
*/
package register

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Exact monetary quantity
// =============================================================================

// Amount is a signed monetary value with exact decimal arithmetic.
// The system is currency-agnostic; all amounts in one deployment are
// assumed to share the drawer's currency.
type Amount struct {
	Value decimal.Decimal
}

func NewAmountFromInt(value int64) Amount {
	return Amount{Value: decimal.NewFromInt(value)}
}

// NewAmountFromString parses a decimal string ("130.50").
func NewAmountFromString(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: d}, nil
}

func MustAmount(s string) Amount {
	a, err := NewAmountFromString(s)
	if err != nil {
		panic(err)
	}
	return a
}

func ZeroAmount() Amount { return Amount{Value: decimal.Zero} }

func (a Amount) Add(b Amount) Amount   { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount   { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) Neg() Amount           { return Amount{Value: a.Value.Neg()} }
func (a Amount) IsNegative() bool      { return a.Value.IsNegative() }
func (a Amount) IsPositive() bool      { return a.Value.IsPositive() }
func (a Amount) IsZero() bool          { return a.Value.IsZero() }
func (a Amount) Equal(b Amount) bool   { return a.Value.Equal(b.Value) }
func (a Amount) String() string        { return a.Value.String() }

// MarshalJSON renders the amount as a decimal string, never a float.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.Value.String() + `"`), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	a.Value = d
	return nil
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RegisterID string
type TransactionID string
type PrincipalID string

// =============================================================================
// TRANSACTION - One immutable monetary movement against a register
// =============================================================================

type TransactionType string

const (
	TxSale       TransactionType = "sale"       // Cash received for a sale
	TxRefund     TransactionType = "refund"     // Cash returned to a customer
	TxDeposit    TransactionType = "deposit"    // Float added to the drawer
	TxWithdrawal TransactionType = "withdrawal" // Cash removed (bank drop, payout)
	TxAdjustment TransactionType = "adjustment" // Manual correction, either sign
)

// Transaction is an append-only ledger entry. Once created it is never
// updated or deleted; corrections are posted as adjustments.
type Transaction struct {
	ID         TransactionID
	RegisterID RegisterID
	Type       TransactionType
	Amount     Amount
	CreatedBy  PrincipalID

	// Reference points at the originating sale/refund document, if any.
	Reference string
	Metadata  map[string]string

	// IdempotencyKey lets callers retry a post safely. Optional.
	IdempotencyKey string

	// CreatedAt orders entries per register; Seq is the store-assigned
	// insertion sequence that breaks exact-timestamp ties.
	CreatedAt time.Time
	Seq       int64
}

// =============================================================================
// SIGN CONVENTIONS - Declarative type -> allowed sign table
// =============================================================================

type sign int

const (
	signPositive sign = iota
	signNegative
	signEither
)

var signRules = map[TransactionType]sign{
	TxSale:       signPositive,
	TxDeposit:    signPositive,
	TxRefund:     signNegative,
	TxWithdrawal: signNegative,
	TxAdjustment: signEither,
}

// ValidateSign checks the amount against the type's sign convention.
// Zero amounts are rejected for every type: a movement of nothing is
// always a caller mistake.
func ValidateSign(txType TransactionType, amount Amount) error {
	rule, ok := signRules[txType]
	if !ok {
		return &ValidationError{Field: "type", Reason: "unknown transaction type " + string(txType)}
	}
	if amount.IsZero() {
		return &ValidationError{Field: "amount", Reason: "amount must be non-zero"}
	}
	switch rule {
	case signPositive:
		if amount.IsNegative() {
			return &ValidationError{Field: "amount", Reason: string(txType) + " requires a positive amount"}
		}
	case signNegative:
		if amount.IsPositive() {
			return &ValidationError{Field: "amount", Reason: string(txType) + " requires a negative amount"}
		}
	}
	return nil
}

// IsCashOut reports whether the type needs the stricter posting capability.
// Withdrawals move cash out of the drawer and adjustments can move it
// arbitrarily, so both are gated beyond plain sale/refund posting.
func (t TransactionType) IsCashOut() bool {
	return t == TxWithdrawal || t == TxAdjustment
}
