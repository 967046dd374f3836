package models

import "time"

type OwnerType string

const (
	OwnerDriver OwnerType = "driver"
	OwnerVendor OwnerType = "vendor"
	// OwnerPlatform accrues platform-fee revenue so fee rows never
	// distort driver or vendor balances. Owner id is always 0.
	OwnerPlatform OwnerType = "platform"
)

type TransactionKind string

const (
	KindTripEarning TransactionKind = "trip_earning"
	KindAdjustment  TransactionKind = "adjustment"
	KindPayout      TransactionKind = "payout"
	KindPlatformFee TransactionKind = "platform_fee"
)

// WalletTransaction is one immutable row in the append-only ledger.
// Amounts are signed centavos; positive credits the owner. Balances are
// always derived by summing rows, never stored.
type WalletTransaction struct {
	ID          string          `json:"id"`
	OwnerType   OwnerType       `json:"owner_type"`
	OwnerID     int64           `json:"owner_id"`
	Amount      int64           `json:"amount"`
	Kind        TransactionKind `json:"kind"`
	BookingCode string          `json:"booking_code,omitempty"`
	CreatedBy   string          `json:"created_by"`
	Note        string          `json:"note,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutPaid      PayoutStatus = "paid"
	PayoutRejected  PayoutStatus = "rejected"
	PayoutCancelled PayoutStatus = "cancelled"
)

// PayoutRequest is a driver-initiated withdrawal reviewed by an admin.
// It transitions out of pending exactly once.
type PayoutRequest struct {
	ID          int64        `json:"id"`
	OwnerID     int64        `json:"owner_id"`
	Amount      int64        `json:"amount"`
	Status      PayoutStatus `json:"status"`
	RequestedAt time.Time    `json:"requested_at"`
	ReviewedAt  *time.Time   `json:"reviewed_at,omitempty"`
	ReviewedBy  string       `json:"reviewed_by,omitempty"`
	AdminNote   string       `json:"admin_note,omitempty"`
}
