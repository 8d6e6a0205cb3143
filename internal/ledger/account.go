package ledger

import "time"

// Account is one user's prepaid panel balance.
// Created lazily on first credit; never deleted.
type Account struct {
	UserID    string    `json:"userId"`
	Balance   int64     `json:"balance"` // panels, always >= 0
	UpdatedAt time.Time `json:"updatedAt"`
}
