package domain

import "time"

// Wallet is a registered wallet address, scoped to an already-authenticated
// user. Credential validation happens outside this module; everything here
// trusts the caller-supplied UserID.
type Wallet struct {
	ID        string    `json:"id"         db:"id"`
	UserID    string    `json:"user_id"    db:"user_id"`
	Chain     Chain     `json:"chain"      db:"chain"`
	Address   string    `json:"address"    db:"address"`
	Label     string    `json:"label"      db:"label"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
