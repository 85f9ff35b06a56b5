package domain

import "time"

// User represents a registered player identity bound to a wallet.
type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	WalletAddress string    `json:"wallet_address"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// HasWallet reports whether the user is bound to a wallet address.
func (u *User) HasWallet() bool {
	return u != nil && u.WalletAddress != ""
}
