package domain

import "time"

// NonceTTL is how long an issued challenge stays valid.
const NonceTTL = 5 * time.Minute

// NonceChallenge is a one-time token issued to a wallet. It is valid
// between issuance and either successful verification (consumed) or
// expiry, whichever comes first. Reissuing overwrites any prior
// unconsumed challenge for the same wallet.
type NonceChallenge struct {
	Nonce    string `json:"nonce"`
	IssuedAt int64  `json:"issued_at"`
}

// Expired reports whether the challenge is past its TTL at now.
func (c *NonceChallenge) Expired(now time.Time) bool {
	return now.UnixMilli()-c.IssuedAt > NonceTTL.Milliseconds()
}
