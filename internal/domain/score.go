package domain

// MaxHistoryEntries bounds the per-wallet score history. Older entries
// are dropped first; the high score is tracked separately and survives
// truncation.
const MaxHistoryEntries = 100

// ScoreHistoryEntry is one recorded game result for a wallet.
type ScoreHistoryEntry struct {
	Ts    int64 `json:"ts"`
	Score int64 `json:"score"`
}

// PlayerStats is the derived summary returned after a submission.
// TotalGames and TotalScore reflect only the retained history window;
// HighScore is exact and unbounded in time.
type PlayerStats struct {
	TotalGames int64 `json:"total_games"`
	HighScore  int64 `json:"high_score"`
	TotalScore int64 `json:"total_score"`
}

// ScoreSubmission is a request to record a score. The signature triple
// is optional: when present it is verified against the canonical
// submission message, when absent the session alone authorizes the
// submission (legacy path).
type ScoreSubmission struct {
	Score         float64 `json:"score"`
	UserID        string  `json:"user_id,omitempty"`
	WalletAddress string  `json:"wallet_address,omitempty"`
	Signature     string  `json:"signature,omitempty"`
	Nonce         string  `json:"nonce,omitempty"`
	Timestamp     int64   `json:"timestamp,omitempty"`
}

// Signed reports whether the anti-cheat triple is present.
func (s *ScoreSubmission) Signed() bool {
	return s.Signature != ""
}

// ScoreEvent is a score record flowing through the Kafka ingestion
// path or into the audit archive.
type ScoreEvent struct {
	WalletAddress string `json:"wallet_address"`
	Score         int64  `json:"score"`
	Timestamp     int64  `json:"timestamp"`
	Source        string `json:"source,omitempty"`
}
