package domain

// LeaderboardEntry is one row of the global high-score ranking. The
// username is a cached display snapshot and may lag a concurrent
// rename.
type LeaderboardEntry struct {
	Rank          int64  `json:"rank"`
	WalletAddress string `json:"wallet_address"`
	Username      string `json:"username"`
	Score         int64  `json:"score"`
}
