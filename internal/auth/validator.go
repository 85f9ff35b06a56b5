package auth

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/snakebase/snakebase/internal/domain"
)

// SubmissionWindow bounds how far a signed submission's timestamp may
// drift from server time, in either direction.
const SubmissionWindow = 5 * time.Minute

// Validator decides whether a claimed score from an authenticated
// session is trustworthy enough to persist. It is a pure decision
// function: no state is written here.
type Validator struct {
	requireSignature bool
	now              func() time.Time
}

// NewValidator creates a validator. When requireSignature is set the
// legacy unsigned path is rejected.
func NewValidator(requireSignature bool) *Validator {
	return &Validator{
		requireSignature: requireSignature,
		now:              time.Now,
	}
}

// SetClock replaces the time source. Used by tests.
func (v *Validator) SetClock(now func() time.Time) {
	v.now = now
}

// Validate checks sub against the session's user and returns the
// normalized (floored) score for handoff to the aggregator.
//
// The request-body userId/walletAddress are cross-checked against the
// session identity, never trusted on their own.
func (v *Validator) Validate(user *domain.User, sub *domain.ScoreSubmission) (int64, error) {
	if user == nil {
		return 0, domain.ErrUserNotFound
	}
	if math.IsNaN(sub.Score) || math.IsInf(sub.Score, 0) || sub.Score < 0 {
		return 0, domain.ErrInvalidScore
	}
	// Finite floats at or above 1<<63 are out of int64 range and would
	// convert to garbage below.
	if sub.Score >= math.MaxInt64 {
		return 0, domain.ErrInvalidScore
	}
	if sub.UserID != "" && sub.UserID != user.ID {
		return 0, domain.ErrUserMismatch
	}
	if sub.WalletAddress != "" && !strings.EqualFold(sub.WalletAddress, user.WalletAddress) {
		return 0, domain.ErrUserMismatch
	}
	if !user.HasWallet() {
		return 0, domain.ErrWalletRequired
	}

	score := int64(math.Floor(sub.Score))

	if sub.Signed() {
		skew := v.now().UnixMilli() - sub.Timestamp
		if skew > SubmissionWindow.Milliseconds() || -skew > SubmissionWindow.Milliseconds() {
			return 0, domain.ErrSubmissionExpired
		}
		msg := SubmissionMessage(user.WalletAddress, score, sub.Nonce, sub.Timestamp)
		if !VerifySigner(user.WalletAddress, msg, sub.Signature) {
			return 0, domain.ErrInvalidSignature
		}
	} else if v.requireSignature {
		return 0, fmt.Errorf("%w: signature required", domain.ErrInvalidRequest)
	}

	return score, nil
}
