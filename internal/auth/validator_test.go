package auth

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snakebase/snakebase/internal/domain"
)

var testNow = time.UnixMilli(1700000000000)

func newTestValidator(requireSignature bool) *Validator {
	v := NewValidator(requireSignature)
	v.SetClock(func() time.Time { return testNow })
	return v
}

func testUser(wallet string) *domain.User {
	return &domain.User{
		ID:            "user-1",
		Username:      "snake_abc123",
		WalletAddress: wallet,
	}
}

func TestValidateRejections(t *testing.T) {
	_, addr := newTestKey(t)
	v := newTestValidator(false)

	tests := []struct {
		name string
		user *domain.User
		sub  *domain.ScoreSubmission
		want error
	}{
		{
			name: "nil user",
			user: nil,
			sub:  &domain.ScoreSubmission{Score: 10},
			want: domain.ErrUserNotFound,
		},
		{
			name: "nan score",
			user: testUser(addr),
			sub:  &domain.ScoreSubmission{Score: math.NaN()},
			want: domain.ErrInvalidScore,
		},
		{
			name: "infinite score",
			user: testUser(addr),
			sub:  &domain.ScoreSubmission{Score: math.Inf(1)},
			want: domain.ErrInvalidScore,
		},
		{
			name: "negative score",
			user: testUser(addr),
			sub:  &domain.ScoreSubmission{Score: -1},
			want: domain.ErrInvalidScore,
		},
		{
			name: "score above int64 range",
			user: testUser(addr),
			sub:  &domain.ScoreSubmission{Score: 1e300},
			want: domain.ErrInvalidScore,
		},
		{
			name: "score at int64 boundary",
			user: testUser(addr),
			sub:  &domain.ScoreSubmission{Score: math.Pow(2, 63)},
			want: domain.ErrInvalidScore,
		},
		{
			name: "user id mismatch",
			user: testUser(addr),
			sub:  &domain.ScoreSubmission{Score: 10, UserID: "someone-else"},
			want: domain.ErrUserMismatch,
		},
		{
			name: "wallet mismatch",
			user: testUser(addr),
			sub:  &domain.ScoreSubmission{Score: 10, WalletAddress: "0x0000000000000000000000000000000000000bad"},
			want: domain.ErrUserMismatch,
		},
		{
			name: "no wallet bound",
			user: testUser(""),
			sub:  &domain.ScoreSubmission{Score: 10},
			want: domain.ErrWalletRequired,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.user, tt.sub)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateUnsignedLegacyPath(t *testing.T) {
	_, addr := newTestKey(t)
	v := newTestValidator(false)

	score, err := v.Validate(testUser(addr), &domain.ScoreSubmission{Score: 123.9})
	require.NoError(t, err)
	assert.Equal(t, int64(123), score, "fractional scores are floored")
}

func TestValidateLargestRepresentableScore(t *testing.T) {
	_, addr := newTestKey(t)
	v := newTestValidator(false)

	// The largest float64 strictly below 1<<63 still fits int64 and
	// must normalize to a non-negative value.
	max := math.Nextafter(math.Pow(2, 63), 0)
	score, err := v.Validate(testUser(addr), &domain.ScoreSubmission{Score: max})
	require.NoError(t, err)
	assert.Equal(t, int64(max), score)
	assert.GreaterOrEqual(t, score, int64(0))
}

func TestValidateUnsignedRejectedWhenRequired(t *testing.T) {
	_, addr := newTestKey(t)
	v := newTestValidator(true)

	_, err := v.Validate(testUser(addr), &domain.ScoreSubmission{Score: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestValidateSigned(t *testing.T) {
	key, addr := newTestKey(t)
	v := newTestValidator(false)

	ts := testNow.UnixMilli()
	msg := SubmissionMessage(addr, 200, "nonce-7", ts)
	sub := &domain.ScoreSubmission{
		Score:     200,
		Signature: signMessage(t, key, msg),
		Nonce:     "nonce-7",
		Timestamp: ts,
	}

	score, err := v.Validate(testUser(addr), sub)
	require.NoError(t, err)
	assert.Equal(t, int64(200), score)
}

func TestValidateSignedWrongSigner(t *testing.T) {
	_, addr := newTestKey(t)
	otherKey, _ := newTestKey(t)
	v := newTestValidator(false)

	ts := testNow.UnixMilli()
	msg := SubmissionMessage(addr, 200, "nonce-8", ts)
	sub := &domain.ScoreSubmission{
		Score:     200,
		Signature: signMessage(t, otherKey, msg),
		Nonce:     "nonce-8",
		Timestamp: ts,
	}

	_, err := v.Validate(testUser(addr), sub)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestValidateSignedTamperedScore(t *testing.T) {
	key, addr := newTestKey(t)
	v := newTestValidator(false)

	// Signature covers score 100, but the submission claims 9000.
	ts := testNow.UnixMilli()
	msg := SubmissionMessage(addr, 100, "nonce-9", ts)
	sub := &domain.ScoreSubmission{
		Score:     9000,
		Signature: signMessage(t, key, msg),
		Nonce:     "nonce-9",
		Timestamp: ts,
	}

	_, err := v.Validate(testUser(addr), sub)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestValidateSignedTimestampWindow(t *testing.T) {
	key, addr := newTestKey(t)
	v := newTestValidator(false)

	for _, tt := range []struct {
		name   string
		offset time.Duration
		want   error
	}{
		{"too old", -SubmissionWindow - time.Second, domain.ErrSubmissionExpired},
		{"too far ahead", SubmissionWindow + time.Second, domain.ErrSubmissionExpired},
		{"just inside", -SubmissionWindow + time.Second, nil},
	} {
		t.Run(tt.name, func(t *testing.T) {
			ts := testNow.Add(tt.offset).UnixMilli()
			msg := SubmissionMessage(addr, 50, "nonce-10", ts)
			sub := &domain.ScoreSubmission{
				Score:     50,
				Signature: signMessage(t, key, msg),
				Nonce:     "nonce-10",
				Timestamp: ts,
			}
			_, err := v.Validate(testUser(addr), sub)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}
