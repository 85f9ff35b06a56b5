package auth

import (
	"crypto/ecdsa"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey).Hex()
}

func signMessage(t *testing.T, key *ecdsa.PrivateKey, message string) string {
	t.Helper()
	sig, err := crypto.Sign(personalHash(message), key)
	require.NoError(t, err)
	return hexutil.Encode(sig)
}

func TestRecoverSigner(t *testing.T) {
	key, addr := newTestKey(t)
	msg := LoginMessage("nonce-1", 1700000000000)

	recovered, err := RecoverSigner(msg, signMessage(t, key, msg))
	require.NoError(t, err)
	assert.Equal(t, addr, recovered.Hex())
}

func TestRecoverSignerLegacyRecoveryID(t *testing.T) {
	key, addr := newTestKey(t)
	msg := LoginMessage("nonce-2", 1700000000000)

	// Wallets commonly emit v as 27/28 instead of 0/1.
	sig, err := crypto.Sign(personalHash(msg), key)
	require.NoError(t, err)
	sig[64] += 27

	recovered, err := RecoverSigner(msg, hexutil.Encode(sig))
	require.NoError(t, err)
	assert.Equal(t, addr, recovered.Hex())
}

func TestRecoverSignerMalformed(t *testing.T) {
	tests := []struct {
		name string
		sig  string
	}{
		{"not hex", "zzzz"},
		{"too short", "0x1234"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RecoverSigner("message", tt.sig)
			assert.Error(t, err)
		})
	}
}

func TestVerifySigner(t *testing.T) {
	key, addr := newTestKey(t)
	otherKey, _ := newTestKey(t)
	msg := SubmissionMessage(addr, 150, "nonce-3", 1700000000000)

	assert.True(t, VerifySigner(addr, msg, signMessage(t, key, msg)))

	// Address comparison must be case-insensitive
	assert.True(t, VerifySigner(strings.ToLower(addr), msg, signMessage(t, key, msg)))

	// A different key's signature must not verify
	assert.False(t, VerifySigner(addr, msg, signMessage(t, otherKey, msg)))

	// A signature over a different message must not verify
	otherMsg := SubmissionMessage(addr, 151, "nonce-3", 1700000000000)
	assert.False(t, VerifySigner(addr, otherMsg, signMessage(t, key, msg)))
}

func TestSubmissionMessageLowercasesWallet(t *testing.T) {
	upper := "0xAB00000000000000000000000000000000000001"
	lower := "0xab00000000000000000000000000000000000001"
	assert.Equal(t,
		SubmissionMessage(lower, 10, "n", 1),
		SubmissionMessage(upper, 10, "n", 1),
	)
}
