// Package auth implements the wallet-signature primitives and the
// score submission validator: canonical message construction, EIP-191
// personal-sign recovery, and the acceptance rules for claimed scores.
package auth

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// LoginMessage is the exact string a wallet must sign to complete the
// nonce handshake. Clients receive it verbatim from the nonce endpoint.
func LoginMessage(nonce string, issuedAt int64) string {
	return fmt.Sprintf("Sign in to Snakebase\n\nNonce: %s\nIssued At: %d", nonce, issuedAt)
}

// SubmissionMessage is the canonical string a wallet signs over a score
// submission. The score is the floored integer value that will be
// persisted.
func SubmissionMessage(walletAddress string, score int64, nonce string, timestamp int64) string {
	return fmt.Sprintf(
		"Snakebase Score Submission\nWallet: %s\nScore: %d\nNonce: %s\nTimestamp: %d",
		strings.ToLower(walletAddress), score, nonce, timestamp,
	)
}

// personalHash applies the EIP-191 "\x19Ethereum Signed Message"
// prefix used by wallet personal_sign and hashes the result.
func personalHash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}

// RecoverSigner returns the address that produced signature over
// message. The signature is a 65-byte hex string; both 0/1 and 27/28
// recovery ids are accepted.
func RecoverSigner(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("decoding signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	if sig[64] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(personalHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recovering public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySigner reports whether signature over message was produced by
// walletAddress. Address comparison is case-insensitive.
func VerifySigner(walletAddress, message, signature string) bool {
	recovered, err := RecoverSigner(message, signature)
	if err != nil {
		return false
	}
	return strings.EqualFold(recovered.Hex(), walletAddress)
}
