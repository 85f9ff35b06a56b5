// Package chain mirrors new high scores to an on-chain leaderboard
// contract. Mirroring is strictly best-effort: the off-chain store is
// the source of truth and a failed transaction never fails a
// submission.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/snakebase/snakebase/internal/config"
)

const submitGasLimit = 120000

// EthSubmitter submits high scores to the leaderboard contract via a
// JSON-RPC endpoint.
type EthSubmitter struct {
	client   *ethclient.Client
	key      *ecdsa.PrivateKey
	from     common.Address
	contract common.Address
	chainID  *big.Int
	selector []byte
	logger   *slog.Logger
}

// NewEthSubmitter dials the RPC endpoint and prepares the signing key.
func NewEthSubmitter(cfg *config.ChainConfig, logger *slog.Logger) (*EthSubmitter, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dialing rpc endpoint: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("malformed contract address %q", cfg.ContractAddress)
	}

	return &EthSubmitter{
		client:   client,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		contract: common.HexToAddress(cfg.ContractAddress),
		chainID:  big.NewInt(cfg.ChainID),
		selector: crypto.Keccak256([]byte("submitScore(address,uint256)"))[:4],
		logger:   logger,
	}, nil
}

// SubmitHighScore sends a submitScore transaction for the wallet and
// returns the transaction hash. It does not wait for inclusion.
func (s *EthSubmitter) SubmitHighScore(ctx context.Context, walletAddress string, score int64) (string, error) {
	nonce, err := s.client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return "", fmt.Errorf("fetching account nonce: %w", err)
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("fetching gas price: %w", err)
	}

	data := make([]byte, 0, 4+64)
	data = append(data, s.selector...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(walletAddress).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(big.NewInt(score).Bytes(), 32)...)

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &s.contract,
		Gas:      submitGasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return "", fmt.Errorf("signing transaction: %w", err)
	}
	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("sending transaction: %w", err)
	}
	return signed.Hash().Hex(), nil
}

// Close releases the RPC connection.
func (s *EthSubmitter) Close() {
	s.client.Close()
}
