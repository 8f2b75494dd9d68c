package blockchain

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/sipeed/monopay/pkg/logger"
)

// SignerFunc returns the private key for a required signer, or nil if unknown.
type SignerFunc func(key solana.PublicKey) *solana.PrivateKey

// KeySigner signs with exactly one key.
func KeySigner(key solana.PrivateKey) SignerFunc {
	pub := key.PublicKey()
	return func(k solana.PublicKey) *solana.PrivateKey {
		if k.Equals(pub) {
			return &key
		}
		return nil
	}
}

// TransferService handles native token transfers
type TransferService struct {
	client *Client
}

func NewTransferService(client *Client) *TransferService {
	return &TransferService{client: client}
}

// TransferNative builds, signs and submits a system transfer of lamports from
// from to to. It returns once the node accepts the transaction.
func (ts *TransferService) TransferNative(
	ctx context.Context,
	from string,
	to string,
	lamports uint64,
	signer SignerFunc,
) (solana.Signature, error) {
	fromPK, err := parseAddress(from)
	if err != nil {
		return solana.Signature{}, err
	}
	toPK, err := parseAddress(to)
	if err != nil {
		return solana.Signature{}, err
	}
	if lamports == 0 {
		return solana.Signature{}, fmt.Errorf("transfer amount must be positive")
	}

	recent, err := ts.client.rpc.GetLatestBlockhash(ctx, ts.client.commitment)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(lamports, fromPK, toPK).Build(),
		},
		recent.Value.Blockhash,
		solana.TransactionPayer(fromPK),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to build transaction: %w", err)
	}

	if _, err := tx.Sign(func(k solana.PublicKey) *solana.PrivateKey { return signer(k) }); err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := ts.client.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: ts.client.commitment,
	})
	if err != nil {
		logger.ErrorCF("blockchain", "Send transaction failed", map[string]any{
			"from":  logger.ShortAddress(from),
			"to":    logger.ShortAddress(to),
			"error": err.Error(),
		})
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	logger.InfoCF("blockchain", "Transfer submitted", map[string]any{
		"from":      logger.ShortAddress(from),
		"to":        logger.ShortAddress(to),
		"lamports":  lamports,
		"signature": sig.String(),
	})
	return sig, nil
}
