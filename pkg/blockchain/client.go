package blockchain

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/sipeed/monopay/pkg/logger"
)

// RPC is the subset of the ledger JSON-RPC API the wallet uses.
type RPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetSignaturesForAddressWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error)
	GetTransaction(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
}

// Client wraps one ledger RPC endpoint.
type Client struct {
	rpc        RPC
	commitment rpc.CommitmentType
}

// NewClient dials nothing; the RPC client connects per request.
func NewClient(rpcURL, commitment string) *Client {
	logger.InfoCF("blockchain", "Using ledger RPC", map[string]any{
		"rpc":        rpcURL,
		"commitment": commitment,
	})
	return NewClientWithRPC(rpc.New(rpcURL), commitment)
}

func NewClientWithRPC(r RPC, commitment string) *Client {
	c := rpc.CommitmentType(commitment)
	if c == "" {
		c = rpc.CommitmentConfirmed
	}
	return &Client{rpc: r, commitment: c}
}

func (c *Client) Commitment() rpc.CommitmentType {
	return c.commitment
}

func parseAddress(address string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid address %q: %w", address, err)
	}
	return pk, nil
}
