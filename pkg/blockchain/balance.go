package blockchain

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/gagliardetto/solana-go"
)

// BalanceInfo contains balance information
type BalanceInfo struct {
	Address  string
	Lamports uint64
}

func (b *BalanceInfo) SOL() float64 {
	return LamportsToSOL(b.Lamports)
}

// FormattedBalance renders the balance with up to 9 decimals and no trailing zeros.
func (b *BalanceInfo) FormattedBalance() string {
	return strconv.FormatFloat(b.SOL(), 'f', -1, 64)
}

// GetBalance fetches the native balance for address.
func (c *Client) GetBalance(ctx context.Context, address string) (*BalanceInfo, error) {
	pk, err := parseAddress(address)
	if err != nil {
		return nil, err
	}
	out, err := c.rpc.GetBalance(ctx, pk, c.commitment)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return &BalanceInfo{Address: address, Lamports: out.Value}, nil
}

func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / float64(solana.LAMPORTS_PER_SOL)
}

// SOLToLamports rounds to the nearest lamport.
func SOLToLamports(sol float64) (uint64, error) {
	if math.IsNaN(sol) || math.IsInf(sol, 0) || sol <= 0 {
		return 0, fmt.Errorf("invalid amount %v", sol)
	}
	lamports := math.Round(sol * float64(solana.LAMPORTS_PER_SOL))
	if lamports < 1 || lamports > math.MaxUint64/2 {
		return 0, fmt.Errorf("amount %v out of range", sol)
	}
	return uint64(lamports), nil
}
