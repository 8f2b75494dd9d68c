package blockchain

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// system program instruction index for Transfer
const systemTransferIndex = 2

// Instruction is a decoded ledger instruction: Transfer or Other.
type Instruction interface {
	instruction()
}

type Transfer struct {
	From     string
	To       string
	Lamports uint64
}

// Other is any instruction that is not a recognised native transfer.
type Other struct {
	ProgramID string
	Raw       []byte
}

func (Transfer) instruction() {}
func (Other) instruction()    {}

type Direction string

const (
	DirectionIn      Direction = "in"
	DirectionOut     Direction = "out"
	DirectionSelf    Direction = "self"
	DirectionUnknown Direction = "unknown"
)

// SignatureInfo is one entry from the address signature list.
type SignatureInfo struct {
	Signature          string
	Slot               uint64
	Time               time.Time
	ConfirmationStatus string
	Failed             bool
}

// TransactionRecord is a read-only view of a transaction as seen by owner.
type TransactionRecord struct {
	Signature    string
	Time         time.Time
	Direction    Direction
	Counterparty string
	Lamports     uint64
	Status       string
	Failed       bool
	Instructions []Instruction
}

// RecentSignatures returns up to limit signatures, newest first.
func (c *Client) RecentSignatures(ctx context.Context, address string, limit int) ([]SignatureInfo, error) {
	pk, err := parseAddress(address)
	if err != nil {
		return nil, err
	}
	opts := &rpc.GetSignaturesForAddressOpts{Commitment: c.commitment}
	if limit > 0 {
		opts.Limit = &limit
	}
	out, err := c.rpc.GetSignaturesForAddressWithOpts(ctx, pk, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get signatures: %w", err)
	}

	infos := make([]SignatureInfo, 0, len(out))
	for _, s := range out {
		if s == nil {
			continue
		}
		info := SignatureInfo{
			Signature:          s.Signature.String(),
			Slot:               s.Slot,
			ConfirmationStatus: string(s.ConfirmationStatus),
			Failed:             s.Err != nil,
		}
		if s.BlockTime != nil {
			info.Time = s.BlockTime.Time()
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// TransactionDetail fetches one transaction and views it from owner's side.
func (c *Client) TransactionDetail(ctx context.Context, signature, owner string) (*TransactionRecord, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature %q: %w", signature, err)
	}
	maxVersion := uint64(0)
	out, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     c.commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if out == nil || out.Transaction == nil {
		return nil, fmt.Errorf("transaction %s not available", signature)
	}
	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	rec := BuildRecord(signature, owner, tx, out.Meta)
	if out.BlockTime != nil {
		rec.Time = out.BlockTime.Time()
	}
	return rec, nil
}

// DecodeInstructions maps every compiled instruction to Transfer or Other.
// Account indexes outside the static key list (lookup tables) yield Other.
func DecodeInstructions(tx *solana.Transaction) []Instruction {
	if tx == nil {
		return nil
	}
	keys := tx.Message.AccountKeys
	out := make([]Instruction, 0, len(tx.Message.Instructions))
	for _, ix := range tx.Message.Instructions {
		out = append(out, decodeInstruction(keys, ix))
	}
	return out
}

func decodeInstruction(keys solana.PublicKeySlice, ix solana.CompiledInstruction) Instruction {
	raw := []byte(ix.Data)
	if int(ix.ProgramIDIndex) >= len(keys) {
		return Other{Raw: raw}
	}
	program := keys[ix.ProgramIDIndex]
	other := Other{ProgramID: program.String(), Raw: raw}

	if !program.Equals(solana.SystemProgramID) || len(raw) != 12 || len(ix.Accounts) < 2 {
		return other
	}
	if binary.LittleEndian.Uint32(raw[:4]) != systemTransferIndex {
		return other
	}
	from, to := int(ix.Accounts[0]), int(ix.Accounts[1])
	if from >= len(keys) || to >= len(keys) {
		return other
	}
	return Transfer{
		From:     keys[from].String(),
		To:       keys[to].String(),
		Lamports: binary.LittleEndian.Uint64(raw[4:]),
	}
}

// BuildRecord derives a TransactionRecord for owner. The first transfer that
// touches owner decides direction and amount; without one, owner's balance
// delta from meta is used.
func BuildRecord(signature, owner string, tx *solana.Transaction, meta *rpc.TransactionMeta) *TransactionRecord {
	rec := &TransactionRecord{
		Signature:    signature,
		Direction:    DirectionUnknown,
		Status:       "confirmed",
		Instructions: DecodeInstructions(tx),
	}
	if meta != nil && meta.Err != nil {
		rec.Failed = true
		rec.Status = "failed"
	}

	for _, ix := range rec.Instructions {
		switch v := ix.(type) {
		case Transfer:
			switch {
			case v.From == owner && v.To == owner:
				rec.Direction = DirectionSelf
				rec.Counterparty = owner
			case v.From == owner:
				rec.Direction = DirectionOut
				rec.Counterparty = v.To
			case v.To == owner:
				rec.Direction = DirectionIn
				rec.Counterparty = v.From
			default:
				continue
			}
			rec.Lamports = v.Lamports
			return rec
		case Other:
		}
	}

	if tx == nil || meta == nil {
		return rec
	}
	for i, k := range tx.Message.AccountKeys {
		if k.String() != owner || i >= len(meta.PreBalances) || i >= len(meta.PostBalances) {
			continue
		}
		pre, post := meta.PreBalances[i], meta.PostBalances[i]
		switch {
		case post > pre:
			rec.Direction = DirectionIn
			rec.Lamports = post - pre
		case pre > post:
			rec.Direction = DirectionOut
			rec.Lamports = pre - post
		}
		break
	}
	return rec
}
