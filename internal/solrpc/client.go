// Package solrpc wraps gagliardetto/solana-go's JSON-RPC client for the
// Solana wallet tracker: slot height, SOL balance, recent signatures,
// and parsed transaction detail. Mirrors internal/evmrpc's shape
// (long-lived per-chain client, retry-wrapped calls) since both
// trackers share the same per-tick polling contract from spec.md §4.6.
package solrpc

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/svyatogor45/marketmonitor/internal/errs"
	"github.com/svyatogor45/marketmonitor/pkg/retry"
)

// Client is a long-lived, process-wide Solana JSON-RPC client.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to endpoint (an HTTP JSON-RPC URL).
func Dial(endpoint string) *Client {
	return &Client{rpc: rpc.New(endpoint)}
}

// Slot returns the current finalized slot height.
func (c *Client) Slot(ctx context.Context) (uint64, error) {
	var slot uint64
	err := retry.Do(ctx, func() error {
		var err error
		slot, err = c.rpc.GetSlot(ctx, rpc.CommitmentFinalized)
		if err != nil {
			return errs.Wrap(errs.TransientNetwork, err)
		}
		return nil
	}, retry.NetworkConfig())
	return slot, err
}

// Balance returns the wallet's SOL balance in lamports.
func (c *Client) Balance(ctx context.Context, wallet solana.PublicKey) (uint64, error) {
	var lamports uint64
	err := retry.Do(ctx, func() error {
		out, err := c.rpc.GetBalance(ctx, wallet, rpc.CommitmentFinalized)
		if err != nil {
			return errs.Wrap(errs.TransientNetwork, err)
		}
		lamports = out.Value
		return nil
	}, retry.NetworkConfig())
	return lamports, err
}

// Signature is a recent signature for an address, with its slot.
type Signature struct {
	Signature solana.Signature
	Slot      uint64
	Err       interface{}
}

// RecentSignatures fetches up to limit recent signatures for wallet,
// finalized commitment.
func (c *Client) RecentSignatures(ctx context.Context, wallet solana.PublicKey, limit int) ([]Signature, error) {
	var out []Signature
	err := retry.Do(ctx, func() error {
		res, err := c.rpc.GetSignaturesForAddressWithOpts(ctx, wallet, &rpc.GetSignaturesForAddressOpts{
			Limit:      &limit,
			Commitment: rpc.CommitmentFinalized,
		})
		if err != nil {
			return errs.Wrap(errs.TransientNetwork, err)
		}
		out = make([]Signature, 0, len(res))
		for _, sig := range res {
			out = append(out, Signature{Signature: sig.Signature, Slot: sig.Slot, Err: sig.Err})
		}
		return nil
	}, retry.NetworkConfig())
	return out, err
}

// Transaction is the subset of a parsed transaction's detail the wallet
// tracker needs: balance deltas for SOL and SPL token accounts, plus
// raw log messages for best-effort DEX/marketplace inference.
type Transaction struct {
	Slot           uint64
	Success        bool
	Fee            uint64
	PreBalances    []uint64
	PostBalances   []uint64
	PreTokenBalances  []rpc.TokenBalance
	PostTokenBalances []rpc.TokenBalance
	AccountKeys    []solana.PublicKey
	LogMessages    []string
}

// GetTransaction fetches full parsed detail for sig.
func (c *Client) GetTransaction(ctx context.Context, sig solana.Signature) (*Transaction, error) {
	var tx *Transaction
	err := retry.Do(ctx, func() error {
		maxVersion := uint64(0)
		res, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Commitment:                     rpc.CommitmentFinalized,
			MaxSupportedTransactionVersion: &maxVersion,
		})
		if err != nil {
			return errs.Wrap(errs.TransientNetwork, err)
		}
		if res == nil || res.Meta == nil {
			return errs.Wrap(errs.InvalidPayload, errors.New("solrpc: empty transaction response"))
		}
		accountKeys := make([]solana.PublicKey, 0)
		if res.Transaction != nil {
			decoded, decErr := res.Transaction.GetTransaction()
			if decErr == nil && decoded != nil {
				accountKeys = decoded.Message.AccountKeys
			}
		}
		tx = &Transaction{
			Slot:              res.Slot,
			Success:           res.Meta.Err == nil,
			Fee:               res.Meta.Fee,
			PreBalances:       res.Meta.PreBalances,
			PostBalances:      res.Meta.PostBalances,
			PreTokenBalances:  res.Meta.PreTokenBalances,
			PostTokenBalances: res.Meta.PostTokenBalances,
			AccountKeys:       accountKeys,
			LogMessages:       res.Meta.LogMessages,
		}
		return nil
	}, retry.NetworkConfig())
	return tx, err
}
