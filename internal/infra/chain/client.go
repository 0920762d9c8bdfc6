/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package chain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/kentakayama/streams-verifier/internal/config"
)

const (
	defaultConfirmTimeout = 60 * time.Second
	defaultPollInterval   = 500 * time.Millisecond
	defaultCommitment     = rpc.CommitmentFinalized
)

// Client talks to a Solana JSON-RPC endpoint.
type Client struct {
	rpc            *rpc.Client
	commitment     rpc.CommitmentType
	skipPreflight  bool
	confirmTimeout time.Duration
	pollInterval   time.Duration
	logger         *log.Logger
}

var _ RPC = (*Client)(nil)

func NewClient(cfg config.RPCConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("rpc endpoint is required")
	}

	commitment := defaultCommitment
	if cfg.Commitment != "" {
		commitment = rpc.CommitmentType(cfg.Commitment)
		if commitmentRank(commitment) < commitmentRank(rpc.CommitmentConfirmed) {
			// the transaction is fetched at confirmed right after the wait
			return nil, fmt.Errorf("unsupported commitment %q: must be confirmed or finalized", cfg.Commitment)
		}
	}

	timeout := cfg.ConfirmTimeout
	if timeout == 0 {
		timeout = defaultConfirmTimeout
	}
	interval := cfg.PollInterval
	if interval == 0 {
		interval = defaultPollInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Client{
		rpc:            rpc.New(cfg.Endpoint),
		commitment:     commitment,
		skipPreflight:  cfg.SkipPreflight,
		confirmTimeout: timeout,
		pollInterval:   interval,
		logger:         logger,
	}, nil
}

func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, errors.New("get latest blockhash: empty result")
	}
	return out.Value.Blockhash, nil
}

// SendAndConfirm submits the transaction once and blocks until it reaches the
// configured commitment, fails on chain, or the confirm timeout elapses.
func (c *Client) SendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       c.skipPreflight,
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	c.logger.Printf("Sent transaction %s, waiting for %s commitment", sig, c.commitment)

	if err := c.waitForConfirmation(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}

func (c *Client) waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		confirmed, err := c.checkStatus(ctx, sig)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %s: %w", ErrConfirmTimeout, sig, ctx.Err())
			}
			return err
		}
		if confirmed {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", ErrConfirmTimeout, sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) checkStatus(ctx context.Context, sig solana.Signature) (bool, error) {
	out, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
	if err != nil {
		return false, fmt.Errorf("get signature status: %w", err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		// not yet seen by the node
		return false, nil
	}

	status := out.Value[0]
	if status.Err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrTransactionFailed, sig, status.Err)
	}
	return commitmentRank(rpc.CommitmentType(status.ConfirmationStatus)) >= commitmentRank(c.commitment), nil
}

// ConfirmedTransaction fetches a confirmed transaction. Only legacy and v0
// transactions are accepted; the node rejects newer versions.
func (c *Client) ConfirmedTransaction(ctx context.Context, signature solana.Signature) (*ConfirmedTransaction, error) {
	params := []any{
		signature.String(),
		map[string]any{
			"encoding":                       solana.EncodingBase64,
			"commitment":                     rpc.CommitmentConfirmed,
			"maxSupportedTransactionVersion": 0,
		},
	}

	var out *ConfirmedTransaction
	if err := c.rpc.RPCCallForInto(ctx, &out, "getTransaction", params); err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", signature, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, signature)
	}
	return out, nil
}

func commitmentRank(c rpc.CommitmentType) int {
	switch c {
	case rpc.CommitmentProcessed:
		return 1
	case rpc.CommitmentConfirmed:
		return 2
	case rpc.CommitmentFinalized:
		return 3
	default:
		return 0
	}
}
