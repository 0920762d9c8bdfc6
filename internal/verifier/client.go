/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package verifier

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/kentakayama/streams-verifier/internal/domain/model"
	"github.com/kentakayama/streams-verifier/internal/infra/chain"
	"github.com/kentakayama/streams-verifier/internal/infra/streams"
)

// Client submits signed Data Streams reports to the on-chain Verifier program.
// All fields are fixed at construction, so one Client may serve concurrent calls.
type Client struct {
	programID               solana.PublicKey
	verifierAccount         solana.PublicKey
	accessControllerAccount solana.PublicKey
	rpc                     chain.RPC
	payer                   solana.PrivateKey
	instructions            streams.InstructionBuilder
	timeout                 time.Duration
	logger                  *log.Logger
}

type Option func(*Client)

// WithInstructionBuilder replaces the Verifier program SDK.
func WithInstructionBuilder(b streams.InstructionBuilder) Option {
	return func(c *Client) {
		c.instructions = b
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTimeout bounds each Verify call. Zero leaves the caller's context as the only deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func New(programID, accessControllerAccount solana.PublicKey, rpc chain.RPC, payer solana.PrivateKey, opts ...Option) (*Client, error) {
	c := &Client{
		programID:               programID,
		accessControllerAccount: accessControllerAccount,
		rpc:                     rpc,
		payer:                   payer,
		instructions:            streams.Instructions{},
		logger:                  log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	verifierAccount, err := c.instructions.VerifierConfigAddress(programID)
	if err != nil {
		return nil, err
	}
	c.verifierAccount = verifierAccount

	return c, nil
}

func (c *Client) ProgramID() solana.PublicKey {
	return c.programID
}

func (c *Client) Payer() solana.PublicKey {
	return c.payer.PublicKey()
}

// Verify submits one verify transaction for the report and returns the
// confirmed signature together with the program's return data, if any.
// Nothing is retried; calling Verify twice submits two transactions.
//
// If the transaction was confirmed but its return data cannot be decoded, the
// returned result still carries the signature and the error wraps ErrDecode.
func (c *Client) Verify(ctx context.Context, report []byte) (*model.VerificationResult, error) {
	if len(report) == 0 {
		return nil, fmt.Errorf("%w: refusing to submit empty report", ErrInvalidReport)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	reportConfigAccount, err := c.instructions.ReportConfigAddress(report, c.programID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidReport, err)
	}

	compressed, err := streams.CompressReport(report)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompression, err)
	}

	payer := c.payer.PublicKey()
	ix, err := c.instructions.Verify(
		c.programID,
		c.verifierAccount,
		c.accessControllerAccount,
		payer,
		reportConfigAccount,
		compressed,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInstruction, err)
	}

	blockhash, err := c.rpc.LatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRPC, err)
	}

	tx, err := solana.NewTransaction([]solana.Instruction{ix}, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("%w: build transaction: %w", ErrInstruction, err)
	}
	if _, err := tx.Sign(c.signerFor); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	sig, err := c.rpc.SendAndConfirm(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRPC, err)
	}
	c.logger.Printf("Report verification confirmed: %s", sig)

	confirmed, err := c.rpc.ConfirmedTransaction(ctx, sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRPC, err)
	}

	result := &model.VerificationResult{
		Signature: sig,
		Slot:      confirmed.Slot,
	}
	returnData, err := decodeReturnData(confirmed)
	if err != nil {
		// the transaction is on chain; keep the signature for the caller
		return result, fmt.Errorf("%w: %s: %w", ErrDecode, sig, err)
	}
	result.ReturnData = returnData

	return result, nil
}

func (c *Client) signerFor(key solana.PublicKey) *solana.PrivateKey {
	if key.Equals(c.payer.PublicKey()) {
		return &c.payer
	}
	return nil
}

func decodeReturnData(tx *chain.ConfirmedTransaction) ([]byte, error) {
	if tx == nil || tx.Meta == nil || tx.Meta.ReturnData == nil {
		return nil, nil
	}

	data := tx.Meta.ReturnData.Data
	if data.Encoding != "" && data.Encoding != string(solana.EncodingBase64) {
		return nil, fmt.Errorf("unexpected return data encoding %q", data.Encoding)
	}
	decoded, err := base64.StdEncoding.DecodeString(data.Content)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}
