/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrTransactionFailed   = errors.New("transaction failed")
	ErrConfirmTimeout      = errors.New("transaction not confirmed before deadline")
)

// RPC defines the ledger endpoint calls needed to submit a transaction and read back its outcome.
type RPC interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	ConfirmedTransaction(ctx context.Context, signature solana.Signature) (*ConfirmedTransaction, error)
}

// ConfirmedTransaction is the subset of a getTransaction result this module reads.
type ConfirmedTransaction struct {
	Slot      uint64           `json:"slot"`
	BlockTime *int64           `json:"blockTime"`
	Version   json.RawMessage  `json:"version,omitempty"`
	Meta      *TransactionMeta `json:"meta"`
}

type TransactionMeta struct {
	Err                  any         `json:"err"`
	Fee                  uint64      `json:"fee"`
	LogMessages          []string    `json:"logMessages"`
	ComputeUnitsConsumed *uint64     `json:"computeUnitsConsumed,omitempty"`
	ReturnData           *ReturnData `json:"returnData,omitempty"`
}

// ReturnData is left in its wire encoding; decoding is up to the caller.
type ReturnData struct {
	ProgramID solana.PublicKey `json:"programId"`
	Data      EncodedData      `json:"data"`
}

// EncodedData is the ["<content>", "<encoding>"] pair the RPC uses for binary fields.
type EncodedData struct {
	Content  string
	Encoding string
}

func (d EncodedData) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{d.Content, d.Encoding})
}

func (d *EncodedData) UnmarshalJSON(b []byte) error {
	var pair []string
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("decode encoded data: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("decode encoded data: expected [content, encoding], got %d elements", len(pair))
	}
	d.Content = pair[0]
	d.Encoding = pair[1]
	return nil
}
