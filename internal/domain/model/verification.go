/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// VerificationResult is what the Verifier program reported for one confirmed transaction.
// ReturnData is nil when the transaction carried no return data.
type VerificationResult struct {
	Signature  solana.Signature
	ReturnData []byte
	Slot       uint64
}

// Verification represents a submitted and confirmed report verification.
type Verification struct {
	ID           int64
	RequestID    string
	Signature    string
	ProgramID    string
	Payer        string
	ReportDigest []byte
	ReturnData   []byte
	Slot         uint64
	Receipt      []byte
	CreatedAt    time.Time
}
