/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package streams

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ConfigDigestLength is the size of the config digest every signed report starts with.
const ConfigDigestLength = 32

var (
	verifierSeed = []byte("verifier")

	ErrReportTooShort = errors.New("report shorter than config digest")
)

// ConfigDigest returns the config digest prefix of a signed report.
func ConfigDigest(report []byte) ([]byte, error) {
	if len(report) < ConfigDigestLength {
		return nil, fmt.Errorf("%w: %d < %d", ErrReportTooShort, len(report), ConfigDigestLength)
	}
	return report[:ConfigDigestLength], nil
}

// VerifierConfigAddress derives the program-wide verifier account.
func VerifierConfigAddress(programID solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{verifierSeed}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive verifier config address: %w", err)
	}
	return addr, nil
}

// ReportConfigAddress derives the config account the report was signed under.
// The account is seeded by the report's config digest, so identical reports
// always map to the same address.
func ReportConfigAddress(report []byte, programID solana.PublicKey) (solana.PublicKey, error) {
	digest, err := ConfigDigest(report)
	if err != nil {
		return solana.PublicKey{}, err
	}
	addr, _, err := solana.FindProgramAddress([][]byte{digest}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive report config address: %w", err)
	}
	return addr, nil
}
