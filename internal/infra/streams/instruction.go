/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package streams

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math"

	"github.com/gagliardetto/solana-go"
)

// VerifyDiscriminator is the Anchor discriminator of the Verifier's "verify" instruction.
var VerifyDiscriminator = anchorDiscriminator("verify")

func anchorDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// InstructionBuilder defines the Verifier program SDK surface used to submit reports.
type InstructionBuilder interface {
	VerifierConfigAddress(programID solana.PublicKey) (solana.PublicKey, error)
	ReportConfigAddress(report []byte, programID solana.PublicKey) (solana.PublicKey, error)
	Verify(
		programID solana.PublicKey,
		verifierAccount solana.PublicKey,
		accessControllerAccount solana.PublicKey,
		user solana.PublicKey,
		reportConfigAccount solana.PublicKey,
		compressedReport []byte,
	) (solana.Instruction, error)
}

// Instructions is the InstructionBuilder for the deployed Verifier program.
type Instructions struct{}

var _ InstructionBuilder = Instructions{}

func (Instructions) VerifierConfigAddress(programID solana.PublicKey) (solana.PublicKey, error) {
	return VerifierConfigAddress(programID)
}

func (Instructions) ReportConfigAddress(report []byte, programID solana.PublicKey) (solana.PublicKey, error) {
	return ReportConfigAddress(report, programID)
}

// Verify builds the "verify" instruction. The data layout is the Anchor
// discriminator followed by the compressed report as a borsh byte vector.
func (Instructions) Verify(
	programID solana.PublicKey,
	verifierAccount solana.PublicKey,
	accessControllerAccount solana.PublicKey,
	user solana.PublicKey,
	reportConfigAccount solana.PublicKey,
	compressedReport []byte,
) (solana.Instruction, error) {
	if len(compressedReport) == 0 {
		return nil, errors.New("compressed report is empty")
	}
	if uint64(len(compressedReport)) > math.MaxUint32 {
		return nil, errors.New("compressed report exceeds u32 length prefix")
	}

	data := make([]byte, 0, len(VerifyDiscriminator)+4+len(compressedReport))
	data = append(data, VerifyDiscriminator[:]...)
	data = binary.LittleEndian.AppendUint32(data, uint32(len(compressedReport)))
	data = append(data, compressedReport...)

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(verifierAccount, false, false),
		solana.NewAccountMeta(accessControllerAccount, false, false),
		solana.NewAccountMeta(user, false, true),
		solana.NewAccountMeta(reportConfigAccount, false, false),
	}

	return solana.NewInstruction(programID, accounts, data), nil
}
