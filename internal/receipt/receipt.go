/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package receipt

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gagliardetto/solana-go"
	"github.com/veraison/go-cose"

	"github.com/kentakayama/streams-verifier/internal/domain/model"
)

// ContentType is the media type of a signed receipt.
const ContentType = `application/cose; cose-type="cose-sign1"`

var (
	ErrInvalidReceipt = errors.New("invalid receipt")
	ErrKeyMismatch    = errors.New("receipt key id does not match")
)

// FieldLabels names the integer keys of an encoded Receipt.
var FieldLabels = map[uint64]string{
	1: "signature",
	2: "program-id",
	3: "payer",
	4: "report-digest",
	5: "return-data",
	6: "slot",
	7: "issued-at",
}

// Receipt attests that a report was verified on chain by the given transaction.
type Receipt struct {
	Signature    []byte `cbor:"1,keyasint"`
	ProgramID    []byte `cbor:"2,keyasint"`
	Payer        []byte `cbor:"3,keyasint"`
	ReportDigest []byte `cbor:"4,keyasint"`
	ReturnData   []byte `cbor:"5,keyasint,omitempty"`
	Slot         uint64 `cbor:"6,keyasint,omitempty"`
	IssuedAt     int64  `cbor:"7,keyasint"`
}

// ReportDigest is the digest a receipt records for a report.
func ReportDigest(report []byte) []byte {
	digest := sha256.Sum256(report)
	return digest[:]
}

func New(result *model.VerificationResult, programID, payer solana.PublicKey, report []byte, issuedAt time.Time) *Receipt {
	return &Receipt{
		Signature:    bytes.Clone(result.Signature[:]),
		ProgramID:    bytes.Clone(programID[:]),
		Payer:        bytes.Clone(payer[:]),
		ReportDigest: ReportDigest(report),
		ReturnData:   bytes.Clone(result.ReturnData),
		Slot:         result.Slot,
		IssuedAt:     issuedAt.Unix(),
	}
}

// TransactionSignature returns the verified transaction's signature.
func (r *Receipt) TransactionSignature() (solana.Signature, error) {
	var sig solana.Signature
	if len(r.Signature) != len(sig) {
		return solana.Signature{}, fmt.Errorf("%w: signature length %d", ErrInvalidReceipt, len(r.Signature))
	}
	copy(sig[:], r.Signature)
	return sig, nil
}

// COSESign1Sign signs the receipt with the payer's ed25519 key.
// The key id header carries the payer's public key.
func (r *Receipt) COSESign1Sign(key solana.PrivateKey) ([]byte, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("unexpected private key length %d", len(key))
	}

	signer, err := cose.NewSigner(cose.AlgorithmEdDSA, ed25519.PrivateKey(key))
	if err != nil {
		return nil, err
	}

	pub := key.PublicKey()
	headers := cose.Headers{
		Protected: cose.ProtectedHeader{
			cose.HeaderLabelAlgorithm: cose.AlgorithmEdDSA,
		},
		Unprotected: cose.UnprotectedHeader{
			cose.HeaderLabelKeyID: pub[:],
		},
	}

	payload, err := cbor.Marshal(r)
	if err != nil {
		return nil, err
	}

	return cose.Sign1(rand.Reader, signer, headers, payload, nil)
}

// COSESign1Verify checks a signed receipt against the payer's public key and,
// on success, decodes the payload into r.
func (r *Receipt) COSESign1Verify(pub solana.PublicKey, signed []byte) error {
	verifier, err := cose.NewVerifier(cose.AlgorithmEdDSA, ed25519.PublicKey(pub[:]))
	if err != nil {
		return err
	}

	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(signed); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidReceipt, err)
	}
	if kid, ok := msg.Headers.Unprotected[cose.HeaderLabelKeyID].([]byte); ok && !bytes.Equal(kid, pub[:]) {
		return ErrKeyMismatch
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return err
	}

	var decoded Receipt
	if err := cbor.Unmarshal(msg.Payload, &decoded); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidReceipt, err)
	}
	if !bytes.Equal(decoded.Payer, pub[:]) {
		return ErrKeyMismatch
	}
	*r = decoded
	return nil
}

// Payload returns the unverified receipt payload of a signed receipt.
func Payload(signed []byte) ([]byte, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(signed); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidReceipt, err)
	}
	return msg.Payload, nil
}
