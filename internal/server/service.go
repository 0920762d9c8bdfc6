/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/kentakayama/streams-verifier/internal/domain"
	"github.com/kentakayama/streams-verifier/internal/domain/model"
	"github.com/kentakayama/streams-verifier/internal/domain/service"
	"github.com/kentakayama/streams-verifier/internal/receipt"
	"github.com/kentakayama/streams-verifier/internal/verifier"
)

// ReportVerifier is implemented by *verifier.Client.
type ReportVerifier interface {
	Verify(ctx context.Context, report []byte) (*model.VerificationResult, error)
	ProgramID() solana.PublicKey
	Payer() solana.PublicKey
}

// Service submits reports, signs receipts for confirmed verifications and keeps the ledger.
type Service struct {
	verifier   ReportVerifier
	signingKey solana.PrivateKey
	repo       service.VerificationRepository
	logger     *log.Logger
	now        func() time.Time
}

// Submission is the outcome of one Submit call.
type Submission struct {
	RequestID string
	Result    *model.VerificationResult
	Receipt   []byte
}

func NewService(v ReportVerifier, signingKey solana.PrivateKey, repo service.VerificationRepository, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		verifier:   v,
		signingKey: signingKey,
		repo:       repo,
		logger:     logger,
		now:        time.Now,
	}
}

// Submit verifies the report on chain and records a signed receipt.
// On a return data decode failure the submission is returned along with the
// error so the transaction signature is not lost; no receipt is issued.
func (s *Service) Submit(ctx context.Context, report []byte) (*Submission, error) {
	sub := &Submission{RequestID: uuid.NewString()}

	result, err := s.verifier.Verify(ctx, report)
	sub.Result = result
	if err != nil {
		if errors.Is(err, verifier.ErrDecode) && result != nil {
			s.logger.Printf("[%s] verified %s but return data is malformed: %v", sub.RequestID, result.Signature, err)
			return sub, err
		}
		s.logger.Printf("[%s] verification failed: %v", sub.RequestID, err)
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Second)
	rcpt := receipt.New(result, s.verifier.ProgramID(), s.verifier.Payer(), report, now)
	signed, err := rcpt.COSESign1Sign(s.signingKey)
	if err != nil {
		return sub, fmt.Errorf("sign receipt: %w", err)
	}
	sub.Receipt = signed

	if s.repo != nil {
		record := &model.Verification{
			RequestID:    sub.RequestID,
			Signature:    result.Signature.String(),
			ProgramID:    s.verifier.ProgramID().String(),
			Payer:        s.verifier.Payer().String(),
			ReportDigest: rcpt.ReportDigest,
			ReturnData:   result.ReturnData,
			Slot:         result.Slot,
			Receipt:      signed,
			CreatedAt:    now,
		}
		if _, err := s.repo.Create(ctx, record); err != nil {
			return sub, fmt.Errorf("record verification: %w", err)
		}
	}

	s.logger.Printf("[%s] report verified in slot %d: %s (%d bytes of return data)", sub.RequestID, result.Slot, result.Signature, len(result.ReturnData))
	return sub, nil
}

// Receipt returns the signed receipt recorded for a transaction signature.
func (s *Service) Receipt(ctx context.Context, signature string) ([]byte, error) {
	if _, err := solana.SignatureFromBase58(signature); err != nil {
		return nil, fmt.Errorf("parse signature: %w", err)
	}
	if s.repo == nil {
		return nil, domain.ErrNotFound
	}

	v, err := s.repo.FindBySignature(ctx, signature)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, domain.ErrNotFound
	}
	return v.Receipt, nil
}

// History returns the signed receipts recorded for every submission of the
// report, oldest first.
func (s *Service) History(ctx context.Context, report []byte) ([][]byte, error) {
	if s.repo == nil {
		return nil, domain.ErrNotFound
	}

	records, err := s.repo.ListByReportDigest(ctx, receipt.ReportDigest(report))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domain.ErrNotFound
	}

	receipts := make([][]byte, 0, len(records))
	for _, v := range records {
		receipts = append(receipts, v.Receipt)
	}
	return receipts, nil
}
