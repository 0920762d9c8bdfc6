/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/kentakayama/streams-verifier/internal/domain"
	"github.com/kentakayama/streams-verifier/internal/domain/model"
)

// VerificationRepository handles verification persistence.
type VerificationRepository struct {
	db *sql.DB
}

func NewVerificationRepository(db *sql.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// Create inserts a new verification and returns the inserted id.
func (r *VerificationRepository) Create(ctx context.Context, v *model.Verification) (int64, error) {
	const q = `
		INSERT INTO verifications (request_id, signature, program_id, payer, report_digest, return_data, slot, receipt, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := r.db.ExecContext(ctx, q, v.RequestID, v.Signature, v.ProgramID, v.Payer, v.ReportDigest, v.ReturnData, int64(v.Slot), v.Receipt, v.CreatedAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, fmt.Errorf("insert verification %s: %w", v.Signature, domain.ErrDuplicate)
		}
		return 0, fmt.Errorf("insert verification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, nil
}

// FindBySignature returns a verification by its base58 transaction signature.
func (r *VerificationRepository) FindBySignature(ctx context.Context, signature string) (*model.Verification, error) {
	const q = `
		SELECT id, request_id, signature, program_id, payer, report_digest, return_data, slot, receipt, created_at
		FROM verifications
		WHERE signature = ?
		LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, q, signature)
	v, err := scanVerification(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan verification: %w", err)
	}
	return v, nil
}

// ListByReportDigest returns every submission of the same report, oldest first.
func (r *VerificationRepository) ListByReportDigest(ctx context.Context, digest []byte) ([]*model.Verification, error) {
	const q = `
		SELECT id, request_id, signature, program_id, payer, report_digest, return_data, slot, receipt, created_at
		FROM verifications
		WHERE report_digest = ?
		ORDER BY id ASC
	`
	rows, err := r.db.QueryContext(ctx, q, digest)
	if err != nil {
		return nil, fmt.Errorf("query verifications: %w", err)
	}
	defer rows.Close()

	var out []*model.Verification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVerification(s scanner) (*model.Verification, error) {
	var v model.Verification
	var slot int64
	if err := s.Scan(&v.ID, &v.RequestID, &v.Signature, &v.ProgramID, &v.Payer, &v.ReportDigest, &v.ReturnData, &slot, &v.Receipt, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.Slot = uint64(slot)
	return &v, nil
}
