/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package service

import (
	"context"

	"github.com/kentakayama/streams-verifier/internal/domain/model"
)

// VerificationRepository defines the interface for verification persistence.
type VerificationRepository interface {
	Create(ctx context.Context, v *model.Verification) (int64, error)
	FindBySignature(ctx context.Context, signature string) (*model.Verification, error)
	ListByReportDigest(ctx context.Context, digest []byte) ([]*model.Verification, error)
}
