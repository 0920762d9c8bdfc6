/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package verifier

import "errors"

var (
	ErrRPC           = errors.New("rpc request failed")
	ErrDecode        = errors.New("return data could not be decoded")
	ErrCompression   = errors.New("report compression failed")
	ErrInvalidReport = errors.New("invalid report")
	ErrInstruction   = errors.New("verify instruction could not be built")
	ErrSigning       = errors.New("transaction signing failed")
)
