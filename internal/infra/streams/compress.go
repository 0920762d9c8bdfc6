/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package streams

import (
	"errors"
	"fmt"

	"github.com/golang/snappy"
)

var ErrReportTooLarge = errors.New("report too large to compress")

// CompressReport encodes a signed report in the snappy block format expected by the Verifier program.
func CompressReport(report []byte) ([]byte, error) {
	if snappy.MaxEncodedLen(len(report)) < 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrReportTooLarge, len(report))
	}
	return snappy.Encode(nil, report), nil
}

// DecompressReport reverses CompressReport.
func DecompressReport(compressed []byte) ([]byte, error) {
	report, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("decompress report: %w", err)
	}
	return report, nil
}
