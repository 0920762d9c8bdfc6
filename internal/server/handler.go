/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"bytes"
	"encoding/hex"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"

	"github.com/fxamacker/cbor/v2"

	"github.com/kentakayama/streams-verifier/internal/domain"
	"github.com/kentakayama/streams-verifier/internal/receipt"
	"github.com/kentakayama/streams-verifier/internal/verifier"
)

const (
	maxRequestBodyBytes = 1 << 20 // 1 MiB is far above any signed report.

	historyContentType = "application/cbor"

	signatureHeader = "X-Transaction-Signature"
	requestIDHeader = "X-Request-Id"
)

type handler struct {
	service *Service
	logger  *log.Logger
}

type responseSpec struct {
	status      int
	body        []byte
	contentType string
	headers     map[string]string
}

func newHandler(service *Service, logger *log.Logger) (*handler, error) {
	if service == nil {
		return nil, errors.New("service is nil")
	}
	return &handler{
		service: service,
		logger:  logger,
	}, nil
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	switch r.URL.Path {
	case "/verify":
		h.verifyReport(w, r)
		return
	case "/verifications":
		h.lookupReceipt(w, r)
		return
	case "/reports":
		h.lookupHistory(w, r)
		return
	default:
		http.NotFound(w, r)
		return
	}
}

func (h *handler) verifyReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.readReport(w, r)
	if !ok {
		return
	}

	sub, err := h.service.Submit(r.Context(), report)
	if err != nil {
		resp := responseSpec{
			status:  statusFor(err),
			headers: map[string]string{},
		}
		if sub != nil {
			resp.headers[requestIDHeader] = sub.RequestID
			if sub.Result != nil {
				resp.headers[signatureHeader] = sub.Result.Signature.String()
			}
		}
		h.writeResponse(w, resp)
		return
	}

	h.writeResponse(w, responseSpec{
		status:      http.StatusOK,
		body:        sub.Receipt,
		contentType: receipt.ContentType,
		headers: map[string]string{
			requestIDHeader: sub.RequestID,
			signatureHeader: sub.Result.Signature.String(),
		},
	})
}

func (h *handler) lookupReceipt(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	signed, err := h.service.Receipt(r.Context(), string(bytes.TrimSpace(body)))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.NotFound(w, r)
		return
	case err != nil:
		h.logger.Printf("failed to look up receipt: %v", err)
		http.Error(w, "invalid transaction signature", http.StatusBadRequest)
		return
	}

	h.writeResponse(w, responseSpec{
		status:      http.StatusOK,
		body:        signed,
		contentType: receipt.ContentType,
	})
}

func (h *handler) lookupHistory(w http.ResponseWriter, r *http.Request) {
	report, ok := h.readReport(w, r)
	if !ok {
		return
	}

	receipts, err := h.service.History(r.Context(), report)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.NotFound(w, r)
		return
	case err != nil:
		h.logger.Printf("failed to look up report history: %v", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	body, err := cbor.Marshal(receipts)
	if err != nil {
		h.logger.Printf("failed to encode report history: %v", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeResponse(w, responseSpec{
		status:      http.StatusOK,
		body:        body,
		contentType: historyContentType,
	})
}

// readReport reads a raw report, or a hex one when sent as text/plain.
func (h *handler) readReport(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || (mediaType != "application/octet-stream" && mediaType != "text/plain") {
		h.logger.Printf("content type mismatch: expected application/octet-stream or text/plain, actual %v", r.Header.Get("Content-Type"))
		http.Error(w, "This endpoint only accepts Content-Type: application/octet-stream or text/plain", http.StatusUnsupportedMediaType)
		return nil, false
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return nil, false
	}
	if mediaType != "text/plain" {
		return body, true
	}

	report, err := decodeHexReport(body)
	if err != nil {
		h.logger.Printf("failed to decode hex report: %v", err)
		http.Error(w, "failed to decode report", http.StatusBadRequest)
		return nil, false
	}
	return report, true
}

func (h *handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		h.logger.Printf("failed reading request body: %v", err)
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return nil, false
	}
	if err := r.Body.Close(); err != nil {
		h.logger.Printf("failed closing request body: %v", err)
		http.Error(w, "failed to close request body", http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

// decodeHexReport accepts the fullReport form returned by the Data Streams API.
func decodeHexReport(body []byte) ([]byte, error) {
	s := bytes.TrimSpace(body)
	s = bytes.TrimPrefix(s, []byte("0x"))
	out := make([]byte, hex.DecodedLen(len(s)))
	n, err := hex.Decode(out, s)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, verifier.ErrInvalidReport):
		return http.StatusBadRequest
	case errors.Is(err, verifier.ErrRPC), errors.Is(err, verifier.ErrDecode):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) writeResponse(w http.ResponseWriter, spec responseSpec) {
	for k, v := range spec.headers {
		w.Header().Set(k, v)
	}

	if len(spec.body) > 0 {
		for k, v := range defaultHeaders {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", spec.contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(spec.body)))
		w.WriteHeader(spec.status)
		if _, err := w.Write(spec.body); err != nil {
			h.logger.Printf("failed writing response body: %v", err)
		}
		return
	}

	w.WriteHeader(spec.status)
}

var defaultHeaders = map[string]string{
	"Cache-Control":           "no-store",
	"X-Content-Type-Options":  "nosniff",
	"Content-Security-Policy": "default-src 'none'",
	"Referrer-Policy":         "no-referrer",
}
