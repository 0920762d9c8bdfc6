/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/kentakayama/streams-verifier/internal/config"
	"github.com/kentakayama/streams-verifier/internal/infra/chain"
	"github.com/kentakayama/streams-verifier/internal/infra/sqlite"
	"github.com/kentakayama/streams-verifier/internal/verifier"
)

// Server wires the HTTP listener and request handling stack.
type Server struct {
	cfg     config.Config
	handler *handler
	http    *http.Server
	db      *sql.DB
	logger  *log.Logger
}

// New constructs a Server using the provided configuration.
func New(cfg config.Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	cfg.Logger = logger

	client, payer, err := NewVerifierClient(cfg)
	if err != nil {
		return nil, err
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "streams-verifier.db"
	}
	db, err := sqlite.InitDB(context.Background(), dbPath)
	if err != nil {
		return nil, err
	}

	svc := NewService(client, payer, sqlite.NewVerificationRepository(db), logger)
	h, err := newHandler(svc, logger)
	if err != nil {
		sqlite.CloseDB(db)
		return nil, err
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Server{
		cfg:     cfg,
		handler: h,
		http:    httpSrv,
		db:      db,
		logger:  logger,
	}, nil
}

// NewVerifierClient builds the on-chain verifier client and returns it with the payer key.
func NewVerifierClient(cfg config.Config) (*verifier.Client, solana.PrivateKey, error) {
	programID, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return nil, nil, fmt.Errorf("parse program id: %w", err)
	}
	accessController, err := solana.PublicKeyFromBase58(cfg.AccessControllerAccount)
	if err != nil {
		return nil, nil, fmt.Errorf("parse access controller account: %w", err)
	}
	if cfg.KeypairPath == "" {
		return nil, nil, errors.New("payer keypair path is required")
	}
	payer, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load payer keypair: %w", err)
	}

	rpcCfg := cfg.RPC
	if rpcCfg.Logger == nil {
		rpcCfg.Logger = cfg.Logger
	}
	rpcClient, err := chain.NewClient(rpcCfg)
	if err != nil {
		return nil, nil, err
	}

	client, err := verifier.New(programID, accessController, rpcClient, payer,
		verifier.WithLogger(cfg.Logger),
		verifier.WithTimeout(cfg.VerifyTimeout),
	)
	if err != nil {
		return nil, nil, err
	}
	return client, payer, nil
}

// ListenAndServe starts the HTTP server and blocks until it stops.
func (s *Server) ListenAndServe() error {
	s.logger.Printf("Run verification server on %s (rpc %s).", s.http.Addr, s.cfg.RPC.Endpoint)

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully takes down the HTTP server and closes the ledger.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	return errors.Join(err, sqlite.CloseDB(s.db))
}
