/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/kentakayama/streams-verifier/internal/config"
	"github.com/kentakayama/streams-verifier/internal/receipt"
	"github.com/kentakayama/streams-verifier/internal/server"
	"github.com/kentakayama/streams-verifier/internal/util"
	"github.com/kentakayama/streams-verifier/internal/verifier"
)

func main() {
	logger := log.New(os.Stderr, "streams-verifier: ", log.LstdFlags)
	cfg := config.Config{Logger: logger}

	rootCmd := &cobra.Command{
		Use:          "streams-verifier",
		Short:        "Verify signed Data Streams reports with the on-chain Verifier program",
		SilenceUsage: true,
	}
	home, _ := os.UserHomeDir()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.RPC.Endpoint, "rpc", "https://api.devnet.solana.com", "Solana JSON-RPC endpoint")
	flags.StringVar(&cfg.RPC.Commitment, "commitment", "finalized", "Commitment to wait for after sending (confirmed or finalized)")
	flags.DurationVar(&cfg.RPC.ConfirmTimeout, "confirm-timeout", 60*time.Second, "How long to wait for confirmation")
	flags.BoolVar(&cfg.RPC.SkipPreflight, "skip-preflight", false, "Skip the node's preflight simulation")
	flags.StringVar(&cfg.ProgramID, "program", "Gt9S41PtjR58CbG9JhJ3J6vxesqrNAswbWYbLNTMZA3c", "Verifier program id")
	flags.StringVar(&cfg.AccessControllerAccount, "access-controller", "2k3DsgwBoqrnvXKVvd7jX7aptNxdcRBdcd5HkYsGgbrb", "Access controller account")
	flags.StringVar(&cfg.KeypairPath, "keypair", filepath.Join(home, ".config", "solana", "id.json"), "Payer keypair file (solana-keygen format)")
	flags.DurationVar(&cfg.VerifyTimeout, "timeout", 90*time.Second, "Upper bound for one verification")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the verification HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cfg)
		},
	}
	serveCmd.Flags().StringVar(&cfg.Addr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&cfg.DBPath, "db", "streams-verifier.db", "Verification ledger database")

	verifyCmd := &cobra.Command{
		Use:   "verify <report-file>",
		Short: "Submit one hex encoded report and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return verifyOnce(cmd.Context(), cfg, args[0])
		},
	}

	var pubkey string
	receiptCmd := &cobra.Command{
		Use:   "receipt <receipt-file>",
		Short: "Print a signed receipt and optionally check its signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspectReceipt(args[0], pubkey)
		},
	}
	receiptCmd.Flags().StringVar(&pubkey, "pubkey", "", "Payer public key to verify the receipt against")

	rootCmd.AddCommand(serveCmd, verifyCmd, receiptCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(cfg config.Config) error {
	srv, err := server.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func verifyOnce(ctx context.Context, cfg config.Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	report, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(string(raw)), "0x"))
	if err != nil {
		return fmt.Errorf("decode report file: %w", err)
	}

	client, _, err := server.NewVerifierClient(cfg)
	if err != nil {
		return err
	}

	result, err := client.Verify(ctx, report)
	if err != nil {
		if errors.Is(err, verifier.ErrDecode) && result != nil {
			fmt.Printf("signature: %s\n", result.Signature)
		}
		return err
	}

	fmt.Printf("signature: %s\n", result.Signature)
	fmt.Printf("slot: %d\n", result.Slot)
	if result.ReturnData == nil {
		fmt.Println("return data: none")
	} else {
		fmt.Printf("return data: %s\n", hex.EncodeToString(result.ReturnData))
	}
	return nil
}

func inspectReceipt(path, pubkey string) error {
	signed, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	payload, err := receipt.Payload(signed)
	if err != nil {
		return err
	}
	pretty, err := util.RenderCBORPretty(payload, receipt.FieldLabels)
	if err != nil {
		return err
	}
	fmt.Println(pretty)

	if pubkey == "" {
		return nil
	}
	pub, err := solana.PublicKeyFromBase58(pubkey)
	if err != nil {
		return fmt.Errorf("parse public key: %w", err)
	}
	var r receipt.Receipt
	if err := r.COSESign1Verify(pub, signed); err != nil {
		return fmt.Errorf("receipt signature: %w", err)
	}
	sig, err := r.TransactionSignature()
	if err != nil {
		return err
	}
	fmt.Printf("receipt signature: OK (transaction %s)\n", sig)
	return nil
}
