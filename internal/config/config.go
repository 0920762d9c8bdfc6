/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package config

import (
	"log"
	"time"
)

// Config captures the tunables required to start the verification server.
type Config struct {
	Addr                    string
	DBPath                  string
	ProgramID               string
	AccessControllerAccount string
	KeypairPath             string
	VerifyTimeout           time.Duration
	RPC                     RPCConfig
	Logger                  *log.Logger
}

type RPCConfig struct {
	Endpoint       string
	Commitment     string
	SkipPreflight  bool
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	Logger         *log.Logger
}
