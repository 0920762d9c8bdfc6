/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package chain

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kentakayama/streams-verifier/internal/config"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeNode answers JSON-RPC calls from canned results keyed by method name.
type fakeNode struct {
	mu      sync.Mutex
	results map[string][]string
	calls   map[string]int
	params  map[string][]json.RawMessage
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		results: map[string][]string{},
		calls:   map[string]int{},
		params:  map[string][]json.RawMessage{},
	}
}

// on queues raw JSON responses for a method; the last one repeats.
func (n *fakeNode) on(method string, responses ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results[method] = append(n.results[method], responses...)
}

func (n *fakeNode) count(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	idx := n.calls[req.Method]
	n.calls[req.Method]++
	n.params[req.Method] = req.Params
	queued := n.results[req.Method]
	n.mu.Unlock()

	if len(queued) == 0 {
		writeRPC(w, req.ID, "", `{"code":-32601,"message":"Method not found"}`)
		return
	}
	if idx >= len(queued) {
		idx = len(queued) - 1
	}
	writeRPC(w, req.ID, queued[idx], "")
}

func writeRPC(w http.ResponseWriter, id json.RawMessage, result, rpcErr string) {
	if len(id) == 0 {
		id = json.RawMessage("1")
	}
	w.Header().Set("Content-Type", "application/json")
	if rpcErr != "" {
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":`+string(id)+`,"error":`+rpcErr+`}`)
		return
	}
	_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":`+string(id)+`,"result":`+result+`}`)
}

func newTestClient(t *testing.T, node *fakeNode, cfg config.RPCConfig) *Client {
	t.Helper()
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	cfg.Endpoint = srv.URL
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	cfg.Logger = log.New(io.Discard, "", 0)
	c, err := NewClient(cfg)
	require.Nil(t, err)
	return c
}

func signedTransaction(t *testing.T) *solana.Transaction {
	t.Helper()
	payer, err := solana.NewRandomPrivateKey()
	require.Nil(t, err)
	program := solana.MustPublicKeyFromBase58("Gt9S41PtjR58CbG9JhJ3J6vxesqrNAswbWYbLNTMZA3c")
	ix := solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.NewAccountMeta(payer.PublicKey(), false, true),
	}, []byte{0x01})

	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{0x01}, solana.TransactionPayer(payer.PublicKey()))
	require.Nil(t, err)
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer.PublicKey()) {
			return &payer
		}
		return nil
	})
	require.Nil(t, err)
	return tx
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(config.RPCConfig{})
	assert.NotNil(t, err)

	_, err = NewClient(config.RPCConfig{Endpoint: "http://localhost:8899", Commitment: "eventually"})
	assert.NotNil(t, err)

	_, err = NewClient(config.RPCConfig{Endpoint: "http://localhost:8899", Commitment: "processed"})
	assert.NotNil(t, err)

	c, err := NewClient(config.RPCConfig{Endpoint: "http://localhost:8899", Commitment: "confirmed"})
	require.Nil(t, err)
	assert.Equal(t, rpc.CommitmentConfirmed, c.commitment)

	c, err = NewClient(config.RPCConfig{Endpoint: "http://localhost:8899"})
	require.Nil(t, err)
	assert.Equal(t, defaultCommitment, c.commitment)
	assert.Equal(t, defaultConfirmTimeout, c.confirmTimeout)
	assert.Equal(t, defaultPollInterval, c.pollInterval)
}

func TestClient_LatestBlockhash(t *testing.T) {
	hash := solana.Hash{0xde, 0xad, 0xbe, 0xef}
	node := newFakeNode()
	node.on("getLatestBlockhash", `{"context":{"slot":42},"value":{"blockhash":"`+hash.String()+`","lastValidBlockHeight":100}}`)

	c := newTestClient(t, node, config.RPCConfig{})
	got, err := c.LatestBlockhash(context.Background())
	require.Nil(t, err)
	assert.Equal(t, hash, got)
}

func TestClient_LatestBlockhash_RPCError(t *testing.T) {
	node := newFakeNode()
	c := newTestClient(t, node, config.RPCConfig{})

	_, err := c.LatestBlockhash(context.Background())
	assert.NotNil(t, err)
	assert.Equal(t, 1, node.count("getLatestBlockhash"))
}

func TestClient_SendAndConfirm_OK(t *testing.T) {
	tx := signedTransaction(t)
	sig := tx.Signatures[0]

	node := newFakeNode()
	node.on("sendTransaction", `"`+sig.String()+`"`)
	node.on("getSignatureStatuses",
		`{"context":{"slot":1},"value":[null]}`,
		`{"context":{"slot":2},"value":[{"slot":2,"confirmations":1,"err":null,"confirmationStatus":"confirmed"}]}`,
		`{"context":{"slot":40},"value":[{"slot":2,"confirmations":null,"err":null,"confirmationStatus":"finalized"}]}`,
	)

	c := newTestClient(t, node, config.RPCConfig{})
	got, err := c.SendAndConfirm(context.Background(), tx)
	require.Nil(t, err)
	assert.Equal(t, sig, got)
	assert.Equal(t, 1, node.count("sendTransaction"))
	assert.Equal(t, 3, node.count("getSignatureStatuses"))
}

func TestClient_SendAndConfirm_ConfirmedCommitment(t *testing.T) {
	tx := signedTransaction(t)
	node := newFakeNode()
	node.on("sendTransaction", `"`+tx.Signatures[0].String()+`"`)
	node.on("getSignatureStatuses", `{"context":{"slot":2},"value":[{"slot":2,"confirmations":1,"err":null,"confirmationStatus":"confirmed"}]}`)

	c := newTestClient(t, node, config.RPCConfig{Commitment: "confirmed"})
	_, err := c.SendAndConfirm(context.Background(), tx)
	require.Nil(t, err)
	assert.Equal(t, 1, node.count("getSignatureStatuses"))
}

func TestClient_SendAndConfirm_WaitsPastProcessed(t *testing.T) {
	tx := signedTransaction(t)
	sig := tx.Signatures[0]
	node := newFakeNode()
	node.on("sendTransaction", `"`+sig.String()+`"`)
	node.on("getSignatureStatuses",
		`{"context":{"slot":2},"value":[{"slot":2,"confirmations":0,"err":null,"confirmationStatus":"processed"}]}`,
		`{"context":{"slot":3},"value":[{"slot":2,"confirmations":1,"err":null,"confirmationStatus":"confirmed"}]}`,
	)
	node.on("getTransaction", `{"slot":2,"blockTime":null,"transaction":["AQ==","base64"],"meta":{"err":null,"fee":5000}}`)

	c := newTestClient(t, node, config.RPCConfig{Commitment: "confirmed"})
	_, err := c.SendAndConfirm(context.Background(), tx)
	require.Nil(t, err)
	assert.Equal(t, 2, node.count("getSignatureStatuses"))

	got, err := c.ConfirmedTransaction(context.Background(), sig)
	require.Nil(t, err)
	assert.Equal(t, uint64(2), got.Slot)
}

func TestClient_SendAndConfirm_Failed(t *testing.T) {
	tx := signedTransaction(t)
	node := newFakeNode()
	node.on("sendTransaction", `"`+tx.Signatures[0].String()+`"`)
	node.on("getSignatureStatuses", `{"context":{"slot":2},"value":[{"slot":2,"confirmations":0,"err":{"InstructionError":[0,{"Custom":6001}]},"confirmationStatus":"processed"}]}`)

	c := newTestClient(t, node, config.RPCConfig{})
	sig, err := c.SendAndConfirm(context.Background(), tx)
	assert.ErrorIs(t, err, ErrTransactionFailed)
	assert.Equal(t, tx.Signatures[0], sig)
}

func TestClient_SendAndConfirm_Timeout(t *testing.T) {
	tx := signedTransaction(t)
	node := newFakeNode()
	node.on("sendTransaction", `"`+tx.Signatures[0].String()+`"`)
	node.on("getSignatureStatuses", `{"context":{"slot":1},"value":[null]}`)

	c := newTestClient(t, node, config.RPCConfig{ConfirmTimeout: 50 * time.Millisecond})
	_, err := c.SendAndConfirm(context.Background(), tx)
	assert.ErrorIs(t, err, ErrConfirmTimeout)
}

func TestClient_SendAndConfirm_Rejected(t *testing.T) {
	tx := signedTransaction(t)
	node := newFakeNode()

	c := newTestClient(t, node, config.RPCConfig{})
	_, err := c.SendAndConfirm(context.Background(), tx)
	assert.NotNil(t, err)
	assert.Equal(t, 0, node.count("getSignatureStatuses"))
}

func TestClient_ConfirmedTransaction_ReturnData(t *testing.T) {
	sig := signedTransaction(t).Signatures[0]
	node := newFakeNode()
	node.on("getTransaction", `{
		"slot": 321,
		"blockTime": 1700000000,
		"version": 0,
		"transaction": ["AQ==", "base64"],
		"meta": {
			"err": null,
			"fee": 5000,
			"logMessages": ["Program log: verified"],
			"computeUnitsConsumed": 1200,
			"returnData": {
				"programId": "Gt9S41PtjR58CbG9JhJ3J6vxesqrNAswbWYbLNTMZA3c",
				"data": ["AQID", "base64"]
			}
		}
	}`)

	c := newTestClient(t, node, config.RPCConfig{})
	got, err := c.ConfirmedTransaction(context.Background(), sig)
	require.Nil(t, err)
	assert.Equal(t, uint64(321), got.Slot)
	require.NotNil(t, got.Meta)
	require.NotNil(t, got.Meta.ReturnData)
	assert.Equal(t, "AQID", got.Meta.ReturnData.Data.Content)
	assert.Equal(t, "base64", got.Meta.ReturnData.Data.Encoding)
	assert.Equal(t, "Gt9S41PtjR58CbG9JhJ3J6vxesqrNAswbWYbLNTMZA3c", got.Meta.ReturnData.ProgramID.String())

	// request parameters
	params := node.params["getTransaction"]
	require.Len(t, params, 2)
	var opts map[string]any
	require.Nil(t, json.Unmarshal(params[1], &opts))
	assert.Equal(t, "base64", opts["encoding"])
	assert.Equal(t, "confirmed", opts["commitment"])
	assert.Equal(t, float64(0), opts["maxSupportedTransactionVersion"])
}

func TestClient_ConfirmedTransaction_NoReturnData(t *testing.T) {
	sig := signedTransaction(t).Signatures[0]
	node := newFakeNode()
	node.on("getTransaction", `{"slot":5,"blockTime":null,"transaction":["AQ==","base64"],"meta":{"err":null,"fee":5000,"logMessages":[]}}`)

	c := newTestClient(t, node, config.RPCConfig{})
	got, err := c.ConfirmedTransaction(context.Background(), sig)
	require.Nil(t, err)
	require.NotNil(t, got.Meta)
	assert.Nil(t, got.Meta.ReturnData)
}

func TestClient_ConfirmedTransaction_NotFound(t *testing.T) {
	sig := signedTransaction(t).Signatures[0]
	node := newFakeNode()
	node.on("getTransaction", `null`)

	c := newTestClient(t, node, config.RPCConfig{})
	_, err := c.ConfirmedTransaction(context.Background(), sig)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestEncodedData_JSON(t *testing.T) {
	var d EncodedData
	require.Nil(t, json.Unmarshal([]byte(`["AQID","base64"]`), &d))
	assert.Equal(t, EncodedData{Content: "AQID", Encoding: "base64"}, d)

	assert.NotNil(t, json.Unmarshal([]byte(`["AQID"]`), &d))
	assert.NotNil(t, json.Unmarshal([]byte(`"AQID"`), &d))

	b, err := json.Marshal(EncodedData{Content: "AQID", Encoding: "base64"})
	require.Nil(t, err)
	assert.JSONEq(t, `["AQID","base64"]`, string(b))
}
