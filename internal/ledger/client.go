// Package ledger is the JSON-RPC client for the node. It is the only
// place that talks to the chain: credential import, incoming-note
// listing, block height, and the two-output transfer used by the split.
//
// Every call is rate limited and carries a timeout. Transport failures
// are marked transient (callers retry on the next cycle); RPC-level
// errors are permanent.
package ledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/sanctum/internal/model"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Rescan policies for credential import.
const (
	RescanWhenKeyIsNew = "whenkeyisnew"
	RescanYes          = "yes"
	RescanNo           = "no"
)

// AddressInfo is the node's response to a credential import.
type AddressInfo struct {
	AddressType string `json:"address_type"`
	Address     string `json:"address"`
}

// Output is one leg of a transfer. Memo is plain UTF-8; the client hex
// encodes it for the wire.
type Output struct {
	Address string
	Amount  decimal.Decimal
	Memo    string
}

// Client talks to a single node endpoint.
type Client struct {
	url        string
	username   string
	password   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client for the configured node.
func NewClient(cfg model.LedgerConfig) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 4
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:        fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 2),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "1.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.Transient(fmt.Errorf("%s: %w", method, err))
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return model.Transient(fmt.Errorf("%s: decode response: %w", method, err))
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: rpc error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
	}
	return nil
}

// ImportViewingKey imports an observe-only credential.
func (c *Client) ImportViewingKey(ctx context.Context, key, rescan string) (AddressInfo, error) {
	var info AddressInfo
	err := c.call(ctx, "z_importviewingkey", []any{key, rescan}, &info)
	return info, err
}

// ImportSpendingKey imports a spend-capable credential.
func (c *Client) ImportSpendingKey(ctx context.Context, key, rescan string) (AddressInfo, error) {
	var info AddressInfo
	err := c.call(ctx, "z_importkey", []any{key, rescan}, &info)
	return info, err
}

type receivedNote struct {
	TxID          string      `json:"txid"`
	Amount        json.Number `json:"amount"`
	Memo          string      `json:"memo"` // hex
	Confirmations int         `json:"confirmations"`
	BlockHeight   int         `json:"blockheight"`
	Change        bool        `json:"change"`
}

// ListIncoming returns contributions received by the address with at
// least minConf confirmations.
func (c *Client) ListIncoming(ctx context.Context, address string, minConf int) ([]model.Contribution, error) {
	var notes []receivedNote
	if err := c.call(ctx, "z_listreceivedbyaddress", []any{address, minConf}, &notes); err != nil {
		return nil, err
	}

	contributions := make([]model.Contribution, 0, len(notes))
	for _, note := range notes {
		amount, err := decimal.NewFromString(note.Amount.String())
		if err != nil {
			return nil, fmt.Errorf("parse amount %q for %s: %w", note.Amount, note.TxID, err)
		}
		contributions = append(contributions, model.Contribution{
			OriginRef:     note.TxID,
			Amount:        amount,
			Memo:          decodeMemo(note.Memo),
			Confirmations: note.Confirmations,
			BlockHeight:   note.BlockHeight,
			Change:        note.Change,
		})
	}
	return contributions, nil
}

// BlockCount returns the node's current confirmation height.
func (c *Client) BlockCount(ctx context.Context) (int, error) {
	var height int
	err := c.call(ctx, "getblockcount", nil, &height)
	return height, err
}

// Balance returns the spendable balance of an address.
func (c *Client) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	var raw json.Number
	if err := c.call(ctx, "z_getbalance", []any{address}, &raw); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw.String())
}

// SendMany broadcasts a transfer from one address to the given outputs
// and returns the async operation id.
func (c *Client) SendMany(ctx context.Context, from string, outputs []Output) (string, error) {
	wire := make([]map[string]any, 0, len(outputs))
	for _, out := range outputs {
		entry := map[string]any{
			"address": out.Address,
			"amount":  out.Amount.InexactFloat64(),
		}
		if out.Memo != "" {
			entry["memo"] = hex.EncodeToString([]byte(out.Memo))
		}
		wire = append(wire, entry)
	}

	var opid string
	if err := c.call(ctx, "z_sendmany", []any{from, wire}, &opid); err != nil {
		return "", err
	}
	return opid, nil
}

type operationStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"` // queued | executing | success | failed
	Result struct {
		TxID string `json:"txid"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

// Operation status values reported by the node, plus "unknown" for ids
// the node has no record of.
const (
	OpStatusQueued    = "queued"
	OpStatusExecuting = "executing"
	OpStatusSuccess   = "success"
	OpStatusFailed    = "failed"
	OpStatusUnknown   = "unknown"
)

// OperationState is one snapshot of an async operation.
type OperationState struct {
	Status string
	TxID   string
}

// OperationStatus performs a single status check for an async operation.
// An id the node does not recognize comes back with OpStatusUnknown.
func (c *Client) OperationStatus(ctx context.Context, opid string) (OperationState, error) {
	var statuses []operationStatus
	if err := c.call(ctx, "z_getoperationstatus", []any{[]string{opid}}, &statuses); err != nil {
		return OperationState{}, err
	}
	if len(statuses) == 0 {
		return OperationState{Status: OpStatusUnknown}, nil
	}
	return OperationState{Status: statuses[0].Status, TxID: statuses[0].Result.TxID}, nil
}

// AwaitOperation polls an async operation until it lands or the timeout
// expires. Timeouts are transient: the operation may still land, so the
// caller must re-check before any rebroadcast.
func (c *Client) AwaitOperation(ctx context.Context, opid string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		var statuses []operationStatus
		if err := c.call(ctx, "z_getoperationstatus", []any{[]string{opid}}, &statuses); err != nil {
			return "", err
		}

		if len(statuses) > 0 {
			switch st := statuses[0]; st.Status {
			case OpStatusSuccess:
				return st.Result.TxID, nil
			case OpStatusFailed:
				if st.Error != nil {
					return "", fmt.Errorf("operation %s failed: %s", opid, st.Error.Message)
				}
				return "", fmt.Errorf("operation %s failed", opid)
			}
		}

		if time.Now().After(deadline) {
			return "", model.Transient(fmt.Errorf("operation %s still pending after %s", opid, timeout))
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// decodeMemo converts the hex memo field to UTF-8, dropping the trailing
// zero padding the ledger applies.
func decodeMemo(memoHex string) string {
	raw, err := hex.DecodeString(memoHex)
	if err != nil {
		return ""
	}
	end := len(raw)
	for end > 0 && raw[end-1] == 0 {
		end--
	}
	return string(raw[:end])
}
