package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/ppiankov/sanctum/internal/model"
	"github.com/shopspring/decimal"
)

type rpcHandler func(params []any) (any, *rpcError)

func newTestClient(t *testing.T, handlers map[string]rpcHandler) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			Params []any  `json:"params"`
			ID     string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		handler, ok := handlers[req.Method]
		if !ok {
			t.Errorf("unexpected RPC method %q", req.Method)
			http.Error(w, "unknown method", http.StatusBadRequest)
			return
		}

		result, rpcErr := handler(req.Params)
		resp := map[string]any{"id": req.ID, "result": result, "error": rpcErr}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	parsed, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse test server URL: %v", err)
	}
	host, portStr, err := net.SplitHostPort(parsed.Host)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, _ := strconv.Atoi(portStr)

	client := NewClient(model.LedgerConfig{
		Host:              host,
		Port:              port,
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000,
	})
	return client, srv
}

func TestClient_ListIncoming(t *testing.T) {
	memoText := "ACT:5|the key you hold is the self you own"
	memoHex := hex.EncodeToString(append([]byte(memoText), 0, 0, 0))

	client, _ := newTestClient(t, map[string]rpcHandler{
		"z_listreceivedbyaddress": func(params []any) (any, *rpcError) {
			if params[0] != "zs1watch" {
				t.Errorf("address param = %v", params[0])
			}
			return []map[string]any{
				{
					"txid":          "aa11",
					"amount":        1.5,
					"memo":          memoHex,
					"confirmations": 3,
					"blockheight":   100,
					"change":        false,
				},
				{
					"txid":   "bb22",
					"amount": 0.25,
					"memo":   "",
					"change": true,
				},
			}, nil
		},
	})

	contributions, err := client.ListIncoming(context.Background(), "zs1watch", 0)
	if err != nil {
		t.Fatalf("ListIncoming failed: %v", err)
	}
	if len(contributions) != 2 {
		t.Fatalf("got %d contributions, want 2", len(contributions))
	}

	first := contributions[0]
	if first.OriginRef != "aa11" {
		t.Errorf("origin ref = %q", first.OriginRef)
	}
	if !first.Amount.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("amount = %s, want 1.5", first.Amount)
	}
	if first.Memo != memoText {
		t.Errorf("memo = %q, want %q (zero padding stripped)", first.Memo, memoText)
	}
	if first.Confirmations != 3 || first.BlockHeight != 100 {
		t.Errorf("confirmations/height = %d/%d", first.Confirmations, first.BlockHeight)
	}
	if !contributions[1].Change {
		t.Error("change flag lost")
	}
}

func TestClient_SendMany_EncodesMemo(t *testing.T) {
	var captured []any
	client, _ := newTestClient(t, map[string]rpcHandler{
		"z_sendmany": func(params []any) (any, *rpcError) {
			captured = params
			return "opid-123", nil
		},
	})

	opid, err := client.SendMany(context.Background(), "zs1source", []Output{
		{Address: "t1primary", Amount: decimal.RequireFromString("0.618"), Memo: "STS|v01|ACT:5"},
		{Address: "zs1secondary", Amount: decimal.RequireFromString("0.382")},
	})
	if err != nil {
		t.Fatalf("SendMany failed: %v", err)
	}
	if opid != "opid-123" {
		t.Errorf("opid = %q", opid)
	}

	if captured[0] != "zs1source" {
		t.Errorf("from = %v", captured[0])
	}
	outputs := captured[1].([]any)
	primary := outputs[0].(map[string]any)
	if got := primary["memo"].(string); got != hex.EncodeToString([]byte("STS|v01|ACT:5")) {
		t.Errorf("memo not hex encoded: %q", got)
	}
	secondary := outputs[1].(map[string]any)
	if _, has := secondary["memo"]; has {
		t.Error("empty memo should be omitted")
	}
}

func TestClient_OperationStatus(t *testing.T) {
	client, _ := newTestClient(t, map[string]rpcHandler{
		"z_getoperationstatus": func(params []any) (any, *rpcError) {
			ids := params[0].([]any)
			if ids[0] == "opid-1" {
				return []map[string]any{
					{"id": "opid-1", "status": "success", "result": map[string]any{"txid": "deadbeef"}},
				}, nil
			}
			// The node drops finished operations it was never asked about.
			return []map[string]any{}, nil
		},
	})

	state, err := client.OperationStatus(context.Background(), "opid-1")
	if err != nil {
		t.Fatalf("OperationStatus failed: %v", err)
	}
	if state.Status != OpStatusSuccess || state.TxID != "deadbeef" {
		t.Errorf("state = %+v", state)
	}

	state, err = client.OperationStatus(context.Background(), "opid-gone")
	if err != nil {
		t.Fatalf("OperationStatus failed for unknown id: %v", err)
	}
	if state.Status != OpStatusUnknown {
		t.Errorf("unknown id status = %q, want %q", state.Status, OpStatusUnknown)
	}
}

func TestClient_AwaitOperation_Success(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, map[string]rpcHandler{
		"z_getoperationstatus": func(params []any) (any, *rpcError) {
			calls++
			status := "executing"
			if calls >= 2 {
				status = "success"
			}
			return []map[string]any{
				{"id": "opid-1", "status": status, "result": map[string]any{"txid": "deadbeef"}},
			}, nil
		},
	})

	txid, err := client.AwaitOperation(context.Background(), "opid-1", 30*time.Second)
	if err != nil {
		t.Fatalf("AwaitOperation failed: %v", err)
	}
	if txid != "deadbeef" {
		t.Errorf("txid = %q", txid)
	}
}

func TestClient_AwaitOperation_Failed(t *testing.T) {
	client, _ := newTestClient(t, map[string]rpcHandler{
		"z_getoperationstatus": func(params []any) (any, *rpcError) {
			return []map[string]any{
				{"id": "opid-1", "status": "failed", "error": map[string]any{"code": -1, "message": "insufficient funds"}},
			}, nil
		},
	})

	_, err := client.AwaitOperation(context.Background(), "opid-1", 10*time.Second)
	if err == nil {
		t.Fatal("AwaitOperation succeeded for a failed operation")
	}
	if model.IsTransient(err) {
		t.Error("a definitive failure must not be transient")
	}
}

func TestClient_AwaitOperation_TimeoutIsTransient(t *testing.T) {
	client, _ := newTestClient(t, map[string]rpcHandler{
		"z_getoperationstatus": func(params []any) (any, *rpcError) {
			return []map[string]any{{"id": "opid-1", "status": "executing"}}, nil
		},
	})

	_, err := client.AwaitOperation(context.Background(), "opid-1", 0)
	if err == nil {
		t.Fatal("AwaitOperation should time out")
	}
	if !model.IsTransient(err) {
		t.Errorf("timeout not marked transient: %v", err)
	}
}

func TestClient_RPCErrorIsPermanent(t *testing.T) {
	client, _ := newTestClient(t, map[string]rpcHandler{
		"getblockcount": func(params []any) (any, *rpcError) {
			return nil, &rpcError{Code: -8, Message: "bad request"}
		},
	})

	_, err := client.BlockCount(context.Background())
	if err == nil {
		t.Fatal("BlockCount ignored an RPC error")
	}
	if model.IsTransient(err) {
		t.Error("RPC-level errors must be permanent")
	}
}

func TestClient_TransportErrorIsTransient(t *testing.T) {
	client, srv := newTestClient(t, map[string]rpcHandler{})
	srv.Close()

	_, err := client.BlockCount(context.Background())
	if err == nil {
		t.Fatal("BlockCount succeeded against a closed server")
	}
	if !model.IsTransient(err) {
		t.Errorf("transport failure not marked transient: %v", err)
	}
}

func TestClient_ImportViewingKey(t *testing.T) {
	client, _ := newTestClient(t, map[string]rpcHandler{
		"z_importviewingkey": func(params []any) (any, *rpcError) {
			if params[1] != RescanWhenKeyIsNew {
				t.Errorf("rescan = %v", params[1])
			}
			return map[string]any{"address_type": "sapling", "address": "zs1watch"}, nil
		},
	})

	info, err := client.ImportViewingKey(context.Background(), "zviews-key", RescanWhenKeyIsNew)
	if err != nil {
		t.Fatalf("ImportViewingKey failed: %v", err)
	}
	if info.Address != "zs1watch" {
		t.Errorf("address = %q", info.Address)
	}
}
