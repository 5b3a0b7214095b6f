package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/evdnx/trendbot/config"
	"github.com/evdnx/trendbot/types"
)

func newTestBridge(t *testing.T, handler http.Handler) (*BridgeGateway, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	g, err := NewBridgeGateway(config.BridgeConfig{URL: srv.URL, TimeoutSeconds: 5})
	if err != nil {
		t.Fatalf("NewBridgeGateway failed: %v", err)
	}
	return g, srv
}

func TestBridgeOpenPositionDone(t *testing.T) {
	var got openPayload
	g, _ := newTestBridge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/open" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		json.NewEncoder(w).Encode(orderResult{Retcode: 10009, Ticket: 42, Price: 1.1002})
	}))

	pos, err := g.OpenPosition(context.Background(), types.OpenRequest{
		Symbol: "EURUSD", Side: types.Buy, Volume: 0.5, StopPrice: 1.0950, Deviation: 20, Magic: 234000,
	})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if pos.Ticket != 42 || pos.EntryPrice != 1.1002 {
		t.Fatalf("unexpected position %+v", pos)
	}
	if got.Magic != 234000 || got.Side != "BUY" || got.Deviation != 20 {
		t.Fatalf("payload not forwarded: %+v", got)
	}
}

func TestBridgeOpenPositionRejected(t *testing.T) {
	g, _ := newTestBridge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(orderResult{Retcode: 10019, Comment: "no money"})
	}))

	_, err := g.OpenPosition(context.Background(), types.OpenRequest{Symbol: "EURUSD", Side: types.Buy, Volume: 100})
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("expected RejectionError, got %v", err)
	}
	if rej.Code != 10019 {
		t.Fatalf("unexpected retcode %d", rej.Code)
	}
}

func TestBridgeBarsOrderingAndQuery(t *testing.T) {
	g, _ := newTestBridge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bars" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("symbol") != "EURUSD" || q.Get("timeframe") != "H1" || q.Get("count") != "250" {
			t.Fatalf("unexpected query %v", q)
		}
		json.NewEncoder(w).Encode([]barDTO{
			{Time: 1700000000, Close: 1.10},
			{Time: 1700003600, Close: 1.11},
		})
	}))

	bars, err := g.Bars(context.Background(), "EURUSD", types.H1, 250)
	if err != nil {
		t.Fatalf("bars failed: %v", err)
	}
	if len(bars) != 2 || !bars[0].Time.Before(bars[1].Time) || bars[1].Close != 1.11 {
		t.Fatalf("unexpected bars %+v", bars)
	}
}

func TestBridgeDisconnectedIsDataUnavailable(t *testing.T) {
	g, srv := newTestBridge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // simulate a dead terminal bridge

	if _, err := g.Bars(context.Background(), "EURUSD", types.H1, 10); !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestBridgeSymbolInfoAndSpread(t *testing.T) {
	g, _ := newTestBridge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/symbol" || r.URL.Query().Get("name") != "XAUUSD" {
			t.Fatalf("unexpected request %s %v", r.URL.Path, r.URL.Query())
		}
		json.NewEncoder(w).Encode(symbolDTO{
			Symbol: "XAUUSD", Point: 0.01, ContractSize: 100,
			VolumeMin: 0.01, VolumeMax: 50, VolumeStep: 0.01,
			Bid: 2000.10, Ask: 2000.40, Spread: 30,
		})
	}))

	spec, err := g.SymbolInfo(context.Background(), "XAUUSD")
	if err != nil {
		t.Fatalf("symbol info failed: %v", err)
	}
	if spec.ContractSize != 100 || spec.Point != 0.01 {
		t.Fatalf("unexpected spec %+v", spec)
	}
	spread, err := g.Spread(context.Background(), "XAUUSD")
	if err != nil || spread != 30 {
		t.Fatalf("unexpected spread %v err=%v", spread, err)
	}
}
