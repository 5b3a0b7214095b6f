package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/evdnx/trendbot/config"
	"github.com/evdnx/trendbot/types"
)

// tradeRetcodeDone is the terminal's TRADE_RETCODE_DONE.
const tradeRetcodeDone = 10009

// BridgeGateway talks JSON over HTTP to a local sidecar wrapping the MT5
// terminal API (the terminal bindings are Windows/Python only, so live
// trading goes through this REST bridge). All calls are synchronous and
// bounded by the client timeout.
type BridgeGateway struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// NewBridgeGateway constructs a bridge client from configuration.
func NewBridgeGateway(cfg config.BridgeConfig) (*BridgeGateway, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return nil, fmt.Errorf("bridge: url cannot be empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("bridge: parse url: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &BridgeGateway{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (g *BridgeGateway) SetHTTPClient(client *http.Client) {
	g.httpClient = client
}

func (g *BridgeGateway) doRequest(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	target := *g.baseURL
	target.Path = strings.TrimRight(target.Path, "/") + path
	if query != nil {
		target.RawQuery = query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("bridge: marshal %s payload: %w", path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return fmt.Errorf("bridge: build %s request: %w", path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDataUnavailable, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("bridge: %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("bridge: decode %s response: %w", path, err)
	}
	return nil
}

type orderResult struct {
	Retcode int     `json:"retcode"`
	Ticket  int64   `json:"ticket"`
	Price   float64 `json:"price"`
	Comment string  `json:"comment"`
}

func (r orderResult) reject() error {
	if r.Retcode == tradeRetcodeDone {
		return nil
	}
	return &RejectionError{Code: r.Retcode, Comment: r.Comment}
}

type openPayload struct {
	Symbol    string  `json:"symbol"`
	Side      string  `json:"type"`
	Volume    float64 `json:"volume"`
	StopLoss  float64 `json:"sl,omitempty"`
	TakeProf  float64 `json:"tp,omitempty"`
	Deviation int     `json:"deviation,omitempty"`
	Magic     int64   `json:"magic"`
	Comment   string  `json:"comment,omitempty"`
}

func (g *BridgeGateway) OpenPosition(ctx context.Context, req types.OpenRequest) (types.Position, error) {
	payload := openPayload{
		Symbol:    req.Symbol,
		Side:      string(req.Side),
		Volume:    req.Volume,
		StopLoss:  req.StopPrice,
		TakeProf:  req.TakeProfit,
		Deviation: req.Deviation,
		Magic:     req.Magic,
		Comment:   req.Comment,
	}
	var res orderResult
	if err := g.doRequest(ctx, http.MethodPost, "/open", nil, payload, &res); err != nil {
		return types.Position{}, err
	}
	if err := res.reject(); err != nil {
		return types.Position{}, err
	}
	return types.Position{
		Ticket:     res.Ticket,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Volume:     req.Volume,
		EntryPrice: res.Price,
		StopPrice:  req.StopPrice,
		TakeProfit: req.TakeProfit,
		Magic:      req.Magic,
	}, nil
}

func (g *BridgeGateway) ClosePosition(ctx context.Context, symbol string) error {
	payload := map[string]string{"symbol": symbol}
	var res orderResult
	if err := g.doRequest(ctx, http.MethodPost, "/close", nil, payload, &res); err != nil {
		return err
	}
	return res.reject()
}

func (g *BridgeGateway) ModifyStop(ctx context.Context, symbol string, newStop float64) error {
	payload := map[string]any{"symbol": symbol, "sl": newStop}
	var res orderResult
	if err := g.doRequest(ctx, http.MethodPost, "/modify_stop", nil, payload, &res); err != nil {
		return err
	}
	return res.reject()
}

type positionDTO struct {
	Ticket     int64   `json:"ticket"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"type"`
	Volume     float64 `json:"volume"`
	PriceOpen  float64 `json:"price_open"`
	StopLoss   float64 `json:"sl"`
	TakeProf   float64 `json:"tp"`
	Magic      int64   `json:"magic"`
	Profit     float64 `json:"profit"`
	OpenUnix   int64   `json:"time"`
}

func (g *BridgeGateway) Positions(ctx context.Context) ([]types.Position, error) {
	var dtos []positionDTO
	if err := g.doRequest(ctx, http.MethodGet, "/positions", nil, nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]types.Position, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, types.Position{
			Ticket:     d.Ticket,
			Symbol:     d.Symbol,
			Side:       types.Side(d.Side),
			Volume:     d.Volume,
			EntryPrice: d.PriceOpen,
			StopPrice:  d.StopLoss,
			TakeProfit: d.TakeProf,
			Magic:      d.Magic,
			Profit:     d.Profit,
			OpenTime:   time.Unix(d.OpenUnix, 0).UTC(),
		})
	}
	return out, nil
}

func (g *BridgeGateway) AccountInfo(ctx context.Context) (types.AccountInfo, error) {
	var dto struct {
		Balance float64 `json:"balance"`
		Equity  float64 `json:"equity"`
	}
	if err := g.doRequest(ctx, http.MethodGet, "/account", nil, nil, &dto); err != nil {
		return types.AccountInfo{}, err
	}
	return types.AccountInfo{Balance: dto.Balance, Equity: dto.Equity}, nil
}

type symbolDTO struct {
	Symbol       string  `json:"symbol"`
	Point        float64 `json:"point"`
	ContractSize float64 `json:"trade_contract_size"`
	VolumeMin    float64 `json:"volume_min"`
	VolumeMax    float64 `json:"volume_max"`
	VolumeStep   float64 `json:"volume_step"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	Spread       float64 `json:"spread"`
}

func (g *BridgeGateway) symbol(ctx context.Context, symbol string) (symbolDTO, error) {
	q := url.Values{"name": []string{symbol}}
	var dto symbolDTO
	if err := g.doRequest(ctx, http.MethodGet, "/symbol", q, nil, &dto); err != nil {
		return symbolDTO{}, err
	}
	return dto, nil
}

func (g *BridgeGateway) Quote(ctx context.Context, symbol string) (float64, float64, error) {
	dto, err := g.symbol(ctx, symbol)
	if err != nil {
		return 0, 0, err
	}
	return dto.Bid, dto.Ask, nil
}

func (g *BridgeGateway) Spread(ctx context.Context, symbol string) (float64, error) {
	dto, err := g.symbol(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return dto.Spread, nil
}

func (g *BridgeGateway) SymbolInfo(ctx context.Context, symbol string) (types.SymbolSpec, error) {
	dto, err := g.symbol(ctx, symbol)
	if err != nil {
		return types.SymbolSpec{}, err
	}
	return types.SymbolSpec{
		Symbol:       symbol,
		Point:        dto.Point,
		ContractSize: dto.ContractSize,
		VolumeMin:    dto.VolumeMin,
		VolumeMax:    dto.VolumeMax,
		VolumeStep:   dto.VolumeStep,
	}, nil
}

type barDTO struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"tick_volume"`
}

// Bars fetches closed bars, most-recent last, mirroring the terminal's
// copy_rates_from_pos ordering.
func (g *BridgeGateway) Bars(ctx context.Context, symbol string, tf types.Timeframe, count int) ([]types.Bar, error) {
	q := url.Values{
		"symbol":    []string{symbol},
		"timeframe": []string{string(tf)},
		"count":     []string{strconv.Itoa(count)},
	}
	var dtos []barDTO
	if err := g.doRequest(ctx, http.MethodGet, "/bars", q, nil, &dtos); err != nil {
		return nil, err
	}
	if len(dtos) == 0 {
		return nil, fmt.Errorf("%w: empty rate window for %s", ErrDataUnavailable, symbol)
	}
	out := make([]types.Bar, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, types.Bar{
			Time:   time.Unix(d.Time, 0).UTC(),
			Open:   d.Open,
			High:   d.High,
			Low:    d.Low,
			Close:  d.Close,
			Volume: d.Volume,
		})
	}
	return out, nil
}
