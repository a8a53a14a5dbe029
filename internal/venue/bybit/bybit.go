package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	"github.com/levanduc-dev/tick-trader/internal/feed"
	"github.com/levanduc-dev/tick-trader/internal/logger"
	"github.com/levanduc-dev/tick-trader/internal/venue"
	"github.com/levanduc-dev/tick-trader/pkg/types"
)

const fillPollInterval = 2 * time.Second

// Config holds the configuration for the Bybit venue
type Config struct {
	APIKey    string
	APISecret string
	Category  string // spot, linear, inverse
	Demo      bool
}

// Venue adapts Bybit's v5 REST API to the engine's venue contract.
// Fill notifications are synthesized by polling order execution state;
// fill identifiers are derived deterministically from the order id and
// cumulative executed quantity so that redelivered polls deduplicate.
type Venue struct {
	client   *bybit_api.Client
	category string
	log      *logger.Logger

	mutex   sync.Mutex
	orders  map[string]*trackedOrder // venue order id -> tracking state
	fills   chan types.Fill
	cancels chan struct{}
	done    chan struct{}

	closeOnce sync.Once
}

type trackedOrder struct {
	symbol     string
	side       types.Side
	cumExecQty float64
	lastAvgPx  float64
	terminal   bool
}

// New creates a Bybit venue adapter and starts its fill polling loop
func New(cfg Config, log *logger.Logger) *Venue {
	baseURL := bybit_api.MAINNET
	if cfg.Demo {
		baseURL = "https://api-demo.bybit.com"
	}

	v := &Venue{
		client: bybit_api.NewBybitHttpClient(
			cfg.APIKey,
			cfg.APISecret,
			bybit_api.WithBaseURL(baseURL),
		),
		category: cfg.Category,
		log:      log.Component("bybit"),
		orders:   make(map[string]*trackedOrder),
		fills:    make(chan types.Fill, 128),
		cancels:  make(chan struct{}),
		done:     make(chan struct{}),
	}

	go v.pollLoop()
	return v
}

// Name identifies the venue
func (v *Venue) Name() string {
	return "bybit"
}

// Submit places an order. The client order id is passed as the
// orderLinkId so the venue enforces submission idempotence on its side
// as well.
func (v *Venue) Submit(ctx context.Context, req venue.SubmitRequest) (venue.Ack, error) {
	params := map[string]interface{}{
		"category":    v.category,
		"symbol":      req.Symbol,
		"side":        string(req.Side),
		"orderType":   string(req.PriceType),
		"qty":         strconv.FormatFloat(req.Quantity, 'f', -1, 64),
		"orderLinkId": req.ClientOrderID,
	}
	if req.PriceType == types.PriceTypeLimit {
		params["price"] = strconv.FormatFloat(req.LimitPrice, 'f', -1, 64)
		params["timeInForce"] = "GTC"
	}

	result, err := v.client.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
	if err != nil {
		return venue.Ack{}, fmt.Errorf("failed to place order: %w", err)
	}

	serverResp := result
	if serverResp.RetCode != 0 {
		// The venue answered and refused: a rejection, not an error
		return venue.Ack{
			ClientOrderID: req.ClientOrderID,
			Accepted:      false,
			Reason:        fmt.Sprintf("%s (code %d)", serverResp.RetMsg, serverResp.RetCode),
			Timestamp:     time.Now(),
		}, nil
	}

	var placed struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return venue.Ack{}, fmt.Errorf("failed to marshal order result: %w", err)
	}
	if err := json.Unmarshal(resultBytes, &placed); err != nil {
		return venue.Ack{}, fmt.Errorf("failed to parse order result: %w", err)
	}

	v.mutex.Lock()
	v.orders[placed.OrderID] = &trackedOrder{symbol: req.Symbol, side: req.Side}
	v.mutex.Unlock()

	return venue.Ack{
		ClientOrderID: req.ClientOrderID,
		VenueOrderID:  placed.OrderID,
		Accepted:      true,
		Timestamp:     time.Now(),
	}, nil
}

// Cancel withdraws a live order
func (v *Venue) Cancel(ctx context.Context, venueOrderID string) error {
	v.mutex.Lock()
	tracked, ok := v.orders[venueOrderID]
	v.mutex.Unlock()
	if !ok {
		return fmt.Errorf("order %s is not tracked", venueOrderID)
	}

	params := map[string]interface{}{
		"category": v.category,
		"symbol":   tracked.symbol,
		"orderId":  venueOrderID,
	}
	result, err := v.client.NewUtaBybitServiceWithParams(params).CancelOrder(ctx)
	if err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", venueOrderID, err)
	}
	if serverResp := result; serverResp.RetCode != 0 {
		return fmt.Errorf("venue refused cancel of %s: %s (code %d)",
			venueOrderID, serverResp.RetMsg, serverResp.RetCode)
	}
	return nil
}

// pollLoop owns the fill channel: it is closed here, after the last
// pollOnce returned, so applyStatus can never send on a closed channel.
func (v *Venue) pollLoop() {
	defer close(v.done)
	defer close(v.fills)

	ticker := time.NewTicker(fillPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			v.pollOnce()
		case <-v.cancels:
			return
		}
	}
}

func (v *Venue) pollOnce() {
	v.mutex.Lock()
	pending := make(map[string]*trackedOrder, len(v.orders))
	for id, o := range v.orders {
		if !o.terminal {
			pending[id] = o
		}
	}
	v.mutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), fillPollInterval)
	defer cancel()

	for orderID, tracked := range pending {
		status, err := v.fetchOrderStatus(ctx, orderID, tracked.symbol)
		if err != nil {
			v.log.Warning("order status poll failed for %s: %v", orderID, err)
			continue
		}
		v.applyStatus(orderID, tracked, status)
	}
}

type orderStatus struct {
	Status     string
	CumExecQty float64
	AvgPrice   float64
	UpdatedAt  time.Time
}

// fetchOrderStatus asks the realtime open-order query first; orders
// that already left the book only show up in order history.
func (v *Venue) fetchOrderStatus(ctx context.Context, orderID, symbol string) (orderStatus, error) {
	params := map[string]interface{}{
		"category": v.category,
		"symbol":   symbol,
		"orderId":  orderID,
	}

	status, err := v.parseOrderQuery(v.client.NewUtaBybitServiceWithParams(params).GetOpenOrders(ctx))
	if err == nil {
		return status, nil
	}

	return v.parseOrderQuery(v.client.NewUtaBybitServiceWithParams(params).GetOrderHistory(ctx))
}

func (v *Venue) parseOrderQuery(result interface{}, err error) (orderStatus, error) {
	if err != nil {
		return orderStatus{}, err
	}

	serverResp, ok := result.(*bybit_api.ServerResponse)
	if !ok {
		return orderStatus{}, fmt.Errorf("unexpected response type")
	}
	if serverResp.RetCode != 0 {
		return orderStatus{}, fmt.Errorf("API error: %s (code %d)", serverResp.RetMsg, serverResp.RetCode)
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return orderStatus{}, err
	}
	var parsed struct {
		List []struct {
			OrderStatus string `json:"orderStatus"`
			CumExecQty  string `json:"cumExecQty"`
			AvgPrice    string `json:"avgPrice"`
			UpdatedTime string `json:"updatedTime"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &parsed); err != nil {
		return orderStatus{}, err
	}
	if len(parsed.List) == 0 {
		return orderStatus{}, fmt.Errorf("order not found")
	}

	entry := parsed.List[0]
	cumQty, _ := strconv.ParseFloat(entry.CumExecQty, 64)
	avgPx, _ := strconv.ParseFloat(entry.AvgPrice, 64)
	updatedMs, _ := strconv.ParseInt(entry.UpdatedTime, 10, 64)
	return orderStatus{
		Status:     entry.OrderStatus,
		CumExecQty: cumQty,
		AvgPrice:   avgPx,
		UpdatedAt:  time.UnixMilli(updatedMs),
	}, nil
}

func (v *Venue) applyStatus(orderID string, tracked *trackedOrder, status orderStatus) {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	executed := status.CumExecQty - tracked.cumExecQty
	if executed > 0 {
		// Price the increment from the cumulative averages
		incPrice := status.AvgPrice
		if tracked.cumExecQty > 0 && status.CumExecQty > 0 {
			incNotional := status.AvgPrice*status.CumExecQty - tracked.lastAvgPx*tracked.cumExecQty
			incPrice = incNotional / executed
		}

		fill := types.Fill{
			FillID:    fmt.Sprintf("%s:%s", orderID, strconv.FormatFloat(status.CumExecQty, 'f', -1, 64)),
			OrderID:   orderID,
			Symbol:    tracked.symbol,
			Side:      tracked.side,
			Quantity:  executed,
			Price:     incPrice,
			Timestamp: status.UpdatedAt,
		}
		select {
		case v.fills <- fill:
		default:
			v.log.Warning("fill channel full, dropping notification %s", fill.FillID)
		}

		tracked.cumExecQty = status.CumExecQty
		tracked.lastAvgPx = status.AvgPrice
	}

	switch status.Status {
	case "Filled", "Cancelled", "Rejected", "Deactivated":
		tracked.terminal = true
	}
}

// GetQuote fetches the current best bid/ask for a symbol, satisfying
// the polling feed's quote source contract.
func (v *Venue) GetQuote(ctx context.Context, symbol string) (feed.RawUpdate, error) {
	params := map[string]interface{}{
		"category": v.category,
		"symbol":   symbol,
	}
	result, err := v.client.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return feed.RawUpdate{}, fmt.Errorf("failed to get tickers: %w", err)
	}

	serverResp := result
	if serverResp.RetCode != 0 {
		return feed.RawUpdate{}, fmt.Errorf("API error: %s (code %d)", serverResp.RetMsg, serverResp.RetCode)
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return feed.RawUpdate{}, err
	}
	var parsed struct {
		List []struct {
			Symbol    string `json:"symbol"`
			Bid1Price string `json:"bid1Price"`
			Ask1Price string `json:"ask1Price"`
			LastPrice string `json:"lastPrice"`
			Volume24h string `json:"volume24h"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &parsed); err != nil {
		return feed.RawUpdate{}, err
	}
	if len(parsed.List) == 0 {
		return feed.RawUpdate{}, fmt.Errorf("no ticker data for %s", symbol)
	}

	entry := parsed.List[0]
	bid, _ := strconv.ParseFloat(entry.Bid1Price, 64)
	ask, _ := strconv.ParseFloat(entry.Ask1Price, 64)
	last, _ := strconv.ParseFloat(entry.LastPrice, 64)
	volume, _ := strconv.ParseFloat(entry.Volume24h, 64)

	return feed.RawUpdate{
		Symbol:    entry.Symbol,
		Timestamp: time.Now(),
		Bid:       bid,
		Ask:       ask,
		Last:      last,
		Volume:    volume,
	}, nil
}

// Fills returns the fill notification channel
func (v *Venue) Fills() <-chan types.Fill {
	return v.fills
}

// Close stops the polling loop and returns once it has exited and the
// fill channel is closed.
func (v *Venue) Close() error {
	v.closeOnce.Do(func() { close(v.cancels) })
	<-v.done
	return nil
}
