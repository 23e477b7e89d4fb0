// Package objects defines the value types that flow through the event engine:
// market data snapshots, order and trade records, positions, and the request
// objects sent to gateways. Events carry these by value, so a published object
// is a snapshot that later mutations cannot corrupt.
package objects

import "time"

// Direction denotes the side of an order or position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Action distinguishes opening from closing trades.
type Action string

const (
	ActionOpen  Action = "open"
	ActionClose Action = "close"
)

// OrderType denotes supported order types.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// Status normalizes the order lifecycle into a small set.
type Status string

const (
	StatusSubmitting Status = "submitting"
	StatusNotTraded  Status = "not_traded"
	StatusPartTraded Status = "part_traded"
	StatusAllTraded  Status = "all_traded"
	StatusCancelled  Status = "cancelled"
	StatusRejected   Status = "rejected"
)

// IsActive reports whether an order in this status is still pending or
// partially filled, i.e. eligible for cancellation.
func (s Status) IsActive() bool {
	switch s {
	case StatusSubmitting, StatusNotTraded, StatusPartTraded:
		return true
	}
	return false
}

// BarData is an OHLCV bar for a single interval.
type BarData struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// TickData is a real-time quote snapshot.
type TickData struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	LastPrice float64   `json:"last_price"`
	BidPrice  float64   `json:"bid_price"`
	AskPrice  float64   `json:"ask_price"`
	BidVolume float64   `json:"bid_volume"`
	AskVolume float64   `json:"ask_volume"`
	Volume    float64   `json:"volume"`
}

// Mid returns the bid/ask midpoint.
func (t TickData) Mid() float64 {
	return (t.BidPrice + t.AskPrice) / 2.0
}

// OrderData tracks the lifecycle of a submitted order. Gateways mutate their
// own copy and publish value snapshots on every transition.
type OrderData struct {
	Symbol    string    `json:"symbol"`
	OrderID   string    `json:"order_id"` // gateway-local id, e.g. "PAPER000001"
	Direction Direction `json:"direction"`
	Action    Action    `json:"action"`
	Type      OrderType `json:"type"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Traded    float64   `json:"traded"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Reference string    `json:"reference"` // originating strategy name, copied from the request
}

// Key returns the composite order id "<symbol>.<orderid>" used for map
// indexing and fine-grained event routing.
func (o OrderData) Key() string {
	return o.Symbol + "." + o.OrderID
}

// IsActive reports whether the order is still pending or partially filled.
func (o OrderData) IsActive() bool {
	return o.Status.IsActive()
}

// CancelRequest builds the cancel intent for this order.
func (o OrderData) CancelRequest() CancelRequest {
	return CancelRequest{Symbol: o.Symbol, OrderID: o.OrderID}
}

// TradeData is a single fill. One order may produce several trade records.
type TradeData struct {
	Symbol    string    `json:"symbol"`
	OrderID   string    `json:"order_id"`
	TradeID   string    `json:"trade_id"`
	Direction Direction `json:"direction"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Key returns the composite trade id "<symbol>.<tradeid>".
func (t TradeData) Key() string {
	return t.Symbol + "." + t.TradeID
}

// OrderKey returns the composite id of the order this fill belongs to.
func (t TradeData) OrderKey() string {
	return t.Symbol + "." + t.OrderID
}

// PositionData is the holding for one symbol/direction pair.
type PositionData struct {
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	Volume    float64   `json:"volume"`
	Frozen    float64   `json:"frozen"`
	AvgPrice  float64   `json:"avg_price"`
	PnL       float64   `json:"pnl"`
}

// Key returns the composite position id "<symbol>.<direction>".
func (p PositionData) Key() string {
	return p.Symbol + "." + string(p.Direction)
}

// AccountData is an account balance snapshot.
type AccountData struct {
	AccountID string  `json:"account_id"`
	Balance   float64 `json:"balance"`
	Frozen    float64 `json:"frozen"`
}

// Available returns the balance not locked by working orders.
func (a AccountData) Available() float64 {
	return a.Balance - a.Frozen
}

// OrderRequest is the intent to place an order, sent to a gateway.
type OrderRequest struct {
	Symbol    string
	Direction Direction
	Action    Action
	Type      OrderType
	Volume    float64
	Price     float64
	Reference string // originating strategy name, for attribution
}

// CreateOrder builds the initial OrderData for this request once a gateway
// has assigned a local order id.
func (r OrderRequest) CreateOrder(orderID string) OrderData {
	return OrderData{
		Symbol:    r.Symbol,
		OrderID:   orderID,
		Direction: r.Direction,
		Action:    r.Action,
		Type:      r.Type,
		Price:     r.Price,
		Volume:    r.Volume,
		Traded:    0,
		Status:    StatusSubmitting,
		Timestamp: time.Now(),
		Reference: r.Reference,
	}
}

// CancelRequest is the intent to cancel an existing order.
type CancelRequest struct {
	Symbol  string
	OrderID string
}
