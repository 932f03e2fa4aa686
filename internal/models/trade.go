// Package models defines the core domain entities: trade events, trade
// groups, and bot status snapshots.
package models

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Trade actions in the backend event vocabulary. SELL through EDGE are
// settlement-class: they indicate a position was closed.
const (
	ActionBuy        = "BUY"
	ActionSell       = "SELL"
	ActionSettled    = "SETTLED"
	ActionSettle     = "SETTLE"
	ActionStopLoss   = "SL"
	ActionTakeProfit = "TP"
	ActionEdgeExit   = "EDGE"
)

// Contract sides.
const (
	SideYes     = "yes"
	SideNo      = "no"
	SideUnknown = "unknown"
)

// TradeEvent is one atomic fill or settlement record from the backend.
// The feed delivers events newest-first; events are immutable for a given
// render pass. PnL, Cost, Revenue, and Fees are present only on
// settlement-class events and arrive already computed upstream.
type TradeEvent struct {
	MarketID string           `json:"market_id"`
	Action   string           `json:"action"`
	Side     string           `json:"side"`
	Quantity int              `json:"quantity"`
	Price    float64          `json:"price"` // contract price as a 0-1 fraction
	TS       int64            `json:"ts"`    // unix seconds
	PnL      *decimal.Decimal `json:"pnl,omitempty"`
	Cost     *decimal.Decimal `json:"cost,omitempty"`
	Revenue  *decimal.Decimal `json:"revenue,omitempty"`
	Fees     *decimal.Decimal `json:"fees,omitempty"`
}

// Validate checks trade event field constraints.
func (e *TradeEvent) Validate() error {
	if e.MarketID == "" {
		return errors.New("market ID must not be empty")
	}
	if e.Action == "" {
		return errors.New("action must not be empty")
	}
	if e.Quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	if e.Price < 0.0 || e.Price > 1.0 {
		return errors.New("price must be between 0.0 and 1.0")
	}
	if e.TS <= 0 {
		return errors.New("timestamp must be positive")
	}
	return nil
}

// TradeSummary is the backend-reconstructed ledger summary delivered
// alongside the trade feed.
type TradeSummary struct {
	TotalTrades int             `json:"total_trades"`
	Wins        int             `json:"wins"`
	Losses      int             `json:"losses"`
	Pending     int             `json:"pending"`
	NetPnL      decimal.Decimal `json:"net_pnl"`
	WinRate     float64         `json:"win_rate"`
}

// TradeFeed is the trade history payload polled from the backend.
// A nil or empty Trades slice is the valid "no trades" state.
type TradeFeed struct {
	Trades  []TradeEvent `json:"trades"`
	Summary TradeSummary `json:"summary"`
}

// TradeGroup collapses all trade events sharing a market into one logical
// round-trip or open position. Groups are derived and rebuilt on every
// feed update; Entries keeps the feed's newest-first order.
type TradeGroup struct {
	MarketID string       `json:"market_id"`
	Entries  []TradeEvent `json:"entries"`
	Settled  *TradeEvent  `json:"settled,omitempty"`

	TotalQty  int    `json:"total_qty"`
	Side      string `json:"side"`
	IsOpen    bool   `json:"is_open"`
	DisplayTS int64  `json:"display_ts"`
}

// Chronological returns the group's entries oldest-first for expanded
// drill-down display. The grouping and summary logic always operates on
// the original newest-first order.
func (g *TradeGroup) Chronological() []TradeEvent {
	out := make([]TradeEvent, len(g.Entries))
	for i, e := range g.Entries {
		out[len(g.Entries)-1-i] = e
	}
	return out
}
