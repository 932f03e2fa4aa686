package models

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Operating environments. Paper mode simulates fills against the live
// book; live mode trades real money and carries authoritative P&L.
const (
	EnvPaper = "paper"
	EnvLive  = "live"
)

// Bot decisions.
const (
	DecisionBuyYes = "BUY_YES"
	DecisionBuyNo  = "BUY_NO"
	DecisionHold   = "HOLD"
)

// ActivePosition is the bot's open position as reported by the backend.
// Count is signed: positive means long "yes", negative long "no".
type ActivePosition struct {
	Count         int `json:"count"`
	ExposureCents int `json:"exposure_cents"`
}

// Orderbook carries the best bid and ask of the active contract in cents.
type Orderbook struct {
	BestBidCents int `json:"best_bid"`
	BestAskCents int `json:"best_ask"`
}

// StatusSnapshot is the periodic bot status payload, replaced wholesale on
// each poll. Balance is a formatted string from the backend and may be
// malformed; parsing failures fall back rather than propagate.
type StatusSnapshot struct {
	Running     bool    `json:"running"`
	LastAction  string  `json:"last_action"`
	Decision    string  `json:"decision"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning"` // semicolon-delimited clauses
	Balance     string  `json:"balance"`
	Environment string  `json:"env"`

	DayPnL      decimal.Decimal  `json:"day_pnl"`
	PositionPnL decimal.Decimal  `json:"position_pnl"`
	ActualPnL   *decimal.Decimal `json:"actual_pnl,omitempty"` // live-authoritative, absent in paper mode
	TotalValue  *decimal.Decimal `json:"total_value,omitempty"`
	StartValue  *decimal.Decimal `json:"start_balance,omitempty"`

	Position  *ActivePosition `json:"position,omitempty"`
	Orderbook *Orderbook      `json:"orderbook,omitempty"`

	Market   string  `json:"market"`    // active contract ticker
	Strike   float64 `json:"strike"`    // strike price in dollars
	BTCPrice float64 `json:"btc_price"` // live underlying price
	CloseTS  int64   `json:"close_ts"`  // contract close time, unix seconds; 0 = no active contract
}

// Validate checks snapshot field constraints.
func (s *StatusSnapshot) Validate() error {
	if s.Confidence < 0.0 || s.Confidence > 1.0 {
		return errors.New("confidence must be between 0.0 and 1.0")
	}
	if s.Environment != EnvPaper && s.Environment != EnvLive {
		return errors.New("env must be paper or live")
	}
	if s.CloseTS < 0 {
		return errors.New("close timestamp must not be negative")
	}
	if s.Strike < 0 {
		return errors.New("strike must not be negative")
	}
	return nil
}
