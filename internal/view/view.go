// Package view derives the display-ready dashboard view model from the
// latest backend inputs. Derivation is pure: every call rebuilds the view
// from scratch and never mutates backend-supplied data in place.
package view

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/kalshideck/internal/countdown"
	"github.com/rewired-gh/kalshideck/internal/ledger"
	"github.com/rewired-gh/kalshideck/internal/models"
)

// SelectPnL chooses between the live-authoritative P&L and the
// reconstructed net P&L. The authoritative value wins only when the mode
// is live AND the value is actually present; its absence in live mode
// silently falls back to the reconstructed value.
func SelectPnL(env string, actual *decimal.Decimal, net decimal.Decimal) decimal.Decimal {
	if env == models.EnvLive && actual != nil {
		return *actual
	}
	return net
}

// ParseBalance parses the backend's formatted cash balance. Malformed
// input recovers to zero rather than propagating an error.
func ParseBalance(s string) decimal.Decimal {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// AccountValue prefers the backend-supplied numeric total and falls back
// to the parsed cash balance.
func AccountValue(snap *models.StatusSnapshot) decimal.Decimal {
	if snap.TotalValue != nil {
		return *snap.TotalValue
	}
	return ParseBalance(snap.Balance)
}

// StartBalance prefers the backend-supplied start balance; otherwise it
// backs out today's change from the account value to infer a day-start
// baseline.
func StartBalance(snap *models.StatusSnapshot) decimal.Decimal {
	if snap.StartValue != nil {
		return *snap.StartValue
	}
	return AccountValue(snap).Sub(snap.DayPnL)
}

// PctPnL is the day P&L as a percentage of the start balance, zero when
// the start balance is not positive.
func PctPnL(dayPnL, startBalance decimal.Decimal) float64 {
	if startBalance.Sign() <= 0 {
		return 0
	}
	pct, _ := dayPnL.Div(startBalance).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// PositionView is the valued active position.
type PositionView struct {
	Count          int             `json:"count"` // signed: + long yes, - long no
	Side           string          `json:"side"`
	ContractsHeld  int             `json:"contracts_held"`
	PerContractCts int             `json:"per_contract_cents"`
	MarketValue    decimal.Decimal `json:"market_value"`
	ExposureCents  int             `json:"exposure_cents"`
}

// ValuePosition prices the held side at which it could currently be
// closed: best bid for long "yes", 100 − best ask for long "no". Market
// value converts cents to currency units. Returns nil when there is no
// position or no book.
func ValuePosition(pos *models.ActivePosition, book *models.Orderbook) *PositionView {
	if pos == nil || pos.Count == 0 || book == nil {
		return nil
	}

	side := models.SideYes
	perContract := book.BestBidCents
	held := pos.Count
	if pos.Count < 0 {
		side = models.SideNo
		perContract = 100 - book.BestAskCents
		held = -pos.Count
	}

	value := decimal.NewFromInt(int64(perContract)).
		Mul(decimal.NewFromInt(int64(held))).
		Div(decimal.NewFromInt(100))

	return &PositionView{
		Count:          pos.Count,
		Side:           side,
		ContractsHeld:  held,
		PerContractCts: perContract,
		MarketValue:    value,
		ExposureCents:  pos.ExposureCents,
	}
}

// ReasoningClauses splits the bot's free-text reasoning into its
// semicolon-delimited clauses, dropping empty ones.
func ReasoningClauses(reasoning string) []string {
	var clauses []string
	for _, part := range strings.Split(reasoning, ";") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			clauses = append(clauses, trimmed)
		}
	}
	return clauses
}

// Model is the complete display-ready dashboard state.
type Model struct {
	Running    bool     `json:"running"`
	LastAction string   `json:"last_action"`
	Decision   string   `json:"decision"`
	Confidence float64  `json:"confidence"`
	Reasoning  []string `json:"reasoning"`
	Env        string   `json:"env"`
	Market     string   `json:"market"`

	Balance      decimal.Decimal `json:"balance"`
	TotalValue   decimal.Decimal `json:"total_value"`
	StartBalance decimal.Decimal `json:"start_balance"`
	DayPnL       decimal.Decimal `json:"day_pnl"`
	PctPnL       float64         `json:"pct_pnl"`
	PositionPnL  decimal.Decimal `json:"position_pnl"`
	NetPnL       decimal.Decimal `json:"net_pnl"` // selected per P&L source precedence

	Position *PositionView `json:"position,omitempty"`

	Groups  []*models.TradeGroup `json:"groups"`
	Summary models.TradeSummary  `json:"summary"`
	HasData bool                 `json:"has_data"`

	Countdown countdown.Status    `json:"countdown"`
	Proximity countdown.Proximity `json:"proximity"`

	GeneratedAt time.Time `json:"generated_at"`
}

// Derive rebuilds the full view model from the latest inputs. feed may be
// nil ("no trades"); cd carries the tracker's current reading.
func Derive(feed *models.TradeFeed, snap *models.StatusSnapshot, cd countdown.Status, now time.Time) *Model {
	m := &Model{
		Countdown:   cd,
		Proximity:   countdown.Proximity{PositionPct: 50},
		GeneratedAt: now,
	}

	if feed != nil {
		m.Groups = ledger.Group(feed.Trades)
		m.Summary = feed.Summary
		m.HasData = len(feed.Trades) > 0
		m.NetPnL = feed.Summary.NetPnL
	}

	if snap != nil {
		m.Running = snap.Running
		m.LastAction = snap.LastAction
		m.Decision = snap.Decision
		m.Confidence = snap.Confidence
		m.Reasoning = ReasoningClauses(snap.Reasoning)
		m.Env = snap.Environment
		m.Market = snap.Market

		m.Balance = ParseBalance(snap.Balance)
		m.TotalValue = AccountValue(snap)
		m.StartBalance = StartBalance(snap)
		m.DayPnL = snap.DayPnL
		m.PctPnL = PctPnL(snap.DayPnL, m.StartBalance)
		m.PositionPnL = snap.PositionPnL
		m.Position = ValuePosition(snap.Position, snap.Orderbook)
		m.Proximity = countdown.StrikeProximity(snap.BTCPrice, snap.Strike)

		var net decimal.Decimal
		if feed != nil {
			net = feed.Summary.NetPnL
		}
		m.NetPnL = SelectPnL(snap.Environment, snap.ActualPnL, net)
	}

	return m
}
