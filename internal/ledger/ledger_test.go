package ledger

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/kalshideck/internal/models"
)

func dec(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

func TestGroupDistinctMarkets(t *testing.T) {
	trades := []models.TradeEvent{
		{MarketID: "M3", Action: models.ActionBuy, Side: "yes", Quantity: 1, TS: 400},
		{MarketID: "M2", Action: models.ActionSell, Side: "no", Quantity: 2, TS: 300},
		{MarketID: "M3", Action: models.ActionBuy, Side: "yes", Quantity: 1, TS: 250},
		{MarketID: "M1", Action: models.ActionBuy, Side: "yes", Quantity: 5, TS: 200},
		{MarketID: "M2", Action: models.ActionBuy, Side: "no", Quantity: 2, TS: 100},
	}

	groups := Group(trades)

	if len(groups) != 3 {
		t.Fatalf("Expected 3 groups, got %d", len(groups))
	}

	// Group order = first appearance of each market scanning newest-first.
	wantOrder := []string{"M3", "M2", "M1"}
	for i, want := range wantOrder {
		if groups[i].MarketID != want {
			t.Errorf("Group %d: expected market %s, got %s", i, want, groups[i].MarketID)
		}
	}
}

func TestGroupSettlementFirstMatchWins(t *testing.T) {
	// Two settlement-class events: position 1 (most recent chronologically)
	// and position 3 (older, re-entry round-trip). The first match in the
	// forward scan must win; the older one must never overwrite it.
	trades := []models.TradeEvent{
		{MarketID: "M1", Action: models.ActionBuy, Side: "yes", Quantity: 2, TS: 500},
		{MarketID: "M1", Action: models.ActionTakeProfit, Side: "yes", Quantity: 4, TS: 400, PnL: dec(1.20)},
		{MarketID: "M1", Action: models.ActionBuy, Side: "yes", Quantity: 4, TS: 300},
		{MarketID: "M1", Action: models.ActionStopLoss, Side: "no", Quantity: 3, TS: 200, PnL: dec(-0.80)},
		{MarketID: "M1", Action: models.ActionBuy, Side: "no", Quantity: 3, TS: 100},
	}

	groups := Group(trades)
	if len(groups) != 1 {
		t.Fatalf("Expected 1 group, got %d", len(groups))
	}

	g := groups[0]
	if g.Settled == nil {
		t.Fatal("Expected settled event, got nil")
	}
	if g.Settled.TS != 400 {
		t.Errorf("Expected settled ts 400 (first match), got %d", g.Settled.TS)
	}
	if g.Settled.Action != models.ActionTakeProfit {
		t.Errorf("Expected settled action TP, got %s", g.Settled.Action)
	}
	if g.IsOpen {
		t.Error("Expected group to be closed")
	}
	if g.TotalQty != 4 {
		t.Errorf("Expected total qty 4 (settled quantity), got %d", g.TotalQty)
	}
	if g.Side != "yes" {
		t.Errorf("Expected side yes (settled side), got %s", g.Side)
	}
}

func TestGroupOpenDerivedFromBuys(t *testing.T) {
	trades := []models.TradeEvent{
		{MarketID: "M1", Action: models.ActionBuy, Side: "no", Quantity: 2, TS: 300},
		{MarketID: "M1", Action: "ADJUST", Side: "yes", Quantity: 9, TS: 250},
		{MarketID: "M1", Action: models.ActionBuy, Side: "no", Quantity: 3, TS: 200},
	}

	g := Group(trades)[0]

	if !g.IsOpen {
		t.Error("Expected group to be open")
	}
	if g.TotalQty != 5 {
		t.Errorf("Expected total qty 5 (BUY entries only), got %d", g.TotalQty)
	}
	if g.Side != "no" {
		t.Errorf("Expected side no (most recent BUY), got %s", g.Side)
	}
	if g.DisplayTS != 300 {
		t.Errorf("Expected display ts 300 (most recent BUY), got %d", g.DisplayTS)
	}
}

func TestGroupNoBuyEntries(t *testing.T) {
	// Free-form action only: no BUY to derive side from, no settlement.
	trades := []models.TradeEvent{
		{MarketID: "M1", Action: "ADJUST", Side: "", Quantity: 1, TS: 100},
	}

	g := Group(trades)[0]

	if !g.IsOpen {
		t.Error("Expected group to be open")
	}
	if g.Side != models.SideUnknown {
		t.Errorf("Expected unknown side, got %s", g.Side)
	}
	if g.TotalQty != 0 {
		t.Errorf("Expected total qty 0, got %d", g.TotalQty)
	}
	if g.DisplayTS != 100 {
		t.Errorf("Expected display ts 100 (newest entry), got %d", g.DisplayTS)
	}
}

func TestGroupEmptyBuySideFallsBack(t *testing.T) {
	trades := []models.TradeEvent{
		{MarketID: "M1", Action: models.ActionBuy, Side: "", Quantity: 1, TS: 100},
	}

	g := Group(trades)[0]
	if g.Side != models.SideUnknown {
		t.Errorf("Expected unknown side for empty BUY side, got %s", g.Side)
	}
}

func TestGroupEmptyFeed(t *testing.T) {
	if groups := Group(nil); len(groups) != 0 {
		t.Errorf("Expected no groups for nil feed, got %d", len(groups))
	}
	if groups := Group([]models.TradeEvent{}); len(groups) != 0 {
		t.Errorf("Expected no groups for empty feed, got %d", len(groups))
	}
}

func TestGroupSettledRoundTrip(t *testing.T) {
	// Closed round-trip: display ts is the BUY's ts, not the settlement's.
	trades := []models.TradeEvent{
		{MarketID: "M1", Action: models.ActionSell, Side: "yes", Quantity: 3, TS: 100, PnL: dec(-1.5)},
		{MarketID: "M1", Action: models.ActionBuy, Side: "yes", Quantity: 3, TS: 90},
	}

	groups := Group(trades)
	if len(groups) != 1 {
		t.Fatalf("Expected 1 group, got %d", len(groups))
	}

	g := groups[0]
	if g.IsOpen {
		t.Error("Expected group to be closed")
	}
	if g.TotalQty != 3 {
		t.Errorf("Expected total qty 3, got %d", g.TotalQty)
	}
	if g.Side != "yes" {
		t.Errorf("Expected side yes, got %s", g.Side)
	}
	if g.DisplayTS != 90 {
		t.Errorf("Expected display ts 90 (latest BUY), got %d", g.DisplayTS)
	}
	if g.Settled == nil || !g.Settled.PnL.Equal(decimal.NewFromFloat(-1.5)) {
		t.Error("Expected settled pnl -1.5 preserved")
	}
}

func TestChronological(t *testing.T) {
	trades := []models.TradeEvent{
		{MarketID: "M1", Action: models.ActionSell, Side: "yes", Quantity: 1, TS: 300},
		{MarketID: "M1", Action: models.ActionBuy, Side: "yes", Quantity: 1, TS: 200},
		{MarketID: "M1", Action: models.ActionBuy, Side: "yes", Quantity: 1, TS: 100},
	}

	g := Group(trades)[0]
	chrono := g.Chronological()

	for i := 1; i < len(chrono); i++ {
		if chrono[i].TS < chrono[i-1].TS {
			t.Fatalf("Expected oldest-first order, got ts %d before %d", chrono[i-1].TS, chrono[i].TS)
		}
	}
	// Original order untouched.
	if g.Entries[0].TS != 300 {
		t.Errorf("Expected entries to stay newest-first, got first ts %d", g.Entries[0].TS)
	}
}

func TestIsSettlement(t *testing.T) {
	tests := []struct {
		action string
		want   bool
	}{
		{models.ActionSell, true},
		{models.ActionSettled, true},
		{models.ActionSettle, true},
		{models.ActionStopLoss, true},
		{models.ActionTakeProfit, true},
		{models.ActionEdgeExit, true},
		{models.ActionBuy, false},
		{"ADJUST", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsSettlement(tt.action); got != tt.want {
			t.Errorf("IsSettlement(%q) = %v, want %v", tt.action, got, tt.want)
		}
	}
}

func TestOpenCount(t *testing.T) {
	trades := []models.TradeEvent{
		{MarketID: "M1", Action: models.ActionBuy, Side: "yes", Quantity: 1, TS: 400},
		{MarketID: "M2", Action: models.ActionSettled, Side: "no", Quantity: 1, TS: 300},
		{MarketID: "M2", Action: models.ActionBuy, Side: "no", Quantity: 1, TS: 200},
		{MarketID: "M3", Action: models.ActionBuy, Side: "yes", Quantity: 1, TS: 100},
	}

	groups := Group(trades)
	if got := OpenCount(groups); got != 2 {
		t.Errorf("Expected 2 open groups, got %d", got)
	}

	// isOpen mutually exclusive and exhaustive with a settlement entry.
	for _, g := range groups {
		if g.IsOpen != (g.Settled == nil) {
			t.Errorf("Group %s: isOpen=%v inconsistent with settled=%v", g.MarketID, g.IsOpen, g.Settled)
		}
	}
}
