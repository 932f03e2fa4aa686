// Package ledger aggregates the flat, newest-first trade feed into
// per-market trade groups with display-ready fields.
package ledger

import (
	"github.com/rewired-gh/kalshideck/internal/models"
)

// settlementActions is the closed set of actions indicating a position
// was closed. Do not infer additional members from free-form actions.
var settlementActions = map[string]bool{
	models.ActionSell:       true,
	models.ActionSettled:    true,
	models.ActionSettle:     true,
	models.ActionStopLoss:   true,
	models.ActionTakeProfit: true,
	models.ActionEdgeExit:   true,
}

// IsSettlement reports whether action is settlement-class.
func IsSettlement(action string) bool {
	return settlementActions[action]
}

// Group collapses the newest-first event feed into trade groups keyed by
// market ID, preserving the first-seen order of distinct markets. The
// returned groups are freshly built on every call; the input is never
// mutated.
//
// Settlement detection scans in feed order, so the first settlement-class
// event matched for a group is the most recent one chronologically. An
// older settlement event further down the feed must never overwrite it.
func Group(trades []models.TradeEvent) []*models.TradeGroup {
	index := make(map[string]*models.TradeGroup)
	var groups []*models.TradeGroup

	for i := range trades {
		ev := trades[i]
		g, ok := index[ev.MarketID]
		if !ok {
			g = &models.TradeGroup{MarketID: ev.MarketID}
			index[ev.MarketID] = g
			groups = append(groups, g)
		}
		g.Entries = append(g.Entries, ev)
		if g.Settled == nil && IsSettlement(ev.Action) {
			settled := ev
			g.Settled = &settled
		}
	}

	for _, g := range groups {
		finalize(g)
	}
	return groups
}

// finalize fills the group's derived display fields from its entries.
func finalize(g *models.TradeGroup) {
	g.IsOpen = g.Settled == nil

	if g.Settled != nil {
		g.TotalQty = g.Settled.Quantity
		g.Side = g.Settled.Side
		if g.Side == "" {
			g.Side = models.SideUnknown
		}
	} else {
		g.Side = models.SideUnknown
		for _, e := range g.Entries {
			if e.Action != models.ActionBuy {
				continue
			}
			g.TotalQty += e.Quantity
			// Entries are newest-first: keep the first BUY's side.
			if g.Side == models.SideUnknown && e.Side != "" {
				g.Side = e.Side
			}
		}
	}

	// The moment of actual order placement is more informative than a
	// stale settlement timestamp, so prefer the most recent BUY's ts.
	g.DisplayTS = 0
	for _, e := range g.Entries {
		if e.Action == models.ActionBuy {
			g.DisplayTS = e.TS
			break
		}
	}
	if g.DisplayTS == 0 && len(g.Entries) > 0 {
		g.DisplayTS = g.Entries[0].TS
	}
}

// OpenCount returns the number of groups with no settlement-class entry.
func OpenCount(groups []*models.TradeGroup) int {
	n := 0
	for _, g := range groups {
		if g.IsOpen {
			n++
		}
	}
	return n
}
