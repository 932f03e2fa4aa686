package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Tunable kinds.
const (
	KindBool  = "bool"
	KindInt   = "int"
	KindFloat = "float"
)

// TunableSpec describes one runtime-adjustable trading parameter. Numeric
// values are clamped into [Min, Max] rather than rejected, mirroring how
// the backend applies them.
type TunableSpec struct {
	Kind string
	Min  float64
	Max  float64
}

// Tunables enumerates the backend parameters the dashboard may change at
// runtime. Keys and bounds match the backend's tunable table; unknown
// keys are dropped on apply.
var Tunables = map[string]TunableSpec{
	"TRADING_ENABLED":          {Kind: KindBool},
	"ORDER_SIZE_PCT":           {Kind: KindFloat, Min: 0.5, Max: 50},
	"MAX_POSITION_PCT":         {Kind: KindFloat, Min: 1, Max: 100},
	"MAX_TOTAL_EXPOSURE_PCT":   {Kind: KindFloat, Min: 1, Max: 100},
	"MAX_DAILY_LOSS_PCT":       {Kind: KindFloat, Min: 1, Max: 100},
	"MIN_SECONDS_TO_CLOSE":     {Kind: KindInt, Min: 30, Max: 600},
	"MAX_SPREAD_CENTS":         {Kind: KindInt, Min: 1, Max: 100},
	"MIN_CONTRACT_PRICE":       {Kind: KindInt, Min: 1, Max: 55},
	"MAX_CONTRACT_PRICE":       {Kind: KindInt, Min: 50, Max: 99},
	"STOP_LOSS_CENTS":          {Kind: KindInt, Min: 0, Max: 99},
	"POLL_INTERVAL_SECONDS":    {Kind: KindInt, Min: 3, Max: 120},
	"MIN_EDGE_CENTS":           {Kind: KindInt, Min: 1, Max: 30},
	"RULE_MIN_CONFIDENCE":      {Kind: KindFloat, Min: 0.3, Max: 0.95},
	"RULE_SIT_OUT_LOW_VOL":     {Kind: KindBool},
	"VOL_HIGH_THRESHOLD":       {Kind: KindFloat, Min: 50, Max: 2000},
	"VOL_LOW_THRESHOLD":        {Kind: KindFloat, Min: 20, Max: 1000},
	"LEAD_LAG_THRESHOLD":       {Kind: KindInt, Min: 10, Max: 500},
	"LEAD_LAG_ENABLED":         {Kind: KindBool},
	"DELTA_THRESHOLD":          {Kind: KindInt, Min: 5, Max: 200},
	"QUICK_PROFIT_CENTS":       {Kind: KindInt, Min: 1, Max: 20},
	"EDGE_FADE_THRESHOLD":      {Kind: KindInt, Min: 0, Max: 15},
	"MIN_HOLD_SECONDS":         {Kind: KindInt, Min: 1, Max: 120},
	"REENTRY_COOLDOWN_SECONDS": {Kind: KindInt, Min: 5, Max: 120},
	"BASE_POSITION_SIZE_PCT":   {Kind: KindFloat, Min: 1, Max: 50},
	"MAX_POSITION_SIZE_PCT":    {Kind: KindFloat, Min: 1, Max: 50},
	"STRONG_EDGE_THRESHOLD":    {Kind: KindInt, Min: 3, Max: 20},
	"PAPER_STARTING_BALANCE":   {Kind: KindFloat, Min: 10, Max: 100000},
	"PAPER_FILL_FRACTION":      {Kind: KindFloat, Min: 0.05, Max: 1},
	"LIVE_STARTING_BALANCE":    {Kind: KindFloat, Min: 10, Max: 100000},
}

// ApplyTunableBounds normalizes and clamps the given updates. Unknown
// keys and unparseable values are skipped, not errors. The returned map
// holds the values as the backend expects them serialized.
func ApplyTunableBounds(updates map[string]string) map[string]string {
	applied := make(map[string]string, len(updates))
	for key, raw := range updates {
		spec, ok := Tunables[key]
		if !ok {
			continue
		}
		value, err := spec.normalize(raw)
		if err != nil {
			continue
		}
		applied[key] = value
	}
	return applied
}

func (spec TunableSpec) normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	switch spec.Kind {
	case KindBool:
		switch strings.ToLower(raw) {
		case "true", "1", "yes":
			return "true", nil
		case "false", "0", "no":
			return "false", nil
		}
		return "", fmt.Errorf("not a boolean: %q", raw)
	case KindInt:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", fmt.Errorf("not a number: %q", raw)
		}
		return strconv.Itoa(int(clamp(f, spec.Min, spec.Max))), nil
	case KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", fmt.Errorf("not a number: %q", raw)
		}
		return strconv.FormatFloat(clamp(f, spec.Min, spec.Max), 'f', -1, 64), nil
	}
	return "", fmt.Errorf("unknown tunable kind: %q", spec.Kind)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
