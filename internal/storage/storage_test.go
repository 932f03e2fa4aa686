package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStorage(t *testing.T, maxNotifications int) *Storage {
	t.Helper()
	s, err := New(maxNotifications, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Failed to close storage: %v", err)
		}
	})
	return s
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestStorage(t, 10)

	if _, ok, err := s.GetSetting("MIN_EDGE_CENTS"); err != nil || ok {
		t.Fatalf("Expected unset setting, got ok=%v err=%v", ok, err)
	}

	if err := s.SetSetting("MIN_EDGE_CENTS", "4"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	if err := s.SetSetting("MIN_EDGE_CENTS", "6"); err != nil {
		t.Fatalf("SetSetting overwrite failed: %v", err)
	}
	if err := s.SetSetting("TRADING_ENABLED", "true"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}

	value, ok, err := s.GetSetting("MIN_EDGE_CENTS")
	if err != nil || !ok {
		t.Fatalf("GetSetting failed: ok=%v err=%v", ok, err)
	}
	if value != "6" {
		t.Errorf("Expected latest value 6, got %s", value)
	}

	all, err := s.AllSettings()
	if err != nil {
		t.Fatalf("AllSettings failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 settings, got %d", len(all))
	}
	if all["TRADING_ENABLED"] != "true" {
		t.Errorf("Expected TRADING_ENABLED=true, got %s", all["TRADING_ENABLED"])
	}
}

func TestNotificationDedupe(t *testing.T) {
	s := newTestStorage(t, 10)

	rec := NotifiedSettlement{
		MarketID:  "KXBTC15M-26AUG231500",
		Action:    "TP",
		PnL:       "1.20",
		SettledTS: 1_700_000_000,
	}

	notified, err := s.WasNotified(rec.MarketID, rec.SettledTS)
	if err != nil {
		t.Fatalf("WasNotified failed: %v", err)
	}
	if notified {
		t.Error("Expected not yet notified")
	}

	if err := s.MarkNotified(rec); err != nil {
		t.Fatalf("MarkNotified failed: %v", err)
	}
	// Re-poll of the same feed: recording again is a no-op.
	if err := s.MarkNotified(rec); err != nil {
		t.Fatalf("MarkNotified repeat failed: %v", err)
	}

	notified, err = s.WasNotified(rec.MarketID, rec.SettledTS)
	if err != nil {
		t.Fatalf("WasNotified failed: %v", err)
	}
	if !notified {
		t.Error("Expected notified after MarkNotified")
	}

	// A later settlement in the same market is distinct.
	notified, err = s.WasNotified(rec.MarketID, rec.SettledTS+900)
	if err != nil {
		t.Fatalf("WasNotified failed: %v", err)
	}
	if notified {
		t.Error("Expected later settlement to be unnotified")
	}
}

func TestNotificationRotation(t *testing.T) {
	s := newTestStorage(t, 3)

	base := time.Now().Add(-1 * time.Hour)
	for i := 0; i < 5; i++ {
		rec := NotifiedSettlement{
			MarketID:   "M1",
			Action:     "SETTLED",
			SettledTS:  int64(1000 + i),
			NotifiedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.MarkNotified(rec); err != nil {
			t.Fatalf("MarkNotified failed: %v", err)
		}
	}

	// Oldest two rotated out past the cap of 3.
	for i, wantKept := range []bool{false, false, true, true, true} {
		notified, err := s.WasNotified("M1", int64(1000+i))
		if err != nil {
			t.Fatalf("WasNotified failed: %v", err)
		}
		if notified != wantKept {
			t.Errorf("Settlement %d: expected kept=%v, got %v", i, wantKept, notified)
		}
	}
}
