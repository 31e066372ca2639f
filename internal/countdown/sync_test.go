package countdown

import (
	"testing"
	"time"
)

func TestOffsetRoundTrip(t *testing.T) {
	serverNow := utc(2025, 1, 1, 12, 0, 0)
	clientNow := serverNow.Add(5 * time.Second)

	var o Offset
	o.Observe(serverNow, clientNow)
	if o.Duration() != -5*time.Second {
		t.Fatalf("expected -5s offset, got %s", o.Duration())
	}

	adjusted := o.Now(clientNow.Add(time.Second))
	if !adjusted.Equal(serverNow.Add(time.Second)) {
		t.Fatalf("expected adjusted now %s, got %s", serverNow.Add(time.Second), adjusted)
	}
}

func TestOffsetReplacesNotAverages(t *testing.T) {
	base := utc(2025, 1, 1, 0, 0, 0)
	var o Offset
	o.Observe(base, base.Add(10*time.Second))
	o.Observe(base.Add(time.Minute), base.Add(time.Minute-2*time.Second))

	if o.Duration() != 2*time.Second {
		t.Fatalf("expected offset replaced with 2s, got %s", o.Duration())
	}

	if o.Observe(base, base) {
		t.Fatalf("older sample must not replace the fresher one")
	}
	if o.Duration() != 2*time.Second {
		t.Fatalf("offset changed by stale sample: %s", o.Duration())
	}
}

func TestOffsetObserveRawKeepsLastKnown(t *testing.T) {
	local := utc(2025, 1, 1, 0, 0, 0)
	var o Offset
	if err := o.ObserveRaw("2025-01-01T00:00:30Z", local); err != nil {
		t.Fatalf("ObserveRaw failed: %v", err)
	}
	if o.Duration() != 30*time.Second {
		t.Fatalf("expected 30s, got %s", o.Duration())
	}

	if err := o.ObserveRaw("", local); err == nil {
		t.Fatalf("expected error for missing sample")
	}
	if err := o.ObserveRaw("yesterday", local); err == nil {
		t.Fatalf("expected error for malformed sample")
	}
	if !o.Known() || o.Duration() != 30*time.Second {
		t.Fatalf("expected last-known offset kept, got %s", o.Duration())
	}
}

func TestProjectIndependentOfMissedTicks(t *testing.T) {
	due := utc(2025, 1, 2, 0, 0, 0)
	now := utc(2025, 1, 1, 0, 0, 0)

	first := Project(due, now)
	if first.RemainingSeconds != 86400 || first.Tier != TierOrange {
		t.Fatalf("unexpected frame %+v", first)
	}

	later := Project(due, now.Add(90*time.Second))
	if later.RemainingSeconds != 86400-90 || later.Tier != TierRed {
		t.Fatalf("unexpected frame %+v", later)
	}
	if later.Label != "23h 58m" {
		t.Fatalf("unexpected label %q", later.Label)
	}
}
