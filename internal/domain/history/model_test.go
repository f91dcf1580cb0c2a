package history

import (
	"testing"
	"time"
)

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	for _, s := range []Status{StatusSent, StatusNoNewTimes, StatusTechnicalError} {
		if !s.Terminal() {
			t.Fatalf("%s must be terminal", s)
		}
	}
	if StatusProcessing.Terminal() {
		t.Fatalf("processing must not be terminal")
	}
}

func TestDateOfUsesUTC(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+9", 9*60*60)
	at := time.Date(2026, 10, 18, 3, 0, 0, 0, loc)
	if got := DateOf(at); got != "2026-10-17" {
		t.Fatalf("DateOf got=%s want=2026-10-17", got)
	}
}
