package usecase

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/riskibarqy/tm-alerts/internal/domain/drivernotification"
	"github.com/riskibarqy/tm-alerts/internal/domain/leaderboard"
)

func TestFormatMapperBlock_TruncatesAtCap(t *testing.T) {
	t.Parallel()

	records := make([]leaderboard.Entry, 0, 37)
	for i := 1; i <= 37; i++ {
		records = append(records, leaderboard.Entry{AccountID: fmt.Sprintf("acc-%02d", i), DisplayName: fmt.Sprintf("Player%d", i), Position: i, Score: 45000 + int64(i)})
	}

	block := formatMapperBlock("Summer 01", records, 20)
	lines := strings.Split(block, "\n")
	if len(lines) != 22 {
		t.Fatalf("unexpected line count got=%d want=22 (header + 20 + marker)", len(lines))
	}
	if lines[0] != "Summer 01: 37 new records" {
		t.Fatalf("unexpected header got=%q", lines[0])
	}
	if strings.TrimSpace(lines[21]) != "+17 more" {
		t.Fatalf("unexpected marker got=%q", lines[21])
	}
	if strings.Contains(block, "Player21") {
		t.Fatalf("expected entries beyond the cap to be hidden")
	}
}

func TestFormatRaceTime(t *testing.T) {
	t.Parallel()

	cases := map[int64]string{
		45210:  "0:45.210",
		61005:  "1:01.005",
		0:      "0:00.000",
		600000: "10:00.000",
	}
	for in, want := range cases {
		if got := formatRaceTime(in); got != want {
			t.Fatalf("formatRaceTime(%d) got=%q want=%q", in, got, want)
		}
	}
}

func TestFormatDriverLine(t *testing.T) {
	t.Parallel()

	n := drivernotification.DriverNotification{MapUID: "M1", CurrentPosition: 3}
	dropped := formatDriverLine(n, leaderboard.DiffResult{Outcome: leaderboard.OutcomeDroppedOut}, 5)
	if dropped != "M1: dropped out of the top 5 (was #3)" {
		t.Fatalf("unexpected dropped line got=%q", dropped)
	}

	n.MapName = "Winter 05"
	changed := formatDriverLine(n, leaderboard.DiffResult{Outcome: leaderboard.OutcomePositionChanged, NewPosition: 2, NewScore: 44100}, 5)
	if changed != "Winter 05: position changed from #3 to #2 (0:44.100)" {
		t.Fatalf("unexpected changed line got=%q", changed)
	}
}

func TestFailureMessage_NeverLeaksErrorText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: token abc", ErrUnauthorized), msgAuthFailed},
		{fmt.Errorf("%w: 429", ErrRateLimited), msgRateLimited},
		{fmt.Errorf("%w: breaker open", ErrDependencyUnavailable), msgUnavailable},
		{fmt.Errorf("wrap: %w", context.DeadlineExceeded), msgTimedOut},
		{fmt.Errorf("pq: password authentication failed for user secret"), msgInternal},
	}
	for _, tc := range cases {
		if got := failureMessage(tc.err); got != tc.want {
			t.Fatalf("failureMessage(%v) got=%q want=%q", tc.err, got, tc.want)
		}
	}
}
