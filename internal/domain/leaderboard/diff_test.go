package leaderboard

import "testing"

func top5(ids ...string) []Entry {
	out := make([]Entry, 0, len(ids))
	for i, id := range ids {
		out = append(out, Entry{AccountID: id, Position: i + 1, Score: int64(40000 + i*100)})
	}
	return out
}

func TestDiff_SamePositionIsUnchangedRegardlessOfScore(t *testing.T) {
	t.Parallel()

	current := top5("a", "b", "bob", "d", "e")
	for _, priorScore := range []int64{0, 40199, 40200, 40201, 99999} {
		got := Diff(Watch{AccountID: "bob", Position: 3, Score: priorScore}, current, 5)
		if got.Outcome != OutcomeUnchanged {
			t.Fatalf("prior score %d: outcome got=%s want=%s", priorScore, got.Outcome, OutcomeUnchanged)
		}
		if got.NewPosition != 3 || got.NewScore != 40200 {
			t.Fatalf("prior score %d: unexpected result %+v", priorScore, got)
		}
	}
}

func TestDiff_PositionChanged(t *testing.T) {
	t.Parallel()

	got := Diff(Watch{AccountID: "bob", Position: 3}, top5("a", "bob", "c", "d", "e"), 5)
	if got.Outcome != OutcomePositionChanged || got.NewPosition != 2 {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestDiff_AbsentIsDroppedOut(t *testing.T) {
	t.Parallel()

	cases := map[string][]Entry{
		"other accounts": top5("a", "b", "c", "d", "e"),
		"empty board":    nil,
	}
	for name, current := range cases {
		got := Diff(Watch{AccountID: "bob", Position: 3}, current, 5)
		if got.Outcome != OutcomeDroppedOut {
			t.Fatalf("%s: outcome got=%s want=%s", name, got.Outcome, OutcomeDroppedOut)
		}
	}
}

func TestDiff_RankBeyondWindowIsDroppedOut(t *testing.T) {
	t.Parallel()

	current := top5("a", "b", "c", "d", "e", "bob")
	got := Diff(Watch{AccountID: "bob", Position: 3}, current, 5)
	if got.Outcome != OutcomeDroppedOut {
		t.Fatalf("outcome got=%s want=%s", got.Outcome, OutcomeDroppedOut)
	}

	got = Diff(Watch{AccountID: "bob", Position: 3}, current, 0)
	if got.Outcome != OutcomePositionChanged || got.NewPosition != 6 {
		t.Fatalf("unbounded window: unexpected result %+v", got)
	}
}

func TestDiff_TiedRanksAreTakenAsGiven(t *testing.T) {
	t.Parallel()

	current := []Entry{
		{AccountID: "a", Position: 1, Score: 40000},
		{AccountID: "bob", Position: 1, Score: 40000},
		{AccountID: "c", Position: 3, Score: 40100},
	}
	got := Diff(Watch{AccountID: "bob", Position: 2}, current, 5)
	if got.Outcome != OutcomePositionChanged || got.NewPosition != 1 {
		t.Fatalf("unexpected result %+v", got)
	}
}
