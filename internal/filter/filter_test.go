package filter

import "testing"

func set(items ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, s := range items {
		out[s] = struct{}{}
	}
	return out
}

// wideOpen is a config every record passes.
func wideOpen() Config {
	return Config{ScoreMin: MinScore, ScoreMax: MaxScore}
}

func TestPassesBannedTags(t *testing.T) {
	cfg := wideOpen()
	cfg.Banned = set("monochrome")

	if cfg.Passes(set("monochrome", "1girl"), "s", 10) {
		t.Error("banned tag present, expected reject")
	}
	if !cfg.Passes(set("1girl"), "s", 10) {
		t.Error("no banned tag, expected pass")
	}
	// A banned hit rejects regardless of every other field.
	cfg.Required = set("1girl")
	if cfg.Passes(set("monochrome", "1girl"), "s", 10) {
		t.Error("banned tag must dominate other rules")
	}
}

func TestPassesRequiredTags(t *testing.T) {
	cfg := wideOpen()
	cfg.Required = set("1girl", "solo")

	if !cfg.Passes(set("1girl", "solo", "smile"), "s", 0) {
		t.Error("all required present, expected pass")
	}
	if cfg.Passes(set("1girl", "smile"), "s", 0) {
		t.Error("missing required tag, expected reject")
	}

	// Empty required set never rejects.
	cfg.Required = nil
	if !cfg.Passes(set(), "s", 0) {
		t.Error("empty required set rejected a record")
	}
}

func TestPassesAtLeastTags(t *testing.T) {
	cfg := wideOpen()
	cfg.AtLeast = set("red_hair", "blue_hair", "green_hair")
	cfg.AtLeastNum = 2

	if !cfg.Passes(set("red_hair", "blue_hair"), "s", 0) {
		t.Error("two matches with threshold two, expected pass")
	}
	if cfg.Passes(set("red_hair"), "s", 0) {
		t.Error("one match with threshold two, expected reject")
	}
	// Threshold zero always holds.
	cfg.AtLeastNum = 0
	if !cfg.Passes(set(), "s", 0) {
		t.Error("threshold zero rejected a record")
	}
}

func TestPassesRatings(t *testing.T) {
	cfg := wideOpen()
	cfg.Ratings = set("s", "q")

	if !cfg.Passes(set(), "s", 0) {
		t.Error("allowed rating rejected")
	}
	if cfg.Passes(set(), "e", 0) {
		t.Error("disallowed rating passed")
	}
	// Empty rating set is a pass-through.
	cfg.Ratings = nil
	if !cfg.Passes(set(), "e", 0) {
		t.Error("empty rating set rejected a record")
	}
}

func TestPassesScoreRangeInclusive(t *testing.T) {
	cfg := Config{ScoreMin: 5, ScoreMax: 10}

	cases := []struct {
		score int
		want  bool
	}{
		{4, false},
		{5, true},
		{7, true},
		{10, true},
		{11, false},
	}
	for _, tc := range cases {
		if got := cfg.Passes(set(), "", tc.score); got != tc.want {
			t.Errorf("score %d: got %v, want %v", tc.score, got, tc.want)
		}
	}
}

func TestParseSet(t *testing.T) {
	got := ParseSet("a, b,,c")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %d items, want %d", len(got), len(want))
	}
	for _, w := range want {
		if _, ok := got[w]; !ok {
			t.Errorf("missing %q", w)
		}
	}
	if len(ParseSet("")) != 0 {
		t.Error("empty input should yield an empty set")
	}
}

func TestParseScoreRange(t *testing.T) {
	min, max, err := ParseScoreRange("-5,100")
	if err != nil {
		t.Fatal(err)
	}
	if min != -5 || max != 100 {
		t.Errorf("got (%d,%d), want (-5,100)", min, max)
	}

	if _, _, err := ParseScoreRange("7"); err == nil {
		t.Error("expected error for single value")
	}
	if _, _, err := ParseScoreRange("a,b"); err == nil {
		t.Error("expected error for non-numeric bounds")
	}
}
