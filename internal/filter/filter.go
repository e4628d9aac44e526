// Package filter decides which metadata records take part in a pipeline run.
package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultRatings covers every rating the dataset uses: safe, questionable,
// explicit.
const DefaultRatings = "s,q,e"

// Score bounds wide enough to act as "no constraint" defaults.
const (
	MinScore = -999999999
	MaxScore = 999999999
)

// Config holds the five predicate constraints. Zero-value fields are
// pass-throughs: an empty set imposes nothing and the full score range
// accepts everything.
type Config struct {
	Required   map[string]struct{} // all must be present
	Banned     map[string]struct{} // none may be present
	AtLeast    map[string]struct{} // at least AtLeastNum must be present
	AtLeastNum int
	Ratings    map[string]struct{} // allowed ratings; empty allows all
	ScoreMin   int
	ScoreMax   int
}

// Passes reports whether a record with the given tag set, rating and score
// survives the filter. Rules are checked in a fixed order and the first
// failing rule decides. Pure and deterministic.
func (c Config) Passes(tags map[string]struct{}, rating string, score int) bool {
	for t := range c.Banned {
		if _, ok := tags[t]; ok {
			return false
		}
	}
	for t := range c.Required {
		if _, ok := tags[t]; !ok {
			return false
		}
	}
	matched := 0
	for t := range c.AtLeast {
		if _, ok := tags[t]; ok {
			matched++
		}
	}
	if matched < c.AtLeastNum {
		return false
	}
	if len(c.Ratings) > 0 {
		if _, ok := c.Ratings[rating]; !ok {
			return false
		}
	}
	if score < c.ScoreMin {
		return false
	}
	if score > c.ScoreMax {
		return false
	}
	return true
}

// ParseSet splits a comma-separated flag value into a set. Empty items are
// dropped, so "" yields an empty (pass-through) set.
func ParseSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = struct{}{}
	}
	return out
}

// ParseScoreRange parses a "min,max" flag value. Both ends are inclusive.
func ParseScoreRange(s string) (min, max int, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("score range %q: want min,max", s)
	}
	min, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("score range %q: %w", s, err)
	}
	max, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("score range %q: %w", s, err)
	}
	return min, max, nil
}
