// Package moderation is a deterministic, pure text classifier run
// before any message write. No network calls: send latency stays
// bounded and verdicts are reproducible.
package moderation

import (
	"strings"
)

// Verdict is the classification outcome.
type Verdict int

const (
	Allowed Verdict = iota
	Flagged
	Blocked
)

func (v Verdict) String() string {
	switch v {
	case Flagged:
		return "flagged"
	case Blocked:
		return "blocked"
	default:
		return "allowed"
	}
}

// Result carries the verdict and, for non-allowed outcomes, the reason.
type Result struct {
	Verdict Verdict
	Reason  string
}

// Gate holds the configured term lists. Matching is done on a normalized
// form of the text so trivial obfuscation (case, separators) does not
// slip past.
type Gate struct {
	block    []string
	flag     []string
	maxLinks int
}

// New builds a gate from config-supplied term lists. Terms are
// normalized once at construction.
func New(blockTerms, flagTerms []string, maxLinks int) *Gate {
	g := &Gate{maxLinks: maxLinks}
	for _, t := range blockTerms {
		if n := normalize(t); n != "" {
			g.block = append(g.block, n)
		}
	}
	for _, t := range flagTerms {
		if n := normalize(t); n != "" {
			g.flag = append(g.flag, n)
		}
	}
	return g
}

// Classify returns the verdict for one message text. Block beats flag.
func (g *Gate) Classify(text string) Result {
	norm := normalize(text)
	for _, t := range g.block {
		if strings.Contains(norm, t) {
			return Result{Verdict: Blocked, Reason: "prohibited term"}
		}
	}
	for _, t := range g.flag {
		if strings.Contains(norm, t) {
			return Result{Verdict: Flagged, Reason: "flagged term"}
		}
	}
	if g.maxLinks > 0 && countLinks(text) > g.maxLinks {
		return Result{Verdict: Flagged, Reason: "link spam"}
	}
	return Result{Verdict: Allowed}
}

// normalize lowercases and strips separator characters that are commonly
// used to break up terms ("b.a.d" -> "bad").
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch r {
		case '.', '-', '_', '*', '+', '~':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func countLinks(s string) int {
	n := 0
	low := strings.ToLower(s)
	for _, marker := range []string{"http://", "https://"} {
		for i := 0; ; {
			j := strings.Index(low[i:], marker)
			if j < 0 {
				break
			}
			n++
			i += j + len(marker)
		}
	}
	return n
}
