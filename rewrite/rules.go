package rewrite

import (
	"regexp"
	"strings"
)

// A rule pairs a core matcher with a substitution function. Go's RE2 engine
// has no lookahead, so the parts of each pattern that depend on what follows
// a match are explicit predicate checks on the remainder of the input.
type rule struct {
	name string
	re   *regexp.Regexp
	// sub returns the replacement for s[m[0]:m[1]]. m is a submatch index
	// slice as produced by FindAllStringSubmatchIndex.
	sub func(s string, m []int) string
}

const (
	symClass = `[$€£¥₹₽₩¢¤]`
	number   = `[0-9]+(?:\.[0-9]+)?`
	grouped  = `[0-9]{1,3}(?:,[0-9]{3})+`
)

// digitFollows guards the generic rule against eating the head of a grouped
// or decimal number.
var digitFollows = regexp.MustCompile(`^[.,][0-9]`)

// rules in priority order. Order matters: each rule runs on the previous
// rule's output.
var rules = []rule{
	{
		// <symbol><number> thousand|million|billion|trillion
		name: "magnitude-word",
		re:   regexp.MustCompile(`(?i)(` + symClass + `)(` + number + `) ?(thousand|million|billion|trillion)\b`),
		sub: func(s string, m []int) string {
			sym, num := s[m[2]:m[3]], s[m[4]:m[5]]
			tail := s[m[5]:m[1]] // the matched separator + magnitude word, case preserved
			rem := s[m[1]:]
			out := sym + num + sentinel + tail
			if hasTrailingContext(rem) && !followsCurrencyWord(rem) {
				out += " " + Word(sym)
			}
			return out
		},
	},
	{
		// <symbol><number>bn: self-explanatory, mark and move on.
		name: "bn-abbrev",
		re:   regexp.MustCompile(`(?i)(` + symClass + `)(` + number + `)bn\b`),
		sub: func(s string, m []int) string {
			return s[m[2]:m[3]] + s[m[4]:m[5]] + sentinel + s[m[5]:m[1]]
		},
	},
	{
		// <symbol><number>[kmbt]: same treatment as "bn".
		name: "letter-abbrev",
		re:   regexp.MustCompile(`(?i)(` + symClass + `)(` + number + `)[kmbt]\b`),
		sub: func(s string, m []int) string {
			return s[m[2]:m[3]] + s[m[4]:m[5]] + sentinel + s[m[5]:m[1]]
		},
	},
	{
		// <symbol><grouped thousands>[.decimals]: the word is appended after
		// the full grouped integer; a decimal remainder is dropped when the
		// word is appended, untouched otherwise.
		name: "grouped-thousands",
		re:   regexp.MustCompile(`(` + symClass + `)(` + grouped + `)((?:\.[0-9]+)?)`),
		sub: func(s string, m []int) string {
			sym, num, dec := s[m[2]:m[3]], s[m[4]:m[5]], s[m[6]:m[7]]
			rem := s[m[1]:]
			if hasTrailingContext(rem) && !followsCurrencyWord(rem) {
				return sym + num + sentinel + " " + Word(sym)
			}
			return sym + num + sentinel + dec
		},
	},
	{
		// <symbol><number>: the generic fallback.
		name: "bare-amount",
		re:   regexp.MustCompile(`(` + symClass + `)(` + number + `)`),
		sub: func(s string, m []int) string {
			sym, num := s[m[2]:m[3]], s[m[4]:m[5]]
			rem := s[m[1]:]
			switch {
			case strings.HasPrefix(rem, sentinel):
				return s[m[0]:m[1]] // already handled by an earlier rule
			case digitFollows.MatchString(rem):
				return s[m[0]:m[1]] // grouped/decimal territory
			case followsCurrencyWord(rem):
				return s[m[0]:m[1]]
			case !hasTrailingContext(rem):
				return s[m[0]:m[1]] // line-final
			default:
				return sym + num + " " + Word(sym)
			}
		},
	},
}

func (r rule) apply(s string) string {
	matches := r.re.FindAllStringSubmatchIndex(s, -1)
	if matches == nil {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 16*len(matches))
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		b.WriteString(r.sub(s, m))
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

// Rewrite applies all rules in order and strips sentinel markers. It returns
// the resulting text and whether it differs from the input. It never fails:
// text with no recognisable amounts passes through unmodified.
func Rewrite(s string) (string, bool) {
	out := s
	for _, r := range rules {
		out = r.apply(out)
	}
	out = strings.ReplaceAll(out, sentinel, "")
	return out, out != s
}
