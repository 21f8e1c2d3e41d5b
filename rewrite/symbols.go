// Package rewrite implements the ordered currency-amount rewrite rules.
//
// A pass over a string applies each rule in priority order; every rule's
// substitutions feed the next rule. More specific patterns (magnitude words,
// thousands grouping) run before the generic bare-amount pattern so the
// generic rule never double-annotates or splits a grouped number.
package rewrite

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// sentinel is a private-use character inserted right after a numeric literal
// to tell later rules the amount is already accounted for. It is stripped
// before a pass returns.
const sentinel = ""

// symbolWords maps a currency glyph to the word appended after amounts.
var symbolWords = map[rune]string{
	'$': "dollars",
	'€': "euros",
	'£': "pounds",
	'¥': "yen",
	'₹': "rupees",
	'₽': "rubles",
	'₩': "won",
}

// symbolSet is the full glyph class the matchers recognise. It is wider than
// symbolWords: glyphs without a table entry fall back to the generic word.
const symbolSet = "$€£¥₹₽₩¢¤"

// genericWord is used for symbols outside the table.
const genericWord = "money"

// ContainsSymbol reports whether s contains at least one recognised
// currency glyph. Used as the cheap pre-filter before queueing a node.
func ContainsSymbol(s string) bool {
	return strings.ContainsAny(s, symbolSet)
}

// Word returns the currency word for a symbol string (as captured by a
// matcher). Unknown symbols map to "money".
func Word(symbol string) string {
	r, _ := utf8.DecodeRuneInString(symbol)
	if w, ok := symbolWords[r]; ok {
		return w
	}
	return genericWord
}

// wordFollows matches a known currency word at the start of a remainder,
// allowing at most one leading space. Words are quoted and sorted
// longest-first so a word that prefixes another never short-circuits the
// alternation.
var wordFollows = regexp.MustCompile(`^ ?(?:` + wordAlternation() + `)\b`)

func wordAlternation() string {
	words := make([]string, 0, len(symbolWords)+1)
	for _, w := range symbolWords {
		words = append(words, w)
	}
	words = append(words, genericWord)
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(quoted, "|")
}

// followsCurrencyWord reports whether the remainder after a match already
// carries a currency word, meaning the amount is spelled out and must not
// be annotated again.
func followsCurrencyWord(rem string) bool {
	return wordFollows.MatchString(rem)
}

// hasTrailingContext reports whether any letter or digit follows the match
// in the rest of the string. Amounts that end a sentence or label (only
// punctuation and whitespace after) are left un-annotated.
func hasTrailingContext(rem string) bool {
	return strings.ContainsFunc(rem, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	})
}
