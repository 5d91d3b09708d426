package review

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	singleClausePattern = regexp.MustCompile(`^([A-Za-z][A-Za-z .]*?)?\s*(\d+)$`)
	clauseRangePattern  = regexp.MustCompile(`^([A-Za-z][A-Za-z .]*?)?\s*(\d+)\s*-\s*([A-Za-z][A-Za-z .]*?)?\s*(\d+)$`)
)

// ExpandClauseList normalizes a raw clause reference string: it splits on
// commas, expands numeric ranges ("4-6" becomes 4, 5, 6), carries alphabetic
// prefixes onto bare numbers ("Clause 1, 2" becomes Clause 1, Clause 2), and
// repairs transposed prefixes against the dominant prefix in the list
// ("WQR39, WRQ42" becomes WQR39, WQR42). Tokens it cannot interpret pass
// through unchanged so exotic identifier schemes are preserved.
func ExpandClauseList(raw string) []string {
	tokens := splitClauseTokens(raw)
	canonical := dominantPrefix(tokens)

	var out []string
	lastPrefix := ""
	for _, tok := range tokens {
		if m := clauseRangePattern.FindStringSubmatch(tok); m != nil {
			prefix := correctPrefix(m[1], canonical)
			if prefix == "" {
				prefix = lastPrefix
			}
			lo, _ := strconv.Atoi(m[2])
			hi, _ := strconv.Atoi(m[4])
			if lo <= hi && hi-lo < 1000 {
				for n := lo; n <= hi; n++ {
					out = append(out, joinClause(prefix, m[2], n))
				}
				if prefix != "" {
					lastPrefix = prefix
				}
				continue
			}
		}
		if m := singleClausePattern.FindStringSubmatch(tok); m != nil {
			prefix := correctPrefix(m[1], canonical)
			if prefix == "" {
				prefix = lastPrefix
			}
			out = append(out, joinClauseLiteral(prefix, m[2]))
			if prefix != "" {
				lastPrefix = prefix
			}
			continue
		}
		out = append(out, tok)
	}
	return out
}

// ExpandClauseIdentifiers applies ExpandClauseList to each identifier in a
// list the model already split, catching ranges it left unexpanded.
func ExpandClauseIdentifiers(ids []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, id := range ids {
		for _, expanded := range ExpandClauseList(id) {
			key := strings.ToLower(expanded)
			if !seen[key] {
				seen[key] = true
				out = append(out, expanded)
			}
		}
	}
	return out
}

func splitClauseTokens(raw string) []string {
	var tokens []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			tokens = append(tokens, part)
		}
	}
	return tokens
}

// dominantPrefix picks the most common alphabetic prefix among well-formed
// single identifiers; ties break lexicographically for determinism.
func dominantPrefix(tokens []string) string {
	counts := map[string]int{}
	for _, tok := range tokens {
		m := singleClausePattern.FindStringSubmatch(tok)
		if m == nil || m[1] == "" {
			continue
		}
		counts[strings.TrimSpace(m[1])]++
	}
	best := ""
	bestCount := 0
	prefixes := make([]string, 0, len(counts))
	for p := range counts {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	for _, p := range prefixes {
		if counts[p] > bestCount {
			best = p
			bestCount = counts[p]
		}
	}
	return best
}

// correctPrefix replaces a prefix whose letters are a scrambling of the
// canonical one, the common OCR transposition failure.
func correctPrefix(prefix, canonical string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || canonical == "" || strings.EqualFold(prefix, canonical) {
		if prefix == "" {
			return ""
		}
		return prefix
	}
	if sortedLetters(prefix) == sortedLetters(canonical) {
		return canonical
	}
	return prefix
}

func sortedLetters(s string) string {
	letters := strings.Split(strings.ToUpper(s), "")
	sort.Strings(letters)
	return strings.Join(letters, "")
}

// joinClause renders an expanded range member, zero-padding to the width of
// the original low bound so "WQR08-10" yields WQR08, WQR09, WQR10.
func joinClause(prefix, loLiteral string, n int) string {
	num := strconv.Itoa(n)
	if len(loLiteral) > 1 && loLiteral[0] == '0' && len(num) < len(loLiteral) {
		num = strings.Repeat("0", len(loLiteral)-len(num)) + num
	}
	return joinClauseLiteral(prefix, num)
}

func joinClauseLiteral(prefix, num string) string {
	if prefix == "" {
		return num
	}
	if strings.ContainsAny(prefix[len(prefix)-1:], "0123456789") ||
		lastRuneIsLetterWord(prefix) {
		return prefix + " " + num
	}
	return prefix + num
}

// lastRuneIsLetterWord reports whether the prefix reads as a word like
// "Clause" or "Item" rather than a code like "WQR", so a space separates it
// from the number.
func lastRuneIsLetterWord(prefix string) bool {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		return false
	}
	upper := strings.ToUpper(trimmed)
	return upper != trimmed
}
