package normalize

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/lotwise/lotwise/internal/domain"
)

// hintRule pairs a compiled pattern with the weight it contributes when it
// matches. Patterns are written lowercase and accent-free and run against
// the folded title, because Go's \b is an ASCII word boundary and would
// never fire next to an accented letter. Rules are scanned in order and a
// rule whose match overlaps an earlier match is skipped, so specific
// phrases must come before the generic words they contain ("comme neuf"
// before "neuf", "ecran casse" before "casse").
type hintRule struct {
	re     *regexp.Regexp
	weight float64
	grade  domain.ConditionGrade
}

var brokenRules = []hintRule{
	{re: regexp.MustCompile(`\bhors service\b`), weight: 1.0},
	{re: regexp.MustCompile(`\bhs\b`), weight: 1.0},
	{re: regexp.MustCompile(`\bpour pieces\b`), weight: 1.0},
	{re: regexp.MustCompile(`\bfor parts\b`), weight: 1.0},
	{re: regexp.MustCompile(`\bparts only\b`), weight: 1.0},
	{re: regexp.MustCompile(`\bne fonctionne (pas|plus)\b`), weight: 1.0},
	{re: regexp.MustCompile(`\bne s'allume (pas|plus)\b`), weight: 1.0},
	{re: regexp.MustCompile(`\b(does ?n[o']t|won't|not) work(ing)?\b`), weight: 1.0},
	{re: regexp.MustCompile(`\bwon't turn on\b`), weight: 1.0},
	{re: regexp.MustCompile(`\becran (casse|fissure|brise)\b`), weight: 0.9},
	{re: regexp.MustCompile(`\b(cracked|broken) screen\b`), weight: 0.9},
	{re: regexp.MustCompile(`\bscreen (cracked|broken)\b`), weight: 0.9},
	{re: regexp.MustCompile(`\bcassee?s?\b`), weight: 0.9},
	{re: regexp.MustCompile(`\bbroken\b`), weight: 0.9},
	{re: regexp.MustCompile(`\bdefectueu(x|se)s?\b`), weight: 0.9},
	{re: regexp.MustCompile(`\b(defective|faulty)\b`), weight: 0.9},
	{re: regexp.MustCompile(`\ben panne\b`), weight: 0.9},
	{re: regexp.MustCompile(`\ba reparer\b`), weight: 0.8},
	{re: regexp.MustCompile(`\b(for|needs) repair\b`), weight: 0.8},
	{re: regexp.MustCompile(`\bendommagee?s?\b`), weight: 0.7},
	{re: regexp.MustCompile(`\bdamaged\b`), weight: 0.7},
	{re: regexp.MustCompile(`\bfissuree?s?\b`), weight: 0.6},
	{re: regexp.MustCompile(`\bcracked\b`), weight: 0.6},
	{re: regexp.MustCompile(`\brayee?s?\b|\brayures?\b`), weight: 0.5},
	{re: regexp.MustCompile(`\bscratch(ed|es)?\b`), weight: 0.5},
	{re: regexp.MustCompile(`\bnon testee?s?\b`), weight: 0.5},
	{re: regexp.MustCompile(`\b(un|not )tested\b`), weight: 0.5},
}

var conditionRules = []hintRule{
	{re: regexp.MustCompile(`\bcomme neu(f|ve)s?\b`), weight: 0.9, grade: domain.ConditionUsed},
	{re: regexp.MustCompile(`\blike new\b|\bmint\b`), weight: 0.9, grade: domain.ConditionUsed},
	{re: regexp.MustCompile(`\bneuf sous blister\b|\bscellee?s?\b|\bsealed\b`), weight: 1.0, grade: domain.ConditionNew},
	{re: regexp.MustCompile(`\bnew in box\b|\bnib\b|\bbnib\b`), weight: 1.0, grade: domain.ConditionNew},
	{re: regexp.MustCompile(`\bjamais utilisee?s?\b|\bnever used\b`), weight: 0.9, grade: domain.ConditionNew},
	{re: regexp.MustCompile(`\bneu(f|ve)s?\b`), weight: 0.9, grade: domain.ConditionNew},
	{re: regexp.MustCompile(`\bbrand new\b`), weight: 0.9, grade: domain.ConditionNew},
	{re: regexp.MustCompile(`\bnew\b`), weight: 0.7, grade: domain.ConditionNew},
	{re: regexp.MustCompile(`\bd'occasion\b|\boccasion\b`), weight: 0.9, grade: domain.ConditionUsed},
	{re: regexp.MustCompile(`\b(pre.?owned|second.?hand|used)\b`), weight: 0.8, grade: domain.ConditionUsed},
	{re: regexp.MustCompile(`\b(bon|tres bon|parfait) etat\b`), weight: 0.8, grade: domain.ConditionUsed},
	{re: regexp.MustCompile(`\bgood condition\b`), weight: 0.8, grade: domain.ConditionUsed},
	{re: regexp.MustCompile(`\breconditionnee?s?\b|\brefurbished\b`), weight: 0.8, grade: domain.ConditionUsed},
	{re: regexp.MustCompile(`\btraces? d'usure\b|\bsigns of wear\b`), weight: 0.7, grade: domain.ConditionUsed},
}

// accentFold maps the diacritics seen in French listing titles to their
// ASCII base letters. Curly apostrophes fold to the straight one the
// patterns use.
var accentFold = map[rune]string{
	'à': "a", 'â': "a", 'ä': "a", 'á': "a",
	'é': "e", 'è': "e", 'ê': "e", 'ë': "e",
	'î': "i", 'ï': "i", 'í': "i",
	'ô': "o", 'ö': "o", 'ó': "o",
	'ù': "u", 'û': "u", 'ü': "u", 'ú': "u",
	'ç': "c", 'ñ': "n", 'ÿ': "y",
	'œ': "oe", 'æ': "ae",
	'’': "'", '‘': "'",
}

// foldTitle lowercases the title and strips diacritics. offsets maps every
// byte of the folded string back to the byte offset of the source rune, so
// match spans can be translated to original coordinates.
func foldTitle(s string) (string, []int) {
	var b strings.Builder
	offsets := make([]int, 0, len(s))
	for i, r := range s {
		lower := unicode.ToLower(r)
		folded, ok := accentFold[lower]
		if !ok {
			folded = string(lower)
		}
		n := b.Len()
		b.WriteString(folded)
		for ; n < b.Len(); n++ {
			offsets = append(offsets, i)
		}
	}
	return b.String(), offsets
}

type hintMatch struct {
	start, end int
	text       string
	weight     float64
	grade      domain.ConditionGrade
}

// scanRules folds the title, runs every rule against it, and keeps all
// matches that do not overlap a match from an earlier rule. Spans and text
// refer to the original title.
func scanRules(title string, rules []hintRule) []hintMatch {
	folded, offsets := foldTitle(title)

	toOriginal := func(fold int) int {
		if fold >= len(offsets) {
			return len(title)
		}
		return offsets[fold]
	}

	var matches []hintMatch
	for _, rule := range rules {
		for _, loc := range rule.re.FindAllStringIndex(folded, -1) {
			start, end := toOriginal(loc[0]), toOriginal(loc[1])
			if overlapsAny(start, end, matches) {
				continue
			}
			matches = append(matches, hintMatch{
				start:  start,
				end:    end,
				text:   title[start:end],
				weight: rule.weight,
				grade:  rule.grade,
			})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].start < matches[j].start })
	return matches
}

func overlapsAny(start, end int, matches []hintMatch) bool {
	for _, m := range matches {
		if start < m.end && end > m.start {
			return true
		}
	}
	return false
}

// DetectHints scans a raw listing title for deterministic broken and
// condition indicators. French and English phrasings carry the same
// weights. The returned confidences are the max weight per family, and the
// indicator slices keep the matched substrings in title order.
func DetectHints(rawTitle string) domain.DeterministicHints {
	hints := domain.DeterministicHints{}

	for _, m := range scanRules(rawTitle, brokenRules) {
		hints.BrokenIndicators = append(hints.BrokenIndicators, m.text)
		if m.weight > hints.BrokenConfidence {
			hints.BrokenConfidence = m.weight
		}
	}

	for _, m := range scanRules(rawTitle, conditionRules) {
		hints.ConditionIndicators = append(hints.ConditionIndicators, m.text)
		if m.weight > hints.ConditionConfidence {
			hints.ConditionConfidence = m.weight
			hints.DetectedGrade = m.grade
		}
	}

	return hints
}
