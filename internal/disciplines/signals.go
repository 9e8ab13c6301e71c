package disciplines

import "regexp"

// signalPatterns are the per-class keyword patterns used to require an
// explicit text signal before auto-seeding a gold label. Conservative on
// purpose: a high-confidence prediction without a matching signal is not
// seeded.
var signalPatterns = map[string][]*regexp.Regexp{
	"Environmental Sciences": compilePatterns(
		`\bsoil\b`,
		`\bhydrolog(y|ical)\b`,
		`\bbiogeochem`,
		`\bwater\s+(quality|chemistry|security)\b`,
		`\benvironmental\s+microbiology\b`,
		`\bclimate\b`,
	),
	"Fisheries and Aquatic": compilePatterns(
		`\bfisher(y|ies)\b`,
		`\baquatic\b`,
		`\bmarine\b`,
		`\bstream\b`,
		`\btrout\b`,
		`\bbycatch\b`,
	),
	"Wildlife": compilePatterns(
		`\bwildlife\b`,
		`\bavian\b`,
		`\bbat\b`,
		`\bduck\b`,
		`\bmallard\b`,
		`\bturtle\b`,
		`\bherpetolog`,
		`\bmovement\s+ecology\b`,
	),
	"Forestry and Habitat": compilePatterns(
		`\bforestry\b`,
		`\bforest\b`,
		`\bsilviculture\b`,
		`\bhabitat\b`,
		`\brestoration\b`,
	),
	"Entomology": compilePatterns(
		`\bentomolog`,
		`\binsect(s)?\b`,
		`\barthropod(s)?\b`,
		`\bant(s)?\b`,
		`\bpollinator(s)?\b`,
	),
	"Agriculture": compilePatterns(
		`\bagricultur`,
		`\blivestock\b`,
		`\bcattle\b`,
		`\branch(ing)?\b`,
		`\bpasture\b`,
		`\bgrazing\b`,
	),
	"Human Dimensions": compilePatterns(
		`\bhuman\s+dimensions\b`,
		`\bstakeholder\b`,
		`\bsocial\s+science\b`,
		`\bsurvey\b`,
		`\binterview\b`,
		`\bscience\s+communication\b`,
		`\benvironmental\s+education\b`,
	),
}

func compilePatterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		out = append(out, regexp.MustCompile(`(?i)`+expr))
	}
	return out
}

// HasStrongSignal reports whether text carries an explicit keyword signal
// for the given discipline. Classes without patterns (Other) never match.
func HasStrongSignal(text, discipline string) bool {
	for _, pattern := range signalPatterns[discipline] {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}
