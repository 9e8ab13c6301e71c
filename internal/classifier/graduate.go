package classifier

import "strings"

// GraduateDetection is the binary graduate-position decision for a posting.
type GraduateDetection struct {
	IsGraduate   bool
	PositionType string
	Confidence   float64
}

var gradIndicators = map[string][]string{
	"assistantship": {
		"graduate assistantship", "research assistantship", "teaching assistantship",
		"grad assistantship", "ra position", "ta position", "graduate assistant",
		"research assistant", "teaching assistant", "assistantship position",
	},
	"fellowship": {
		"fellowship", "graduate fellowship", "research fellowship", "postgraduate fellowship",
		"phd fellowship", "masters fellowship", "doctoral fellowship", "scholar program",
	},
	"degree_pursuit": {
		"phd position", "phd opportunity", "masters position", "master's position",
		"doctoral position", "graduate degree", "pursuing phd", "pursuing masters",
		"phd student", "masters student", "graduate student", "thesis research",
		"dissertation research", "graduate program", "ms position", "ms opportunity",
	},
	"funding": {
		"stipend", "tuition waiver", "graduate funding", "research funding",
		"thesis support", "dissertation support", "academic year", "semester funding",
	},
}

var exclusionIndicators = map[string][]string{
	"internship": {
		"internship", "intern position", "summer intern", "undergraduate intern",
		"intern opportunity", "temporary intern", "seasonal intern",
	},
	"professional": {
		"full-time position", "permanent position", "career position", "staff position",
		"professional position", "biologist position", "manager position",
		"coordinator position", "specialist position", "analyst position",
		"technician position", "officer position", "director position",
		"supervisor position", "administrator position",
	},
	"temporary": {
		"temporary position", "seasonal position", "contract position", "consultant",
		"part-time position", "hourly position", "field work only", "summer position only",
	},
	"undergraduate": {
		"undergraduate position", "undergrad position", "undergraduate opportunity",
		"high school", "community college", "associate degree",
	},
}

// DetectGraduate scores the posting text against graduate and exclusion
// indicator groups. Graduate signals weigh 2x, exclusions 3x; the decision
// requires a positive net score with at least two graduate points.
// Confidence is the net score normalized onto 0-1.
func DetectGraduate(text string) GraduateDetection {
	text = strings.ToLower(text)

	gradScore := 0
	exclusionScore := 0
	positionType := "unknown"

	for _, category := range []string{"assistantship", "fellowship", "degree_pursuit", "funding"} {
		matches := countMatches(text, gradIndicators[category])
		if matches == 0 {
			continue
		}
		gradScore += matches * 2
		switch category {
		case "assistantship":
			positionType = "Graduate Assistantship"
		case "fellowship":
			if positionType == "unknown" {
				positionType = "Fellowship"
			}
		case "degree_pursuit":
			if positionType == "unknown" {
				positionType = "Graduate Position"
			}
		}
	}

	for _, keywords := range exclusionIndicators {
		exclusionScore += countMatches(text, keywords) * 3
	}

	if containsAny(text, []string{"phd", "doctoral", "doctorate"}) {
		gradScore += 2
		if positionType == "unknown" {
			positionType = "PhD Position"
		}
	}
	if containsAny(text, []string{"masters", "master's", "ms degree", "ms position"}) {
		gradScore += 2
		if positionType == "unknown" {
			positionType = "Masters Position"
		}
	}

	total := gradScore - exclusionScore
	confidence := clamp01(float64(total) / 10.0)

	isGraduate := total > 0 && gradScore >= 2 && exclusionScore <= gradScore
	if !isGraduate && positionType == "unknown" {
		positionType = "Professional/Other"
	}

	return GraduateDetection{
		IsGraduate:   isGraduate,
		PositionType: positionType,
		Confidence:   confidence,
	}
}

func countMatches(text string, keywords []string) int {
	count := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			count++
		}
	}
	return count
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
