// Package disciplines holds the canonical discipline taxonomy shared by the
// classifier, the gold label store, and review import.
package disciplines

import "strings"

// Canonical is the fixed set of discipline classes, in the alphabetical
// order used for deterministic tie-breaking.
var Canonical = []string{
	"Agriculture",
	"Entomology",
	"Environmental Sciences",
	"Fisheries and Aquatic",
	"Forestry and Habitat",
	"Human Dimensions",
	"Other",
	"Wildlife",
}

// mapping normalizes free-form discipline values from upstream artifacts
// and reviewer input onto the canonical set.
var mapping = map[string]string{
	"Environmental Science":                 "Environmental Sciences",
	"Environmental Sciences":                "Environmental Sciences",
	"Ecology":                               "Environmental Sciences",
	"Fisheries":                             "Fisheries and Aquatic",
	"Fisheries and Aquatic":                 "Fisheries and Aquatic",
	"Fisheries & Aquatic Science":           "Fisheries and Aquatic",
	"Fisheries Management and Conservation": "Fisheries and Aquatic",
	"Marine Science":                        "Fisheries and Aquatic",
	"Wildlife":                              "Wildlife",
	"Wildlife Management and Conservation":  "Wildlife",
	"Wildlife Management":                   "Wildlife",
	"Wildlife & Natural Resources":          "Wildlife",
	"Conservation":                          "Wildlife",
	"Entomology":                            "Entomology",
	"Forestry":                              "Forestry and Habitat",
	"Forestry and Habitat":                  "Forestry and Habitat",
	"Natural Resource Management":           "Forestry and Habitat",
	"Agriculture":                           "Agriculture",
	"Agricultural Science":                  "Agriculture",
	"Animal Science":                        "Agriculture",
	"Agronomy":                              "Agriculture",
	"Range Management":                      "Agriculture",
	"Human Dimensions":                      "Human Dimensions",
	"Other":                                 "Other",
	"Unknown":                               "Other",
	"Non-Graduate":                          "Other",
}

// Normalize maps a raw discipline value to its canonical class.
// Blank or unrecognized values normalize to Other.
func Normalize(value string) string {
	text := strings.TrimSpace(value)
	if text == "" {
		return "Other"
	}
	if canonical, ok := mapping[text]; ok {
		return canonical
	}
	return "Other"
}

// IsCanonical reports whether label is one of the canonical classes.
func IsCanonical(label string) bool {
	for _, c := range Canonical {
		if c == label {
			return true
		}
	}
	return false
}
