package disciplines

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Wildlife", "Wildlife"},
		{"Wildlife Management and Conservation", "Wildlife"},
		{"Fisheries", "Fisheries and Aquatic"},
		{"Marine Science", "Fisheries and Aquatic"},
		{"Ecology", "Environmental Sciences"},
		{"Forestry", "Forestry and Habitat"},
		{"Animal Science", "Agriculture"},
		{"Human Dimensions", "Human Dimensions"},
		{"Unknown", "Other"},
		{"Non-Graduate", "Other"},
		{"", "Other"},
		{"   ", "Other"},
		{"Quantum Computing", "Other"},
		{"  Wildlife  ", "Wildlife"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeAlwaysCanonical(t *testing.T) {
	inputs := []string{"Wildlife", "Fisheries", "Ecology", "whatever", "", "Agronomy"}
	for _, in := range inputs {
		if got := Normalize(in); !IsCanonical(got) {
			t.Errorf("Normalize(%q) = %q is not canonical", in, got)
		}
	}
}

func TestHasStrongSignal(t *testing.T) {
	cases := []struct {
		text       string
		discipline string
		want       bool
	}{
		{"survey of trout populations in mountain streams", "Fisheries and Aquatic", true},
		{"bat movement ecology using telemetry", "Wildlife", true},
		{"pollinator community responses to land use", "Entomology", true},
		{"general research opportunity", "Wildlife", false},
		{"anything at all", "Other", false},
	}
	for _, tc := range cases {
		if got := HasStrongSignal(tc.text, tc.discipline); got != tc.want {
			t.Errorf("HasStrongSignal(%q, %q) = %v, want %v", tc.text, tc.discipline, got, tc.want)
		}
	}
}
