package classifier

import "testing"

func TestDetectGraduateAssistantship(t *testing.T) {
	det := DetectGraduate("Graduate assistantship in wildlife ecology with stipend and tuition waiver")
	if !det.IsGraduate {
		t.Fatal("expected graduate position")
	}
	if det.PositionType != "Graduate Assistantship" {
		t.Fatalf("expected Graduate Assistantship, got %q", det.PositionType)
	}
	if det.Confidence <= 0 {
		t.Fatalf("expected positive confidence, got %v", det.Confidence)
	}
}

func TestDetectGraduatePhD(t *testing.T) {
	det := DetectGraduate("PhD position in fisheries science")
	if !det.IsGraduate {
		t.Fatal("expected graduate position")
	}
	if det.PositionType != "Graduate Position" {
		t.Fatalf("expected Graduate Position, got %q", det.PositionType)
	}
}

func TestDetectGraduateProfessionalExcluded(t *testing.T) {
	det := DetectGraduate("Permanent position for a wildlife biologist, full-time position with benefits")
	if det.IsGraduate {
		t.Fatal("expected non-graduate position")
	}
	if det.PositionType != "Professional/Other" {
		t.Fatalf("expected Professional/Other, got %q", det.PositionType)
	}
}

func TestDetectGraduateExclusionsOutweigh(t *testing.T) {
	det := DetectGraduate(
		"Graduate student mentioned, but this is a summer intern role: " +
			"internship, intern position, temporary position, seasonal position, part-time position")
	if det.IsGraduate {
		t.Fatal("expected exclusions to outweigh a weak graduate signal")
	}
}

func TestDetectGraduateConfidenceClamped(t *testing.T) {
	det := DetectGraduate(
		"graduate assistantship research assistantship teaching assistantship fellowship " +
			"phd position masters position stipend tuition waiver graduate funding thesis research")
	if det.Confidence > 1 {
		t.Fatalf("confidence must be clamped to 1, got %v", det.Confidence)
	}
	if !det.IsGraduate {
		t.Fatal("expected graduate position")
	}
}

func TestDetectGraduateEmptyText(t *testing.T) {
	det := DetectGraduate("")
	if det.IsGraduate {
		t.Fatal("expected non-graduate for empty text")
	}
	if det.Confidence != 0 {
		t.Fatalf("expected zero confidence, got %v", det.Confidence)
	}
}
