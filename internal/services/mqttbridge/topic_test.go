package mqttbridge

import "testing"

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"Main Stage!!":  "main_stage",
		"env-1":         "env_1",
		"__leading":     "leading",
		"trailing__":    "trailing",
		"already_clean": "already_clean",
	}
	for in, want := range cases {
		if got := sanitize(in); got != want {
			t.Errorf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDefaultBaseTopicAndNodeID(t *testing.T) {
	if got := DefaultBaseTopic("Main Stage", "Output 1"); got != "chaser/main_stage/output_1" {
		t.Fatalf("unexpected base topic: %q", got)
	}
	if got := DefaultNodeID("Main Stage"); got != "chaser_main_stage" {
		t.Fatalf("unexpected node id: %q", got)
	}
}

func TestLightSetTopicParsing(t *testing.T) {
	base := "chaser/env1/out1"
	topic := topicLightSet(base, "f1")
	id, ok := parseFixtureIDFromLightSetTopic(base, topic)
	if !ok || id != "f1" {
		t.Fatalf("expected to parse fixture id f1, got %q ok=%v", id, ok)
	}
	if _, ok := parseFixtureIDFromLightSetTopic(base, "chaser/env1/out1/control/spm/set"); ok {
		t.Fatal("expected non-matching topic to fail parse")
	}
}

func TestProgramPressTopicParsing(t *testing.T) {
	base := "chaser/env1/out1"
	topic := topicProgramPress(base, "prog-9")
	id, ok := parseProgramIDFromPressTopic(base, topic)
	if !ok || id != "prog-9" {
		t.Fatalf("expected to parse program id prog-9, got %q ok=%v", id, ok)
	}
}
