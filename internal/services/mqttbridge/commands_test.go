package mqttbridge

import "testing"

func TestParseSpm_BareNumber(t *testing.T) {
	v, ok := parseSpm([]byte("180"))
	if !ok || v != 180 {
		t.Fatalf("expected 180, got %d ok=%v", v, ok)
	}
}

func TestParseSpm_JSONObject(t *testing.T) {
	v, ok := parseSpm([]byte(`{"value": 90}`))
	if !ok || v != 90 {
		t.Fatalf("expected 90, got %d ok=%v", v, ok)
	}
}

func TestParseSpm_Invalid(t *testing.T) {
	if _, ok := parseSpm([]byte("nope")); ok {
		t.Fatal("expected invalid payload to fail")
	}
}

func TestParseBlackout_Tokens(t *testing.T) {
	cases := map[string]bool{"ON": true, "OFF": false, "true": true, "false": false, "1": true, "0": false}
	for in, want := range cases {
		got, ok := parseBlackout([]byte(in))
		if !ok || got != want {
			t.Errorf("parseBlackout(%q) = %v,%v want %v", in, got, ok, want)
		}
	}
}

func TestParseBlackout_JSONWrapped(t *testing.T) {
	got, ok := parseBlackout([]byte(`{"state":"ON"}`))
	if !ok || !got {
		t.Fatalf("expected true, got %v ok=%v", got, ok)
	}
}

func TestParseLightCommand_FullPayload(t *testing.T) {
	payload := []byte(`{"state":"ON","brightness":128,"color":{"r":10,"g":20,"b":30},"color_temp":300}`)
	cmd, err := parseLightCommand(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cmd.HasState || !cmd.On {
		t.Fatal("expected state ON")
	}
	if !cmd.HasBrightness || cmd.Brightness != 128 {
		t.Fatalf("expected brightness 128, got %d", cmd.Brightness)
	}
	if !cmd.HasColor || cmd.R != 10 || cmd.G != 20 || cmd.B != 30 {
		t.Fatalf("unexpected color: %+v", cmd)
	}
	if !cmd.HasColorTemp || cmd.Mireds != 300 {
		t.Fatalf("expected mireds 300, got %d", cmd.Mireds)
	}
}

func TestParseLightCommand_Off(t *testing.T) {
	cmd, err := parseLightCommand([]byte(`{"state":"OFF"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cmd.HasState || cmd.On {
		t.Fatal("expected state OFF parsed as On=false")
	}
}
