package utf7

import "testing"

func TestDecode_Passthrough(t *testing.T) {
	got, err := Decode("report.docx")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got != "report.docx" {
		t.Errorf("Expected 'report.docx', got %q", got)
	}
}

func TestDecode_ShiftedSequence(t *testing.T) {
	// "a+AOk-b" is UTF-7 for "aéb" (U+00E9).
	got, err := Decode("a+AOk-b")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got != "aéb" {
		t.Errorf("Expected 'aéb', got %q", got)
	}
}

func TestDecode_EscapedPlus(t *testing.T) {
	got, err := Decode("1+-1=2")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got != "1+1=2" {
		t.Errorf("Expected '1+1=2', got %q", got)
	}
}

func TestDecode_SurrogatePair(t *testing.T) {
	// U+1F600 encodes as the surrogate pair D83D DE00.
	got, err := Decode("+2D3eAA-")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got != "\U0001F600" {
		t.Errorf("Expected emoji, got %q", got)
	}
}

func TestDecode_TrailingBareShift(t *testing.T) {
	if _, err := Decode("doc+"); err == nil {
		t.Error("Expected error for bare trailing shift")
	}
}

func TestDecode_UnterminatedRun(t *testing.T) {
	// A run may be terminated by end of string.
	got, err := Decode("a+AOk")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got != "aé" {
		t.Errorf("Expected 'aé', got %q", got)
	}
}
