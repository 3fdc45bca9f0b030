package prompt

import (
	"strings"
	"testing"
)

func TestTerminalConfirm(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"yes", "y\n", true},
		{"yes word", "yes\n", true},
		{"uppercase", "Y\n", true},
		{"no", "n\n", false},
		{"empty defaults to no", "\n", false},
		{"garbage defaults to no", "maybe\n", false},
		{"eof defaults to no", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			term := &Terminal{In: strings.NewReader(tt.input), Out: &out}
			if got := term.Confirm("Proceed?"); got != tt.want {
				t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !strings.Contains(out.String(), "[y/N]") {
				t.Errorf("Prompt %q missing the default-no marker", out.String())
			}
		})
	}
}

func TestTerminalDeclinesWithoutTTY(t *testing.T) {
	var out strings.Builder
	term := &Terminal{
		In:         strings.NewReader("y\n"),
		Out:        &out,
		isTerminal: func() bool { return false },
	}
	if term.Confirm("Enable the firewall?") {
		t.Error("Non-TTY input must decline even when the stream says yes")
	}
}

func TestScriptedConfirm(t *testing.T) {
	s := &Scripted{Answers: []bool{true, false}}

	if !s.Confirm("first") {
		t.Error("First answer should be yes")
	}
	if s.Confirm("second") {
		t.Error("Second answer should be no")
	}
	// Exhausted: everything is declined.
	if s.Confirm("third") {
		t.Error("Exhausted script should decline")
	}

	want := []string{"first", "second", "third"}
	if len(s.Asked) != len(want) {
		t.Fatalf("Asked = %v, want %v", s.Asked, want)
	}
	for i, q := range want {
		if s.Asked[i] != q {
			t.Errorf("Asked[%d] = %q, want %q", i, s.Asked[i], q)
		}
	}
}
