package model

import "testing"

func TestParseStatus(t *testing.T) {
	cases := []struct {
		in   string
		want Status
		ok   bool
	}{
		{"complete", StatusComplete, true},
		{"PARTIAL", StatusPartial, true},
		{"Timeout", StatusTimeout, true},
		{"stuck", StatusStuck, true},
		{"done", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseStatus(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseStatus(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestResultTextPrefersAnswer(t *testing.T) {
	r := TerminalResult{Reason: "step ceiling", Summary: "visited two pages", Answer: "21 degrees"}
	if r.ResultText() != "21 degrees" {
		t.Errorf("ResultText = %q", r.ResultText())
	}

	r.Answer = ""
	if r.ResultText() != "visited two pages" {
		t.Errorf("ResultText without answer = %q", r.ResultText())
	}

	r.Summary = ""
	if r.ResultText() != "step ceiling" {
		t.Errorf("ResultText without summary = %q", r.ResultText())
	}
}
