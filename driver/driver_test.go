package driver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCatalogPolicy(t *testing.T) {
	cases := []struct {
		tool           Tool
		readOnly       bool
		repeatTolerant bool
	}{
		{ToolNavigate, false, false},
		{ToolClick, false, false},
		{ToolTypeText, false, false},
		{ToolScroll, false, true},
		{ToolReadPage, true, false},
		{ToolReadText, true, false},
		{ToolExtract, true, false},
		{ToolFindElement, true, false},
		{ToolScreenshot, true, false},
		{ToolSwitchTab, false, false},
		{ToolGoBack, false, false},
	}

	for _, tc := range cases {
		if !Known(tc.tool) {
			t.Errorf("%s should be a known tool", tc.tool)
		}
		if got := IsReadOnly(tc.tool); got != tc.readOnly {
			t.Errorf("IsReadOnly(%s) = %v, want %v", tc.tool, got, tc.readOnly)
		}
		if got := IsRepeatTolerant(tc.tool); got != tc.repeatTolerant {
			t.Errorf("IsRepeatTolerant(%s) = %v, want %v", tc.tool, got, tc.repeatTolerant)
		}
	}

	if Known(Tool("teleport")) {
		t.Error("unknown tool should not be in the catalog")
	}
}

func TestDescriptionListsAllTools(t *testing.T) {
	desc := Description()
	for _, name := range Tools() {
		if !containsTool(desc, string(name)) {
			t.Errorf("description missing tool %s", name)
		}
	}
}

func containsTool(desc, name string) bool {
	return len(desc) > 0 && (len(name) == 0 || indexOf(desc, "Tool: "+name) >= 0)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func TestToolCallFingerprint(t *testing.T) {
	a := ToolCall{Tool: ToolNavigate, Args: map[string]any{"url": "https://example.com"}}
	b := ToolCall{Tool: ToolNavigate, Args: map[string]any{"url": "https://example.com"}}
	c := ToolCall{Tool: ToolNavigate, Args: map[string]any{"url": "https://other.com"}}

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical calls should share a fingerprint")
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("different targets should not share a fingerprint")
	}

	bare := ToolCall{Tool: ToolReadPage}
	if bare.Fingerprint() != "read_page:" {
		t.Errorf("unexpected fingerprint for argless call: %q", bare.Fingerprint())
	}
}

func TestBlockedCodes(t *testing.T) {
	blocked := []string{
		CodeSiteBlocked, CodeHTTPRequestBlocked, CodeConfirmationRequired,
		CodeInvalidTarget, CodeElementNotFound, CodeInvalidAction,
		CodeDuplicateCall, CodeActionLoopGuard,
	}
	for _, code := range blocked {
		if !IsBlockedCode(code) {
			t.Errorf("%s should be a blocked code", code)
		}
		if !Fail(code, "denied").Blocked() {
			t.Errorf("failure with %s should report Blocked", code)
		}
	}

	if IsBlockedCode(CodeRateLimited) {
		t.Error("RATE_LIMITED is transient, not blocked")
	}
	if Ok().Blocked() {
		t.Error("success result should never report Blocked")
	}
}

func TestResultEvidence(t *testing.T) {
	r := NavOk("https://example.com", "Example Domain")
	ev := r.Evidence()
	if indexOf(ev, "https://example.com") < 0 || indexOf(ev, "Example Domain") < 0 {
		t.Errorf("evidence missing navigation fields: %q", ev)
	}

	fail := Fail(CodeElementNotFound, "no such element")
	if indexOf(fail.Evidence(), CodeElementNotFound) < 0 {
		t.Errorf("failure evidence should carry the code: %q", fail.Evidence())
	}
}

func TestHTTPDriverExecute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/execute" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var call ToolCall
		if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
			t.Fatalf("decode call: %v", err)
		}
		if call.Tool != ToolNavigate {
			t.Errorf("expected navigate, got %s", call.Tool)
		}
		json.NewEncoder(w).Encode(NavOk("https://example.com", "Example Domain"))
	}))
	defer server.Close()

	d := NewHTTPDriver(server.URL)
	result := d.Execute(context.Background(), ToolCall{
		Tool: ToolNavigate,
		Args: map[string]any{"url": "https://example.com"},
	})

	if !result.Success {
		t.Fatalf("expected success, got %s: %s", result.Code, result.Reason)
	}
	if result.Title != "Example Domain" {
		t.Errorf("expected title from driver, got %q", result.Title)
	}
}

func TestHTTPDriverRejectsUnknownTool(t *testing.T) {
	d := NewHTTPDriver("http://unused.invalid")
	result := d.Execute(context.Background(), ToolCall{Tool: Tool("teleport")})
	if result.Success {
		t.Fatal("expected failure for unknown tool")
	}
	if result.Code != CodeInvalidAction {
		t.Errorf("expected %s, got %s", CodeInvalidAction, result.Code)
	}
}

func TestHTTPDriverServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	d := NewHTTPDriver(server.URL)
	result := d.Execute(context.Background(), ToolCall{Tool: ToolReadPage})
	if result.Success {
		t.Fatal("expected failure on 500")
	}
	if !result.Retryable {
		t.Error("server errors should be retryable")
	}
}

func TestHTTPDriverIntervention(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/intervention" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"needed": true, "reason": "captcha challenge"})
	}))
	defer server.Close()

	d := NewHTTPDriver(server.URL)
	reason, needed := d.CheckIntervention(context.Background())
	if !needed {
		t.Fatal("expected intervention to be needed")
	}
	if reason != "captcha challenge" {
		t.Errorf("unexpected reason: %q", reason)
	}
}
