package prompt

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/kbassist/internal/models"
)

var docs = []models.ScoredDocument{
	{Document: models.Document{ID: "whois_policy", Title: "WHOIS Update Policy", Text: "Whois must be up-to-date."}, Score: 0.4},
	{Document: models.Document{ID: "billing_faq", Title: "Billing & Payment FAQ", Text: "Payment failures cause interruptions."}, Score: 0.9},
}

func TestBuild(t *testing.T) {
	p := Build(docs, "My domain is suspended.")

	wantContext := "CONTEXT:\nWHOIS Update Policy: Whois must be up-to-date.\n\nBilling & Payment FAQ: Payment failures cause interruptions.\n\nTICKET:\nMy domain is suspended.\n\nOUTPUT FORMAT:"
	if !strings.Contains(p, wantContext) {
		t.Errorf("context/ticket section wrong:\n%s", p)
	}
	if !strings.HasPrefix(p, "SYSTEM:\nYou are a concise Knowledge Assistant") {
		t.Errorf("prompt should start with SYSTEM section:\n%s", p)
	}
	if !strings.Contains(p, "escalate_to_abuse_team, request_user_info, update_whois, reset_password, close_no_action, contact_billing, forward_to_engineering") {
		t.Error("action list missing")
	}
	if !strings.HasSuffix(p, "Now produce the JSON.\n") {
		t.Error("prompt should end with the instruction line")
	}
}

func TestBuild_TicketWithPercent(t *testing.T) {
	p := Build(docs[:1], "charged 100% twice %s")
	if !strings.Contains(p, "TICKET:\ncharged 100% twice %s\n") {
		t.Errorf("ticket not copied verbatim:\n%s", p)
	}
}

func TestFirstContextEntry(t *testing.T) {
	entry, ok := FirstContextEntry(Build(docs, "t"))
	if !ok || entry != "WHOIS Update Policy: Whois must be up-to-date." {
		t.Errorf("got %q, %v", entry, ok)
	}
	if _, ok := FirstContextEntry("no sections here"); ok {
		t.Error("expected ok=false without CONTEXT")
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding space", "  \n```json\n{\"a\":1}\n```\n ", `{"a":1}`},
		{"crlf", "```json\r\n{\"a\":1}\r\n```", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripCodeFence(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseResolution(t *testing.T) {
	raw := "```json\n{\"answer\": \"Update WHOIS.\", \"references\": [\"WHOIS Update Policy\"], \"action_required\": \"update_whois\", \"confidence\": 0.9}\n```"
	res, err := ParseResolution(raw)
	if err != nil {
		t.Fatal(err)
	}
	want := &models.Resolution{Answer: "Update WHOIS.", References: []string{"WHOIS Update Policy"}, ActionRequired: "update_whois"}
	if !reflect.DeepEqual(res, want) {
		t.Errorf("got %+v", res)
	}
}

func TestParseResolution_Malformed(t *testing.T) {
	tests := []struct {
		name, raw, msg string
	}{
		{"not json", "Sure! Here is the answer.", "invalid character"},
		{"missing key", `{"answer": "x", "references": []}`, "missing keys in result: action_required"},
		{"null key", `{"answer": null, "references": [], "action_required": "close_no_action"}`, "missing keys in result: answer"},
		{"wrong type", `{"answer": "x", "references": "WHOIS", "action_required": "update_whois"}`, "references must be a list"},
		{"array", `[1, 2]`, "cannot unmarshal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResolution(tt.raw)
			var mErr *models.MalformedOutputError
			if !errors.As(err, &mErr) {
				t.Fatalf("expected MalformedOutputError, got %v", err)
			}
			if mErr.Raw != tt.raw {
				t.Errorf("Raw = %q", mErr.Raw)
			}
			if !errors.Is(err, models.ErrMalformedOutput) {
				t.Error("should match ErrMalformedOutput")
			}
			if !strings.Contains(err.Error(), tt.msg) || !strings.Contains(err.Error(), tt.raw) {
				t.Errorf("error %q should mention %q and the raw output", err, tt.msg)
			}
		})
	}
}
