package models

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestUpstreamError_Is(t *testing.T) {
	err := fmt.Errorf("generate: %w", &UpstreamError{StatusCode: 429, Body: "rate limited"})
	if !errors.Is(err, ErrUpstreamGeneration) {
		t.Error("expected errors.Is to match ErrUpstreamGeneration")
	}
	if !strings.Contains(err.Error(), "status 429") || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("message should carry status and body, got %q", err.Error())
	}
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.StatusCode != 429 {
		t.Errorf("errors.As: got %+v", ue)
	}
}

func TestUpstreamError_transport(t *testing.T) {
	inner := errors.New("connection refused")
	err := &UpstreamError{Err: inner}
	if !errors.Is(err, inner) {
		t.Error("expected Unwrap to expose transport error")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("got %q", err.Error())
	}
}

func TestMalformedOutputError(t *testing.T) {
	err := &MalformedOutputError{Raw: "not json", Err: errors.New("invalid character")}
	if !errors.Is(err, ErrMalformedOutput) {
		t.Error("expected errors.Is to match ErrMalformedOutput")
	}
	msg := err.Error()
	if !strings.Contains(msg, "invalid character") || !strings.Contains(msg, "Raw output:\nnot json") {
		t.Errorf("message should carry parse error and raw text, got %q", msg)
	}
}

func TestIsValidAction(t *testing.T) {
	if !IsValidAction(ActionContactBilling) {
		t.Error("contact_billing should be valid")
	}
	if IsValidAction("delete_account") {
		t.Error("delete_account should not be valid")
	}
}

func TestTitles(t *testing.T) {
	docs := []ScoredDocument{
		{Document: Document{ID: "a", Title: "A"}},
		{Document: Document{ID: "b", Title: "B"}},
	}
	got := Titles(docs)
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("Titles = %v", got)
	}
}
