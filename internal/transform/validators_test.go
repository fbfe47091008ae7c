package transform

import (
	"errors"
	"testing"
	"time"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: ""},
		{in: "User@Example.COM", want: "user@example.com"},
		{in: "  spaced@example.com  ", want: "spaced@example.com"},
		{in: "not-an-email", wantErr: true},
		{in: "missing@tld", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ValidateEmail(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ValidateEmail(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ValidateEmail(%q) returned error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ValidateEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidatePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: ""},
		{in: "5551234567", want: "555-123-4567"},
		{in: "(555) 123-4567", want: "555-123-4567"},
		{in: "1-555-123-4567", want: "555-123-4567"},
		{in: "123456", wantErr: true},
		{in: "25551234567", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ValidatePhone(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ValidatePhone(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ValidatePhone(%q) returned error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ValidatePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateZipCode(t *testing.T) {
	for in, want := range map[string]string{"": "", "33101": "33101", "33101-1234": "33101-1234", " 33101 ": "33101"} {
		got, err := ValidateZipCode(in)
		if err != nil {
			t.Errorf("ValidateZipCode(%q) returned error: %v", in, err)
		}
		if got != want {
			t.Errorf("ValidateZipCode(%q) = %q, want %q", in, got, want)
		}
	}

	for _, in := range []string{"3310", "331011", "33101-12", "ABCDE"} {
		if _, err := ValidateZipCode(in); err == nil {
			t.Errorf("ValidateZipCode(%q) expected error", in)
		}
	}
}

func TestValidateState(t *testing.T) {
	got, err := ValidateState("fl")
	if err != nil || got != "FL" {
		t.Errorf("ValidateState(fl) = %q, %v", got, err)
	}
	if _, err := ValidateState("ZZ"); err == nil {
		t.Error("ValidateState(ZZ) expected error")
	}
	if got, err := ValidateState(""); err != nil || got != "" {
		t.Errorf("empty state must pass, got %q, %v", got, err)
	}
}

func TestValidateDate(t *testing.T) {
	got, err := ValidateDate("2026-08-01T10:30:00")
	if err != nil {
		t.Fatalf("ValidateDate returned error: %v", err)
	}
	want := time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ValidateDate = %v, want %v", got, want)
	}

	if got, err := ValidateDate(""); err != nil || got != nil {
		t.Errorf("empty date must yield nil, got %v, %v", got, err)
	}
	if _, err := ValidateDate("08/01/2026"); err == nil {
		t.Error("expected error for non-ISO date")
	}
}

func TestValidateCurrencyAmount(t *testing.T) {
	got, err := ValidateCurrencyAmount("1,234.567")
	if err != nil {
		t.Fatalf("ValidateCurrencyAmount returned error: %v", err)
	}
	if *got != 1234.57 {
		t.Errorf("expected 1234.57, got %v", *got)
	}

	if got, err := ValidateCurrencyAmount(float64(99.9)); err != nil || *got != 99.9 {
		t.Errorf("float amount failed: %v, %v", got, err)
	}
	if got, err := ValidateCurrencyAmount(nil); err != nil || got != nil {
		t.Errorf("nil amount must yield nil, got %v, %v", got, err)
	}
	if _, err := ValidateCurrencyAmount(-5.0); err == nil {
		t.Error("negative amount expected error")
	}
	if _, err := ValidateCurrencyAmount("not money"); err == nil {
		t.Error("non-numeric amount expected error")
	}
}

func TestValidatePolicyNumber(t *testing.T) {
	got, err := ValidatePolicyNumber("pol-12345")
	if err != nil || got != "POL-12345" {
		t.Errorf("ValidatePolicyNumber = %q, %v", got, err)
	}

	for _, in := range []string{"AB1", "THIS-POLICY-NUMBER-IS-FAR-TOO-LONG", "POL 123!"} {
		if _, err := ValidatePolicyNumber(in); err == nil {
			t.Errorf("ValidatePolicyNumber(%q) expected error", in)
		}
	}
}

func TestValidateStatus(t *testing.T) {
	valid := map[string]bool{"ACTIVE": true, "INACTIVE": true}

	got, err := ValidateStatus(" active ", valid)
	if err != nil || got != "ACTIVE" {
		t.Errorf("ValidateStatus = %q, %v", got, err)
	}

	_, err = ValidateStatus("retired", valid)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Errorf("expected ValidationError, got %T: %v", err, err)
	}
}

func TestCleanText(t *testing.T) {
	for in, want := range map[string]string{
		"":                  "",
		"  hello   world  ": "hello world",
		"one\ttab":          "one tab",
	} {
		if got := CleanText(in); got != want {
			t.Errorf("CleanText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateUUID(t *testing.T) {
	got, err := ValidateUUID("123E4567-E89B-12D3-A456-426614174000")
	if err != nil || got != "123e4567-e89b-12d3-a456-426614174000" {
		t.Errorf("ValidateUUID = %q, %v", got, err)
	}
	if _, err := ValidateUUID("not-a-uuid"); err == nil {
		t.Error("expected error for malformed UUID")
	}
}
