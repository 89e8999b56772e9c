package textnorm

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestDigits(t *testing.T) {
	cases := map[string]string{
		"۰۹۱۲۳۴۵۶۷۸۹": "09123456789",
		"٠٩١٢":        "0912",
		"０９１２":        "0912",
		"abc-12":      "abc-12",
	}
	for in, want := range cases {
		if got := Digits(in); got != want {
			t.Errorf("Digits(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCode(t *testing.T) {
	if got := Code("  off۲۰ "); got != "OFF20" {
		t.Fatalf("Code = %q", got)
	}
}

func TestTruncateKeepsCharactersWhole(t *testing.T) {
	msg := "x" + strings.Repeat("خطا", 300)
	got := Truncate(msg, 500)
	if !utf8.ValidString(got) {
		t.Fatalf("Truncate produced invalid UTF-8")
	}
	if len(got) > 500 || len(got) < 498 {
		t.Fatalf("len = %d", len(got))
	}
	if !strings.HasPrefix(msg, got) {
		t.Fatalf("Truncate must return a prefix")
	}

	if got := Truncate("short", 500); got != "short" {
		t.Fatalf("Truncate(short) = %q", got)
	}
	if got := Truncate("ok\xffok", 10); got != "okok" {
		t.Fatalf("invalid bytes kept: %q", got)
	}
	if got := Truncate("سلام", 0); got != "" {
		t.Fatalf("Truncate(_, 0) = %q", got)
	}
}
