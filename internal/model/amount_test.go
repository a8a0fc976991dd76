package model

import "testing"

func TestNormalizeAleoAmount(t *testing.T) {
	cases := []struct {
		raw  uint64
		want string
	}{
		{10_000_000_000_000_000, "0.01"}, // above threshold: wei-denominated
		{1_000_000_000_000_000, "1000000000000000"}, // at threshold: human-denominated
		{5, "5"},
	}
	for _, c := range cases {
		got := NormalizeAleoAmount(c.raw)
		if got != c.want {
			t.Errorf("NormalizeAleoAmount(%d) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestParseAmountBoundaries(t *testing.T) {
	bad := []string{"", "0", "-1", "abc", "1.2.3", "10000000"}
	for _, s := range bad {
		if _, err := ParseAmount(s); err == nil {
			t.Errorf("ParseAmount(%q) expected error, got none", s)
		} else if KindOf(err) != KindValidation {
			t.Errorf("ParseAmount(%q) expected KindValidation, got %v", s, KindOf(err))
		}
	}

	good := []string{"0.01", "1", "0.000000000000000001", "1000"}
	for _, s := range good {
		if _, err := ParseAmount(s); err != nil {
			t.Errorf("ParseAmount(%q) unexpected error: %v", s, err)
		}
	}
}

func TestParseRecipientBoundaries(t *testing.T) {
	bad := []string{"", "0x123", "ABCDEF0123456789abcdef0123456789ABCDEF01", "0xZZZZEF0123456789abcdef0123456789ABCDEF01"}
	for _, s := range bad {
		if _, err := ParseRecipient(s); err == nil {
			t.Errorf("ParseRecipient(%q) expected error, got none", s)
		}
	}
	if _, err := ParseRecipient("0xABCDEF0123456789abcdef0123456789ABCDEF01"); err != nil {
		t.Errorf("ParseRecipient valid address unexpectedly failed: %v", err)
	}
}
