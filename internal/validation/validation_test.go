package validation

import (
	"testing"

	"wallet-points-api/internal/models"
)

func TestValidateWalletAddress(t *testing.T) {
	valid := []string{"0xABC", "0xDEF", "0xABC1", "0xdeadbeef", "0xA11CE001", "0x0123456789abcdefABCDEF"}
	for _, addr := range valid {
		if err := ValidateWalletAddress(addr, "wallet_address"); err != nil {
			t.Errorf("Expected %s to be valid: %v", addr, err)
		}
	}

	invalid := []string{"", "0x", "0xAB", "ABC123", "0xGHIJ", "0xABC1_123", "bob@example.com"}
	for _, addr := range invalid {
		if err := ValidateWalletAddress(addr, "wallet_address"); err == nil {
			t.Errorf("Expected %q to be rejected", addr)
		}
	}
}

func TestValidateActionKind(t *testing.T) {
	kinds := []models.ActionKind{
		models.ActionSendEmail,
		models.ActionFirstTimeRecipient,
		models.ActionDelegatePrivilege,
		models.ActionReceiveDelegation,
		models.ActionSendPrivilegedEmail,
		models.ActionReferral,
		models.ActionClaimPoints,
	}
	for _, kind := range kinds {
		if err := ValidateActionKind(kind); err != nil {
			t.Errorf("Expected %s to be valid: %v", kind, err)
		}
	}

	if err := ValidateActionKind(models.ActionKind("bogus")); err == nil {
		t.Error("Expected unknown action kind to be rejected")
	}
}

func TestValidateReferralCode(t *testing.T) {
	owner, err := ValidateReferralCode("0xABC1_12345")
	if err != nil {
		t.Fatalf("Expected valid code: %v", err)
	}
	if owner != "0xABC1" {
		t.Errorf("Expected owner 0xABC1, got %s", owner)
	}

	for _, code := range []string{"", "nocode", "_12345", "abc_123", "bob_999"} {
		if _, err := ValidateReferralCode(code); err == nil {
			t.Errorf("Expected %q to be rejected", code)
		}
	}
}

func TestValidateClaimCode(t *testing.T) {
	if err := ValidateClaimCode("a3f2c1b0"); err != nil {
		t.Errorf("Expected hex code to be valid: %v", err)
	}
	for _, code := range []string{"", "ab", "has space", "semi;colon"} {
		if err := ValidateClaimCode(code); err == nil {
			t.Errorf("Expected %q to be rejected", code)
		}
	}
}

func TestValidateClaimGrant(t *testing.T) {
	if err := ValidateClaimGrant(100, 72); err != nil {
		t.Errorf("Expected valid grant: %v", err)
	}
	if err := ValidateClaimGrant(100, 0); err != nil {
		t.Errorf("Expected zero hours (use default) to be valid: %v", err)
	}

	cases := []struct {
		points, hours int
	}{
		{0, 72},
		{-5, 72},
		{2_000_000, 72},
		{100, -1},
		{100, 24*365 + 1},
	}
	for _, c := range cases {
		if err := ValidateClaimGrant(c.points, c.hours); err == nil {
			t.Errorf("Expected grant (%d, %d) to be rejected", c.points, c.hours)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  0xABC1\x00  "); got != "0xABC1" {
		t.Errorf("Expected control chars and whitespace stripped, got %q", got)
	}
}
