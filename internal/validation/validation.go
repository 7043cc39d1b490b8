package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"wallet-points-api/internal/models"
)

var (
	walletRegex    = regexp.MustCompile(`^0x[0-9a-fA-F]{3,64}$`)
	claimCodeRegex = regexp.MustCompile(`^[A-Za-z0-9]{4,32}$`)
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ValidateWalletAddress checks that the value looks like a 0x-prefixed hex
// wallet address. Wallet address is the only user identity in the ledger.
func ValidateWalletAddress(addr, fieldName string) error {
	if addr == "" {
		return &ValidationError{
			Field:   fieldName,
			Message: "is required",
		}
	}

	addr = SanitizeString(addr)

	if !walletRegex.MatchString(addr) {
		return &ValidationError{
			Field:   fieldName,
			Message: "must be a 0x-prefixed hex wallet address",
		}
	}

	return nil
}

// ValidateActionKind checks that the action is one of the fixed enumeration.
func ValidateActionKind(action models.ActionKind) error {
	switch action {
	case models.ActionSendEmail,
		models.ActionFirstTimeRecipient,
		models.ActionDelegatePrivilege,
		models.ActionReceiveDelegation,
		models.ActionSendPrivilegedEmail,
		models.ActionReferral,
		models.ActionClaimPoints:
		return nil
	}
	return &ValidationError{
		Field:   "action",
		Message: fmt.Sprintf("unknown action kind: %s", action),
	}
}

// ValidateClaimCode checks the shape of a claim redemption code.
func ValidateClaimCode(code string) error {
	if code == "" {
		return &ValidationError{
			Field:   "claim_code",
			Message: "is required",
		}
	}

	code = SanitizeString(code)

	if !claimCodeRegex.MatchString(code) {
		return &ValidationError{
			Field:   "claim_code",
			Message: "must be a short alphanumeric code",
		}
	}

	return nil
}

// ValidateReferralCode checks that a referral code embeds an owner wallet
// before the first underscore and returns that wallet address. The owner
// segment must itself be a valid wallet so points credited through a code
// always land on an address the read path accepts.
func ValidateReferralCode(code string) (string, error) {
	if code == "" {
		return "", &ValidationError{
			Field:   "referral_code",
			Message: "is required",
		}
	}

	code = SanitizeString(code)

	idx := strings.Index(code, "_")
	if idx <= 0 {
		return "", &ValidationError{
			Field:   "referral_code",
			Message: "must contain the owner wallet before an underscore",
		}
	}

	owner := code[:idx]
	if !walletRegex.MatchString(owner) {
		return "", &ValidationError{
			Field:   "referral_code",
			Message: "owner segment must be a 0x-prefixed hex wallet address",
		}
	}

	return owner, nil
}

// ValidateClaimGrant checks the parameters of a new claimable-points grant.
func ValidateClaimGrant(points, expirationHours int) error {
	if points <= 0 {
		return &ValidationError{
			Field:   "points",
			Message: "must be positive",
		}
	}

	maxPoints := 1_000_000
	if points > maxPoints {
		return &ValidationError{
			Field:   "points",
			Message: "exceeds maximum grant size",
		}
	}

	if expirationHours < 0 {
		return &ValidationError{
			Field:   "expiration_hours",
			Message: "must be non-negative",
		}
	}

	if expirationHours > 24*365 {
		return &ValidationError{
			Field:   "expiration_hours",
			Message: "cannot exceed one year",
		}
	}

	return nil
}

func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}
