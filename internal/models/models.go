package models

import "time"

// ActionKind identifies a point-earning action.
type ActionKind string

const (
	ActionSendEmail           ActionKind = "send_email"
	ActionFirstTimeRecipient  ActionKind = "first_time_recipient"
	ActionDelegatePrivilege   ActionKind = "delegate_privilege"
	ActionReceiveDelegation   ActionKind = "receive_delegation"
	ActionSendPrivilegedEmail ActionKind = "send_privileged_email"
	ActionReferral            ActionKind = "referral"
	ActionClaimPoints         ActionKind = "claim_points"
)

// ActionMetadata is the optional free-form bag attached to a PointsAction.
type ActionMetadata struct {
	Recipient    string `json:"recipient,omitempty"`
	EmailID      string `json:"email_id,omitempty"`
	DelegationID string `json:"delegation_id,omitempty"`
	ReferralCode string `json:"referral_code,omitempty"`
	ClaimCode    string `json:"claim_code,omitempty"`
	// Points overrides the fixed point table for variable-value actions
	// (referral, claim_points). Zero means "use the default".
	Points int `json:"points,omitempty"`
}

// PointsAction is one immutable entry in a wallet's ledger.
type PointsAction struct {
	ID            string          `json:"id"`
	WalletAddress string          `json:"wallet_address"`
	Action        ActionKind      `json:"action"`
	Points        int             `json:"points"`
	Timestamp     time.Time       `json:"timestamp"` // RFC3339
	Metadata      *ActionMetadata `json:"metadata,omitempty"`
}

// UserPoints is the per-wallet aggregate: the full action log plus its
// derived running total. TotalPoints always equals the sum of Actions.
type UserPoints struct {
	WalletAddress string         `json:"wallet_address"`
	TotalPoints   int            `json:"total_points"`
	Actions       []PointsAction `json:"actions"`
	LastUpdated   time.Time      `json:"last_updated"`
}

// ReferralLink is a shareable referral record owned by a wallet.
// The referral code embeds the owning wallet address before the first
// underscore so conversions can be attributed without a lookup.
type ReferralLink struct {
	WalletAddress string    `json:"wallet_address"`
	ReferralCode  string    `json:"referral_code"`
	URL           string    `json:"url"`
	Clicks        int       `json:"clicks"`
	Conversions   int       `json:"conversions"`
	PointsEarned  int       `json:"points_earned"`
	CreatedAt     time.Time `json:"created_at"`
}

// ClaimablePoints is a point grant awaiting redemption.
// Claimable iff ClaimedAt is unset and now is before ExpirationDate.
type ClaimablePoints struct {
	ID             string     `json:"id"`
	WalletAddress  string     `json:"wallet_address"`
	Points         int        `json:"points"`
	ExpirationDate time.Time  `json:"expiration_date"`
	ClaimedAt      *time.Time `json:"claimed_at,omitempty"`
	ClaimCode      string     `json:"claim_code"`
}

// LeaderboardEntry is one row of the points leaderboard.
type LeaderboardEntry struct {
	WalletAddress string `json:"wallet_address"`
	TotalPoints   int    `json:"total_points"`
}

// ClaimReason explains the outcome of a claim attempt.
type ClaimReason string

const (
	ClaimOK             ClaimReason = "ok"
	ClaimNotFound       ClaimReason = "not_found"
	ClaimAlreadyClaimed ClaimReason = "already_claimed"
	ClaimExpired        ClaimReason = "expired"
)

// ClaimResult is the outcome of a ClaimPoints call. A failed claim is a
// normal outcome, not an error: callers branch on Claimed / Reason.
type ClaimResult struct {
	Claimed bool        `json:"claimed"`
	Reason  ClaimReason `json:"reason"`
	Points  int         `json:"points,omitempty"`
}

// AwardPointsRequest is the request body for awarding points.
type AwardPointsRequest struct {
	Action   ActionKind      `json:"action"`
	Metadata *ActionMetadata `json:"metadata,omitempty"`
}

// ReferralConversionRequest attributes a new signup to a referral code.
type ReferralConversionRequest struct {
	ReferralCode  string `json:"referral_code"`
	WalletAddress string `json:"wallet_address"`
}

// CreateClaimRequest is the request body for granting claimable points.
type CreateClaimRequest struct {
	Points          int `json:"points"`
	ExpirationHours int `json:"expiration_hours,omitempty"`
}

// RedeemClaimRequest is the request body for redeeming a claim code.
type RedeemClaimRequest struct {
	ClaimCode string `json:"claim_code"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
