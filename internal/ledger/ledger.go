// Package ledger maintains the per-wallet reward-points ledger: an
// append-only log of point-earning actions, its derived running total,
// and the referral and time-limited claim workflows built on top of it.
package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"go.opentelemetry.io/otel/attribute"

	"wallet-points-api/internal/events"
	"wallet-points-api/internal/features"
	"wallet-points-api/internal/models"
	"wallet-points-api/internal/store"
	"wallet-points-api/internal/tracing"
	"wallet-points-api/internal/validation"
)

const (
	// ReferralBonusPoints is the fixed bonus awarded to a referrer on
	// conversion.
	ReferralBonusPoints = 50
	// DefaultClaimExpiryHours is the claim lifetime when the caller does
	// not specify one.
	DefaultClaimExpiryHours = 72
	// DefaultLeaderboardLimit bounds the leaderboard when no limit is given.
	DefaultLeaderboardLimit = 10

	defaultCacheSize      = 1024
	defaultReferralPoints = 10
)

// pointTable maps each fixed-value action to its point award. Variable
// actions (referral, claim_points) take their value from the action
// metadata instead.
var pointTable = map[models.ActionKind]int{
	models.ActionSendEmail:           5,
	models.ActionFirstTimeRecipient:  25,
	models.ActionDelegatePrivilege:   100,
	models.ActionReceiveDelegation:   50,
	models.ActionSendPrivilegedEmail: 15,
}

var (
	// ErrStoreWrite wraps persistence failures on mutation paths. Reads
	// still default to zero state, but a dropped write would lose ledger
	// data, so writes always surface.
	ErrStoreWrite = errors.New("ledger: store write failed")
	// ErrReferralNotFound is returned by conversion processing when strict
	// referral validation is enabled and no matching link exists.
	ErrReferralNotFound = errors.New("ledger: referral link not found")
)

// Clock supplies the current time. Injected so tests can pin it.
type Clock func() time.Time

// IDGenerator supplies unique identifiers for actions and grants.
type IDGenerator func() string

// Options configures a Ledger. Zero values fall back to sane defaults.
type Options struct {
	// BaseURL anchors shareable referral URLs (the origin collaborator).
	BaseURL string
	// ClaimExpiryHours is the default grant lifetime.
	ClaimExpiryHours int
	// CacheSize bounds the in-memory wallet cache.
	CacheSize int
	Clock     Clock
	NewID     IDGenerator
	Features  *features.Manager
	Events    *events.Manager
}

// Ledger awards points, maintains per-wallet totals, and supports the
// referral and claim workflows. It is explicitly constructed with its
// store injected; there is no package-level instance.
//
// A read-through/write-through LRU cache fronts the store; the store is
// authoritative. Per-wallet mutexes serialize every read-modify-write so
// concurrent awards against the same wallet cannot lose updates.
type Ledger struct {
	store            store.Store
	clock            Clock
	newID            IDGenerator
	baseURL          string
	claimExpiryHours int
	features         *features.Manager
	events           *events.Manager
	cache            *lru.Cache
	locks            sync.Map // wallet address -> *sync.Mutex
}

// New creates a Ledger over the given store.
func New(s store.Store, opts Options) (*Ledger, error) {
	if s == nil {
		return nil, fmt.Errorf("ledger: store is required")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.ClaimExpiryHours <= 0 {
		opts.ClaimExpiryHours = DefaultClaimExpiryHours
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}

	cache, err := lru.New(opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to create cache: %w", err)
	}

	return &Ledger{
		store:            s,
		clock:            opts.Clock,
		newID:            opts.NewID,
		baseURL:          opts.BaseURL,
		claimExpiryHours: opts.ClaimExpiryHours,
		features:         opts.Features,
		events:           opts.Events,
		cache:            cache,
	}, nil
}

// walletLock returns the mutex serializing writes for one wallet.
func (l *Ledger) walletLock(wallet string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(wallet, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (l *Ledger) cacheEnabled() bool {
	if l.features == nil {
		return true
	}
	return l.features.IsEnabled(features.FeatureCacheEnabled)
}

// AwardPoints records one point-earning action for the wallet, bumping its
// running total and persisting the full updated record. Unknown wallets
// are created on demand; no error is raised for them.
func (l *Ledger) AwardPoints(ctx context.Context, wallet string, action models.ActionKind, meta *models.ActionMetadata) error {
	if err := validation.ValidateWalletAddress(wallet, "wallet_address"); err != nil {
		return err
	}
	if err := validation.ValidateActionKind(action); err != nil {
		return err
	}

	mu := l.walletLock(wallet)
	mu.Lock()
	defer mu.Unlock()

	return l.awardLocked(ctx, wallet, action, meta)
}

// awardLocked appends the action while the wallet lock is held. ClaimPoints
// awards through this path without re-acquiring the lock.
func (l *Ledger) awardLocked(ctx context.Context, wallet string, action models.ActionKind, meta *models.ActionMetadata) error {
	record := l.loadUserPoints(ctx, wallet)

	pts := pointsFor(action, meta)
	now := l.clock()

	entry := models.PointsAction{
		ID:            l.newID(),
		WalletAddress: wallet,
		Action:        action,
		Points:        pts,
		Timestamp:     now,
		Metadata:      meta,
	}

	record.Actions = append(record.Actions, entry)
	record.TotalPoints += pts
	record.LastUpdated = now

	if err := store.SetJSON(ctx, l.store, store.PointsKey(wallet), record); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}

	if l.cacheEnabled() {
		l.cache.Add(wallet, record)
	}

	if l.events != nil {
		l.events.PublishPointsAwarded(ctx, entry, record.TotalPoints)
	}

	return nil
}

// pointsFor computes the award value for an action. Referral and claim
// actions take a metadata override; everything else comes from the fixed
// table.
func pointsFor(action models.ActionKind, meta *models.ActionMetadata) int {
	switch action {
	case models.ActionReferral:
		if meta != nil && meta.Points > 0 {
			return meta.Points
		}
		return defaultReferralPoints
	case models.ActionClaimPoints:
		if meta != nil && meta.Points > 0 {
			return meta.Points
		}
		return 0
	default:
		return pointTable[action]
	}
}

// GetUserPoints returns the wallet's aggregate record. Absence is modeled
// as zero state, never as an error: an unknown wallet yields a fresh empty
// record that is not persisted until its first award.
func (l *Ledger) GetUserPoints(ctx context.Context, wallet string) (models.UserPoints, error) {
	if err := validation.ValidateWalletAddress(wallet, "wallet_address"); err != nil {
		return models.UserPoints{}, err
	}
	return l.loadUserPoints(ctx, wallet), nil
}

// loadUserPoints reads through the cache. Missing or corrupt store entries
// default to a zero record; reads never fail.
func (l *Ledger) loadUserPoints(ctx context.Context, wallet string) models.UserPoints {
	if l.cacheEnabled() {
		if v, ok := l.cache.Get(wallet); ok {
			if record, ok := v.(models.UserPoints); ok {
				return record
			}
		}
	}

	var record models.UserPoints
	if err := store.GetJSON(ctx, l.store, store.PointsKey(wallet), &record); err != nil {
		return models.UserPoints{WalletAddress: wallet}
	}

	if l.cacheEnabled() {
		l.cache.Add(wallet, record)
	}
	return record
}

// GenerateReferralLink derives a referral code from the wallet address and
// the current time, builds a shareable URL, and appends the link to the
// wallet's referral list.
func (l *Ledger) GenerateReferralLink(ctx context.Context, wallet string) (models.ReferralLink, error) {
	if err := validation.ValidateWalletAddress(wallet, "wallet_address"); err != nil {
		return models.ReferralLink{}, err
	}

	mu := l.walletLock(wallet)
	mu.Lock()
	defer mu.Unlock()

	now := l.clock()
	// Wallet addresses never contain an underscore, so the code always
	// parses back to its owner. Codes are only timestamp-differentiated,
	// not cryptographically unique.
	code := fmt.Sprintf("%s_%d", wallet, now.Unix())

	link := models.ReferralLink{
		WalletAddress: wallet,
		ReferralCode:  code,
		URL:           fmt.Sprintf("%s/signup?ref=%s", l.baseURL, code),
		CreatedAt:     now,
	}

	links := l.loadReferralLinks(ctx, wallet)
	links = append(links, link)

	if err := store.SetJSON(ctx, l.store, store.ReferralsKey(wallet), links); err != nil {
		return models.ReferralLink{}, fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}

	return link, nil
}

func (l *Ledger) loadReferralLinks(ctx context.Context, wallet string) []models.ReferralLink {
	var links []models.ReferralLink
	if err := store.GetJSON(ctx, l.store, store.ReferralsKey(wallet), &links); err != nil {
		return nil
	}
	return links
}

// TrackReferralClick increments the click counter on the link matching the
// code. An unknown code is a no-op, not an error.
func (l *Ledger) TrackReferralClick(ctx context.Context, code string) error {
	owner, err := validation.ValidateReferralCode(code)
	if err != nil {
		return err
	}

	mu := l.walletLock(owner)
	mu.Lock()
	defer mu.Unlock()

	links := l.loadReferralLinks(ctx, owner)
	for i := range links {
		if links[i].ReferralCode == code {
			links[i].Clicks++
			if err := store.SetJSON(ctx, l.store, store.ReferralsKey(owner), links); err != nil {
				return fmt.Errorf("%w: %v", ErrStoreWrite, err)
			}
			return nil
		}
	}

	return nil
}

// ProcessReferralConversion parses the referrer out of the code and awards
// the fixed referral bonus. By default any syntactically valid code
// succeeds, matching the historical leniency; with the referral_validation
// feature enabled the code must match a stored link, which then has its
// conversion counters updated.
func (l *Ledger) ProcessReferralConversion(ctx context.Context, code, newWallet string) error {
	referrer, err := validation.ValidateReferralCode(code)
	if err != nil {
		return err
	}

	strict := l.features != nil && l.features.IsEnabled(features.FeatureReferralValidation)

	mu := l.walletLock(referrer)
	mu.Lock()
	defer mu.Unlock()

	if strict {
		links := l.loadReferralLinks(ctx, referrer)
		found := false
		for i := range links {
			if links[i].ReferralCode == code {
				links[i].Conversions++
				links[i].PointsEarned += ReferralBonusPoints
				found = true
				if err := store.SetJSON(ctx, l.store, store.ReferralsKey(referrer), links); err != nil {
					return fmt.Errorf("%w: %v", ErrStoreWrite, err)
				}
				break
			}
		}
		if !found {
			return ErrReferralNotFound
		}
	}

	meta := &models.ActionMetadata{
		ReferralCode: code,
		Points:       ReferralBonusPoints,
	}
	if err := l.awardLocked(ctx, referrer, models.ActionReferral, meta); err != nil {
		return err
	}

	if l.events != nil {
		l.events.PublishReferralConverted(ctx, code, referrer, newWallet, ReferralBonusPoints)
	}

	return nil
}

// GenerateClaimablePoints creates and persists a new claim grant with a
// random claim code. Authorization is the caller's responsibility; this
// layer performs none.
func (l *Ledger) GenerateClaimablePoints(ctx context.Context, wallet string, points, expirationHours int) (models.ClaimablePoints, error) {
	if err := validation.ValidateWalletAddress(wallet, "wallet_address"); err != nil {
		return models.ClaimablePoints{}, err
	}
	if err := validation.ValidateClaimGrant(points, expirationHours); err != nil {
		return models.ClaimablePoints{}, err
	}
	if expirationHours == 0 {
		expirationHours = l.claimExpiryHours
	}

	code, err := generateClaimCode()
	if err != nil {
		return models.ClaimablePoints{}, err
	}

	mu := l.walletLock(wallet)
	mu.Lock()
	defer mu.Unlock()

	grant := models.ClaimablePoints{
		ID:             l.newID(),
		WalletAddress:  wallet,
		Points:         points,
		ExpirationDate: l.clock().Add(time.Duration(expirationHours) * time.Hour),
		ClaimCode:      code,
	}

	grants := l.loadClaimableGrants(ctx, wallet)
	grants = append(grants, grant)

	if err := store.SetJSON(ctx, l.store, store.ClaimableKey(wallet), grants); err != nil {
		return models.ClaimablePoints{}, fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}

	return grant, nil
}

func (l *Ledger) loadClaimableGrants(ctx context.Context, wallet string) []models.ClaimablePoints {
	var grants []models.ClaimablePoints
	if err := store.GetJSON(ctx, l.store, store.ClaimableKey(wallet), &grants); err != nil {
		return nil
	}
	return grants
}

// generateClaimCode returns an 8-character hex redemption code.
func generateClaimCode() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate claim code: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ClaimPoints redeems the grant matching the given code. A grant is
// redeemed at most once: the first eligible call claims it and awards its
// points; any later call reports why it could not. Claim failure is a
// normal outcome carried in the result, not an error.
func (l *Ledger) ClaimPoints(ctx context.Context, wallet, code string) (models.ClaimResult, error) {
	if err := validation.ValidateWalletAddress(wallet, "wallet_address"); err != nil {
		return models.ClaimResult{}, err
	}
	if err := validation.ValidateClaimCode(code); err != nil {
		return models.ClaimResult{}, err
	}

	mu := l.walletLock(wallet)
	mu.Lock()
	defer mu.Unlock()

	grants := l.loadClaimableGrants(ctx, wallet)
	now := l.clock()

	for i := range grants {
		if grants[i].ClaimCode != code {
			continue
		}
		if grants[i].ClaimedAt != nil {
			return models.ClaimResult{Reason: models.ClaimAlreadyClaimed}, nil
		}
		if !now.Before(grants[i].ExpirationDate) {
			return models.ClaimResult{Reason: models.ClaimExpired}, nil
		}

		claimedAt := now
		grants[i].ClaimedAt = &claimedAt

		// The claimed marker is written before the award. If the award
		// write fails the grant stays claimed with no points credited;
		// the reverse order could let one code pay out twice.
		if err := store.SetJSON(ctx, l.store, store.ClaimableKey(wallet), grants); err != nil {
			return models.ClaimResult{}, fmt.Errorf("%w: %v", ErrStoreWrite, err)
		}

		meta := &models.ActionMetadata{
			ClaimCode: code,
			Points:    grants[i].Points,
		}
		if err := l.awardLocked(ctx, wallet, models.ActionClaimPoints, meta); err != nil {
			return models.ClaimResult{}, err
		}

		if l.events != nil {
			l.events.PublishPointsClaimed(ctx, wallet, code, grants[i].Points)
		}

		return models.ClaimResult{
			Claimed: true,
			Reason:  models.ClaimOK,
			Points:  grants[i].Points,
		}, nil
	}

	return models.ClaimResult{Reason: models.ClaimNotFound}, nil
}

// GetClaimablePoints returns the wallet's unclaimed, unexpired grants in
// storage order.
func (l *Ledger) GetClaimablePoints(ctx context.Context, wallet string) ([]models.ClaimablePoints, error) {
	if err := validation.ValidateWalletAddress(wallet, "wallet_address"); err != nil {
		return nil, err
	}

	now := l.clock()
	var eligible []models.ClaimablePoints
	for _, grant := range l.loadClaimableGrants(ctx, wallet) {
		if grant.ClaimedAt == nil && now.Before(grant.ExpirationDate) {
			eligible = append(eligible, grant)
		}
	}
	return eligible, nil
}

// GetLeaderboard scans every points record in the store and returns the
// top wallets by total, descending. This is an O(n) full scan with no
// index; fine for a local single-node store.
func (l *Ledger) GetLeaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}

	ctx, span := tracing.GetTracer().StartSpan(ctx, "ledger.GetLeaderboard")
	defer span.End()

	keys, err := l.store.Keys(ctx, store.PointsPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to scan points records: %w", err)
	}
	span.SetAttributes(
		attribute.Int("ledger.leaderboard_limit", limit),
		attribute.Int("ledger.scanned_records", len(keys)),
	)

	var entries []models.LeaderboardEntry
	for _, key := range keys {
		var record models.UserPoints
		if err := store.GetJSON(ctx, l.store, key, &record); err != nil {
			continue // corrupt or vanished entry, skip
		}
		entries = append(entries, models.LeaderboardEntry{
			WalletAddress: record.WalletAddress,
			TotalPoints:   record.TotalPoints,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalPoints > entries[j].TotalPoints
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
