package events

import (
	"context"
	"sync"
	"time"

	"wallet-points-api/internal/models"
)

// EventType represents the type of event.
type EventType string

const (
	// EventPointsAwarded is emitted when points are awarded to a wallet
	EventPointsAwarded EventType = "points.awarded"
	// EventReferralConverted is emitted when a referral conversion is processed
	EventReferralConverted EventType = "referral.converted"
	// EventPointsClaimed is emitted when a claim code is redeemed
	EventPointsClaimed EventType = "points.claimed"
)

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// PointsAwardedData contains data for points awarded events.
type PointsAwardedData struct {
	WalletAddress string
	Action        models.PointsAction
	TotalPoints   int
}

// ReferralConvertedData contains data for referral conversion events.
type ReferralConvertedData struct {
	ReferralCode   string
	ReferrerWallet string
	NewWallet      string
	BonusAwarded   int
}

// PointsClaimedData contains data for claim redemption events.
type PointsClaimedData struct {
	WalletAddress string
	ClaimCode     string
	Points        int
	ClaimedAt     time.Time
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
}

// NewManager creates a new event manager.
func NewManager(enabled bool) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	if !m.enabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish publishes an event to all subscribed handlers.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data interface{}) {
	if !m.enabled {
		return
	}

	m.mu.RLock()
	handlers := m.handlers[eventType]
	m.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	// Execute handlers asynchronously to avoid blocking the ledger write
	for _, handler := range handlers {
		go func(h Handler) {
			if err := h(ctx, event); err != nil {
				// In production, you might want to log this or send to error tracking
				_ = err
			}
		}(handler)
	}
}

// PublishPointsAwarded publishes a points awarded event.
func (m *Manager) PublishPointsAwarded(ctx context.Context, action models.PointsAction, total int) {
	m.Publish(ctx, EventPointsAwarded, PointsAwardedData{
		WalletAddress: action.WalletAddress,
		Action:        action,
		TotalPoints:   total,
	})
}

// PublishReferralConverted publishes a referral conversion event.
func (m *Manager) PublishReferralConverted(ctx context.Context, code, referrer, newWallet string, bonus int) {
	m.Publish(ctx, EventReferralConverted, ReferralConvertedData{
		ReferralCode:   code,
		ReferrerWallet: referrer,
		NewWallet:      newWallet,
		BonusAwarded:   bonus,
	})
}

// PublishPointsClaimed publishes a claim redemption event.
func (m *Manager) PublishPointsClaimed(ctx context.Context, wallet, code string, points int) {
	m.Publish(ctx, EventPointsClaimed, PointsClaimedData{
		WalletAddress: wallet,
		ClaimCode:     code,
		Points:        points,
		ClaimedAt:     time.Now(),
	})
}

// Shutdown shuts down the event manager.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
}
