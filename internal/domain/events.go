package domain

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// EventTopic names the observable state transitions of the engine.
type EventTopic string

const (
	EventCreate  EventTopic = "create"
	EventBuy     EventTopic = "buy"
	EventResolve EventTopic = "resolve"
	EventClaim   EventTopic = "claim"

	// EventTopicAll subscribes to every topic.
	EventTopicAll EventTopic = "*"
)

// Event is a one-way, append-only notification emitted after every
// state-mutating operation. Events are consumed by external indexers and are
// never an input to the engine.
type Event struct {
	ID        string     `json:"id"`
	Topic     EventTopic `json:"topic"`
	MarketID  uint64     `json:"market_id"`
	Actor     string     `json:"actor,omitempty"`  // creator, buyer, or claimant
	Side      Side       `json:"side,omitempty"`   // buy side or resolve outcome
	Amount    *big.Int   `json:"amount,omitempty"` // buy stake or claim payout
	EmittedAt time.Time  `json:"emitted_at"`
}

// NewCreateEvent records the opening of a market.
func NewCreateEvent(marketID uint64, creator string, at time.Time) Event {
	return Event{ID: uuid.New().String(), Topic: EventCreate, MarketID: marketID, Actor: creator, EmittedAt: at}
}

// NewBuyEvent records a stake purchase.
func NewBuyEvent(marketID uint64, buyer string, side Side, amount *big.Int, at time.Time) Event {
	return Event{ID: uuid.New().String(), Topic: EventBuy, MarketID: marketID, Actor: buyer, Side: side, Amount: amount, EmittedAt: at}
}

// NewResolveEvent records a market resolution.
func NewResolveEvent(marketID uint64, outcome Side, at time.Time) Event {
	return Event{ID: uuid.New().String(), Topic: EventResolve, MarketID: marketID, Side: outcome, EmittedAt: at}
}

// NewClaimEvent records a payout claim.
func NewClaimEvent(marketID uint64, user string, payout *big.Int, at time.Time) Event {
	return Event{ID: uuid.New().String(), Topic: EventClaim, MarketID: marketID, Actor: user, Amount: payout, EmittedAt: at}
}

// Channel returns the pub/sub channel for the event's topic.
func (e Event) Channel() string {
	return "events:" + string(e.Topic)
}
