package policy

import (
	"errors"
	"fmt"
	"sort"

	"memory-credits-go/internal/store"

	"github.com/shopspring/decimal"
)

// ActionType is the closed set of credit-consuming actions.
type ActionType string

const (
	ActionMemorySave      ActionType = "memory_save"
	ActionMemoryWithMedia ActionType = "memory_with_media"
	ActionAISearch        ActionType = "ai_search"
)

// Freemium monthly caps.
const (
	DefaultMemorySaveCap = 5
	DefaultMediaSaveCap  = 2
	DefaultAISearchCap   = 5
)

// Credit cost per action.
const (
	DefaultMemorySaveCost = 1
	DefaultMediaSaveCost  = 3
	DefaultAISearchCost   = 2
)

var (
	ErrUnknownAction = errors.New("unknown action type")
	ErrUnknownPack   = errors.New("unknown credit pack")
)

// ParseActionType validates a wire value against the known actions.
func ParseActionType(s string) (ActionType, error) {
	switch a := ActionType(s); a {
	case ActionMemorySave, ActionMemoryWithMedia, ActionAISearch:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// cappedFields lists the counters an action consumes. A save with media
// counts against both the general save cap and the media cap.
var cappedFields = map[ActionType][]store.UsageField{
	ActionMemorySave:      {store.FieldMemorySaves},
	ActionMemoryWithMedia: {store.FieldMemorySaves, store.FieldMemorySavesWithMedia},
	ActionAISearch:        {store.FieldAISearches},
}

// Action is the resolved price and freemium caps for one action type.
type Action struct {
	Type ActionType
	Cost int64
	Caps []store.CapCheck
}

// Pack is a purchasable bundle of credits and optional premium days.
type Pack struct {
	Id          string
	Credits     int64
	Price       decimal.Decimal
	Currency    string
	PremiumDays int
}

// Catalog maps every action to its cost and caps, and names the credit packs
// on sale. It is immutable once built.
type Catalog struct {
	costs map[ActionType]int64
	caps  map[store.UsageField]int64
	packs map[string]Pack
}

// Default returns the built-in catalog with no packs.
func Default() *Catalog {
	return &Catalog{
		costs: map[ActionType]int64{
			ActionMemorySave:      DefaultMemorySaveCost,
			ActionMemoryWithMedia: DefaultMediaSaveCost,
			ActionAISearch:        DefaultAISearchCost,
		},
		caps: map[store.UsageField]int64{
			store.FieldMemorySaves:          DefaultMemorySaveCap,
			store.FieldMemorySavesWithMedia: DefaultMediaSaveCap,
			store.FieldAISearches:           DefaultAISearchCap,
		},
		packs: map[string]Pack{},
	}
}

// Lookup resolves an action to its cost and cap checks.
func (c *Catalog) Lookup(action ActionType) (Action, error) {
	cost, ok := c.costs[action]
	if !ok {
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	fields := cappedFields[action]
	checks := make([]store.CapCheck, 0, len(fields))
	for _, field := range fields {
		checks = append(checks, store.CapCheck{Field: field, Cap: c.caps[field]})
	}
	return Action{Type: action, Cost: cost, Caps: checks}, nil
}

// Cap returns the monthly freemium ceiling for a counter.
func (c *Catalog) Cap(field store.UsageField) int64 {
	return c.caps[field]
}

func (c *Catalog) Pack(id string) (Pack, error) {
	pack, ok := c.packs[id]
	if !ok {
		return Pack{}, fmt.Errorf("%w: %q", ErrUnknownPack, id)
	}
	return pack, nil
}

// Packs returns the configured packs ordered by id.
func (c *Catalog) Packs() []Pack {
	packs := make([]Pack, 0, len(c.packs))
	for _, pack := range c.packs {
		packs = append(packs, pack)
	}
	sort.Slice(packs, func(i, j int) bool { return packs[i].Id < packs[j].Id })
	return packs
}

// Validate checks that every action is priced and every counter capped.
func (c *Catalog) Validate() error {
	for action := range cappedFields {
		cost, ok := c.costs[action]
		if !ok {
			return fmt.Errorf("action %s has no cost", action)
		}
		if cost <= 0 {
			return fmt.Errorf("action %s cost must be positive, got %d", action, cost)
		}
	}
	for _, field := range []store.UsageField{store.FieldMemorySaves, store.FieldMemorySavesWithMedia, store.FieldAISearches} {
		limit, ok := c.caps[field]
		if !ok {
			return fmt.Errorf("counter %s has no cap", field)
		}
		if limit < 0 {
			return fmt.Errorf("counter %s cap cannot be negative, got %d", field, limit)
		}
	}
	for id, pack := range c.packs {
		if err := pack.validate(); err != nil {
			return fmt.Errorf("pack %s: %w", id, err)
		}
	}
	return nil
}

func (p Pack) validate() error {
	if p.Id == "" {
		return fmt.Errorf("missing id")
	}
	if p.Credits < 0 {
		return fmt.Errorf("credits cannot be negative, got %d", p.Credits)
	}
	if p.PremiumDays < 0 {
		return fmt.Errorf("premium days cannot be negative, got %d", p.PremiumDays)
	}
	if p.Credits == 0 && p.PremiumDays == 0 {
		return fmt.Errorf("grants neither credits nor premium")
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("price cannot be negative, got %s", p.Price)
	}
	if p.Currency == "" {
		return fmt.Errorf("missing currency")
	}
	return nil
}
