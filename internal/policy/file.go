package policy

import (
	"fmt"
	"os"
	"path/filepath"

	"memory-credits-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

type packFile struct {
	Id          string `yaml:"id"`
	Credits     int64  `yaml:"credits"`
	Price       string `yaml:"price"`
	Currency    string `yaml:"currency"`
	PremiumDays int    `yaml:"premium_days"`
}

type policyFile struct {
	Costs map[string]int64 `yaml:"costs"`
	Caps  map[string]int64 `yaml:"caps"`
	Packs []packFile       `yaml:"packs"`
}

// Load reads a policy YAML file over the defaults. An empty path yields the
// defaults unchanged.
//
//	costs:
//	  memory_with_media: 4
//	caps:
//	  ai_searches: 10
//	packs:
//	  - id: starter
//	    credits: 100
//	    price: "99.00"
//	    currency: INR
func Load(policyPath string) (*Catalog, error) {
	catalog := Default()
	if policyPath == "" {
		return catalog, nil
	}

	if !filepath.IsAbs(policyPath) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		policyPath = filepath.Join(wd, policyPath)
	}

	data, err := os.ReadFile(policyPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", policyPath, err)
	}
	return Parse(data)
}

// Parse decodes policy YAML over the defaults and validates the result.
func Parse(data []byte) (*Catalog, error) {
	var file policyFile
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return nil, fmt.Errorf("unable to parse policy: %w", err)
	}

	catalog := Default()
	for name, cost := range file.Costs {
		action, err := ParseActionType(name)
		if err != nil {
			return nil, err
		}
		catalog.costs[action] = cost
	}
	for name, limit := range file.Caps {
		field := store.UsageField(name)
		if !field.Valid() {
			return nil, fmt.Errorf("unknown usage counter %q", name)
		}
		catalog.caps[field] = limit
	}
	for i, raw := range file.Packs {
		price, err := decimal.NewFromString(raw.Price)
		if err != nil {
			return nil, fmt.Errorf("pack at index %d has invalid price %q: %w", i, raw.Price, err)
		}
		if _, dup := catalog.packs[raw.Id]; dup {
			return nil, fmt.Errorf("pack %q defined twice", raw.Id)
		}
		catalog.packs[raw.Id] = Pack{
			Id:          raw.Id,
			Credits:     raw.Credits,
			Price:       price,
			Currency:    raw.Currency,
			PremiumDays: raw.PremiumDays,
		}
	}

	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	zap.L().Info("Loaded entitlement policy",
		zap.Int("packs", len(catalog.packs)),
		zap.Int64("memory_save_cap", catalog.caps[store.FieldMemorySaves]),
		zap.Int64("media_save_cap", catalog.caps[store.FieldMemorySavesWithMedia]),
		zap.Int64("ai_search_cap", catalog.caps[store.FieldAISearches]))
	return catalog, nil
}
