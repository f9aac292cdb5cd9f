package council

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/shawkym/councilpipe/pkg/log"
)

//go:embed pricing.json
var embeddedPricingJSON []byte

// rateEntry is a single ordered row in the pricing table. A slice is used
// instead of a map so declaration order (and therefore first-match
// precedence) is preserved exactly as written.
type rateEntry struct {
	Key       string  `json:"key"`
	RatePer1K float64 `json:"ratePer1K"`
}

type pricingTable struct {
	DefaultRatePer1K float64     `json:"defaultRatePer1K"`
	Models           []rateEntry `json:"models"`
	Patterns         []rateEntry `json:"patterns"`
}

var (
	pricingOnce           sync.Once
	pricingTableSingleton pricingTable
)

// defaultPricingTable loads the embedded rate table, optionally replaced
// wholesale by ~/.councilpipe/pricing.json if that file exists and parses
// successfully. Loaded once per process.
func defaultPricingTable() pricingTable {
	pricingOnce.Do(func() {
		var t pricingTable
		if err := json.Unmarshal(embeddedPricingJSON, &t); err != nil {
			log.WithError(err).Error("embedded pricing table failed to parse")
		}

		if home, err := os.UserHomeDir(); err == nil {
			overridePath := filepath.Join(home, ".councilpipe", "pricing.json")
			if data, err := os.ReadFile(overridePath); err == nil {
				var override pricingTable
				if err := json.Unmarshal(data, &override); err == nil {
					log.WithField("path", overridePath).Info("loaded pricing table override")
					t = override
				} else {
					log.WithError(err).WithField("path", overridePath).Warn("ignoring malformed pricing override")
				}
			}
		}

		pricingTableSingleton = t
	})
	return pricingTableSingleton
}

// PricingEstimator computes per-request USD cost from a model id and token
// counts using an ordered model-table, then-pattern-table, then-default
// lookup; both tables match a row when its key is a substring of the
// lowercased model id.
type PricingEstimator struct {
	table pricingTable
}

// NewPricingEstimator builds an estimator over the default embedded/override
// table.
func NewPricingEstimator() *PricingEstimator {
	return &PricingEstimator{table: defaultPricingTable()}
}

// EstimateCost returns the USD cost of a request given its total token
// count, using rate-per-1K-tokens lookup. Rows of the models table (keys
// such as "openai/gpt-4o", matched as substrings of the lowercased id) take
// precedence over the shorter patterns table, which takes precedence over
// the table's default rate; both tables are scanned in declaration order
// so the first matching row wins.
func (p *PricingEstimator) EstimateCost(modelID string, totalTokens int) float64 {
	rate := p.rateFor(modelID)
	return (float64(totalTokens) / 1000.0) * rate
}

func (p *PricingEstimator) rateFor(modelID string) float64 {
	lower := strings.ToLower(modelID)

	for _, e := range p.table.Models {
		if strings.Contains(lower, strings.ToLower(e.Key)) {
			return e.RatePer1K
		}
	}

	for _, e := range p.table.Patterns {
		if strings.Contains(lower, strings.ToLower(e.Key)) {
			return e.RatePer1K
		}
	}

	return p.table.DefaultRatePer1K
}
