package payment

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/radieske/football-signals/internal/shared/config"
)

type Plan struct {
	Kind     string          `json:"kind"`
	Days     int             `json:"days"`
	Price    decimal.Decimal `json:"price"`
	Savings  decimal.Decimal `json:"savings"`
	Currency string          `json:"currency"`
}

// Catalog is the ordered list of purchasable plans.
type Catalog struct {
	plans []Plan
}

func NewCatalog(cfgs []config.PlanConfig, currency string) (*Catalog, error) {
	c := &Catalog{}
	seen := map[string]bool{}
	for _, pc := range cfgs {
		if pc.Kind == "" || pc.Days <= 0 {
			return nil, fmt.Errorf("invalid plan %+v", pc)
		}
		if seen[pc.Kind] {
			return nil, fmt.Errorf("duplicate plan %q", pc.Kind)
		}
		seen[pc.Kind] = true

		price, err := decimal.NewFromString(pc.Price)
		if err != nil || !price.IsPositive() {
			return nil, fmt.Errorf("plan %q: invalid price %q", pc.Kind, pc.Price)
		}
		savings := decimal.Zero
		if pc.Savings != "" {
			if savings, err = decimal.NewFromString(pc.Savings); err != nil {
				return nil, fmt.Errorf("plan %q: invalid savings %q", pc.Kind, pc.Savings)
			}
		}
		c.plans = append(c.plans, Plan{Kind: pc.Kind, Days: pc.Days, Price: price, Savings: savings, Currency: currency})
	}
	return c, nil
}

func (c *Catalog) Plan(kind string) (Plan, error) {
	for _, p := range c.plans {
		if p.Kind == kind {
			return p, nil
		}
	}
	return Plan{}, fmt.Errorf("%w: %q", ErrUnknownPlan, kind)
}

func (c *Catalog) Plans() []Plan {
	out := make([]Plan, len(c.plans))
	copy(out, c.plans)
	return out
}
