package configs

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Plan identifiers used across the application.
const (
	PlanFree = "FREE"
	PlanPro  = "PRO"
)

// Goal metrics with special meaning. Any other value names a key in an entry's metrics map.
const (
	GoalMinutes = "minutes"
	GoalCount   = "count"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Tracker describes one tracker area and where its logs live.
type Tracker struct {
	Key          string   `yaml:"key" json:"key"`
	Name         string   `yaml:"name" json:"name"`
	Path         string   `yaml:"path" json:"path"`
	Collection   string   `yaml:"collection" json:"-"`
	Premium      bool     `yaml:"premium" json:"premium"`
	GoalMetric   string   `yaml:"goal_metric" json:"goalMetric"`
	DefaultGoal  float64  `yaml:"default_goal" json:"defaultGoal"`
	Unit         string   `yaml:"unit" json:"unit"`
	Metrics      []string `yaml:"metrics" json:"metrics"`
	EncryptNotes bool     `yaml:"encrypt_notes" json:"-"`
	Custom       bool     `yaml:"-" json:"custom,omitempty"`
}

// AllowsMetric reports whether name is a metric this tracker records.
func (t Tracker) AllowsMetric(name string) bool {
	if t.Custom {
		return true
	}
	for _, m := range t.Metrics {
		if m == name {
			return true
		}
	}
	return false
}

// PlanLimits caps per-plan usage.
type PlanLimits struct {
	MaxCustomTrackers int `yaml:"max_custom_trackers" json:"maxCustomTrackers"`
	InsightsPerDay    int `yaml:"insights_per_day" json:"insightsPerDay"`
}

// Plan is a subscription tier.
type Plan struct {
	ID            string     `yaml:"id" json:"id"`
	Name          string     `yaml:"name" json:"name"`
	PriceCents    int64      `yaml:"price_cents" json:"priceCents"`
	Currency      string     `yaml:"currency" json:"currency"`
	Interval      string     `yaml:"interval" json:"interval"`
	PeriodDays    int        `yaml:"period_days" json:"periodDays,omitempty"`
	StripePriceID string     `yaml:"stripe_price_id" json:"-"`
	Limits        PlanLimits `yaml:"limits" json:"limits"`
}

// Coupon discounts a plan and grants a trial period. Partial discounts are paid through
// Stripe Checkout and need the matching Stripe coupon.
type Coupon struct {
	Code           string `yaml:"code" json:"code"`
	Plan           string `yaml:"plan" json:"plan"`
	PercentOff     int    `yaml:"percent_off" json:"percentOff"`
	TrialDays      int    `yaml:"trial_days" json:"trialDays"`
	StripeCouponID string `yaml:"stripe_coupon_id" json:"-"`
}

// Catalog is the static product configuration: trackers, plans and coupons.
type Catalog struct {
	CustomCollection string    `yaml:"custom_collection" json:"-"`
	Trackers         []Tracker `yaml:"trackers" json:"trackers"`
	Plans            []Plan    `yaml:"plans" json:"plans"`
	Coupons          []Coupon  `yaml:"coupons" json:"-"`

	trackersByKey map[string]Tracker
	plansByID     map[string]Plan
	couponsByCode map[string]Coupon
}

// LoadCatalog reads the catalog from path, or the embedded default when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the embedded catalog. It panics if the embedded file is invalid.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic("embedded catalog is invalid: " + err.Error())
	}
	return c
}

// ParseCatalog decodes and indexes a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal catalog: %w", err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) index() error {
	if c.CustomCollection == "" {
		c.CustomCollection = "customEntries"
	}
	c.trackersByKey = make(map[string]Tracker, len(c.Trackers))
	for i := range c.Trackers {
		t := &c.Trackers[i]
		if t.Key == "" || t.Collection == "" || t.Path == "" {
			return fmt.Errorf("tracker %q: key, path and collection are required", t.Key)
		}
		if _, dup := c.trackersByKey[t.Key]; dup {
			return fmt.Errorf("duplicate tracker key %q", t.Key)
		}
		if t.GoalMetric == "" {
			t.GoalMetric = GoalMinutes
		}
		c.trackersByKey[t.Key] = *t
	}

	c.plansByID = make(map[string]Plan, len(c.Plans))
	for _, p := range c.Plans {
		c.plansByID[strings.ToUpper(p.ID)] = p
	}
	if _, ok := c.plansByID[PlanFree]; !ok {
		return errors.New("catalog must define a FREE plan")
	}
	if _, ok := c.plansByID[PlanPro]; !ok {
		return errors.New("catalog must define a PRO plan")
	}

	c.couponsByCode = make(map[string]Coupon, len(c.Coupons))
	for _, cp := range c.Coupons {
		if cp.PercentOff < 0 || cp.PercentOff > 100 {
			return fmt.Errorf("coupon %q: percent_off must be between 0 and 100", cp.Code)
		}
		if _, ok := c.plansByID[strings.ToUpper(cp.Plan)]; !ok {
			return fmt.Errorf("coupon %q references unknown plan %q", cp.Code, cp.Plan)
		}
		c.couponsByCode[strings.ToUpper(strings.TrimSpace(cp.Code))] = cp
	}
	return nil
}

// Tracker looks up a built-in tracker by key.
func (c *Catalog) Tracker(key string) (Tracker, bool) {
	t, ok := c.trackersByKey[key]
	return t, ok
}

// TrackerByPath returns the tracker whose route owns path ("/workout" and "/workout/history" both map to workout).
func (c *Catalog) TrackerByPath(path string) (Tracker, bool) {
	for _, t := range c.Trackers {
		if path == t.Path || strings.HasPrefix(path, t.Path+"/") {
			return c.trackersByKey[t.Key], true
		}
	}
	return Tracker{}, false
}

// Plan looks up a plan by ID, case-insensitively.
func (c *Catalog) Plan(id string) (Plan, bool) {
	p, ok := c.plansByID[strings.ToUpper(id)]
	return p, ok
}

// Coupon looks up a coupon by code, ignoring case and surrounding whitespace.
func (c *Catalog) Coupon(code string) (Coupon, bool) {
	cp, ok := c.couponsByCode[strings.ToUpper(strings.TrimSpace(code))]
	return cp, ok
}

// Limits returns the limits for a plan, falling back to FREE.
func (c *Catalog) Limits(planID string) PlanLimits {
	if p, ok := c.Plan(planID); ok {
		return p.Limits
	}
	return c.plansByID[PlanFree].Limits
}

// FreeTrackerKeys lists trackers available without premium, in catalog order.
func (c *Catalog) FreeTrackerKeys() []string {
	var keys []string
	for _, t := range c.Trackers {
		if !t.Premium {
			keys = append(keys, t.Key)
		}
	}
	return keys
}
