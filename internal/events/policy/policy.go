// Package policy decides whether a processed compliance event may still be
// cancelled. Decisions are pure: no I/O, no clock reads.
package policy

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"esocial/internal/events/models"
)

//go:embed cancellation.yaml
var defaultTable []byte

const day = 24 * time.Hour

// Rule is the cancellation rule of one event type.
type Rule struct {
	Cancellable bool `yaml:"cancellable"`
	WindowDays  int  `yaml:"window_days"`
}

// Window returns the allowed cancellation period, or 0 for no limit.
func (r Rule) Window() time.Duration {
	return time.Duration(r.WindowDays) * day
}

type table struct {
	Rules map[string]Rule `yaml:"rules"`
}

// Decision is the outcome of a cancellation check. Reason is set on denial.
type Decision struct {
	Allowed bool
	Reason  string
}

func deny(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Policy is an immutable cancellation table.
type Policy struct {
	rules map[models.EventType]Rule
}

// Default returns the built-in table.
func Default() (*Policy, error) {
	return Parse(defaultTable)
}

// Load returns the built-in table overlaid with the rules in path. An empty
// path yields the built-in table.
func Load(path string) (*Policy, error) {
	base, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cancellation policy: %w", err)
	}
	override, err := parseRules(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for t, rule := range override {
		base.rules[t] = rule
	}
	return base, nil
}

// Parse builds a policy from a YAML table. Types absent from the table are
// not cancellable.
func Parse(data []byte) (*Policy, error) {
	rules, err := parseRules(data)
	if err != nil {
		return nil, err
	}
	return &Policy{rules: rules}, nil
}

func parseRules(data []byte) (map[models.EventType]Rule, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var tbl table
	if err := dec.Decode(&tbl); err != nil {
		return nil, fmt.Errorf("decode cancellation table: %w", err)
	}

	var errs []error
	rules := make(map[models.EventType]Rule, len(tbl.Rules))
	for name, rule := range tbl.Rules {
		t, err := models.ParseEventType(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if rule.WindowDays < 0 {
			errs = append(errs, fmt.Errorf("%s: window_days must not be negative", name))
			continue
		}
		rules[t] = rule
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return rules, nil
}

// Rule returns the rule of t. Unknown types get the zero rule.
func (p *Policy) Rule(t models.EventType) Rule {
	return p.rules[t]
}

// CanCancel applies status, type eligibility and the time window in that order.
// The window boundary itself is still inside the window.
func (p *Policy) CanCancel(e *models.ComplianceEvent, now time.Time) Decision {
	if e.Status != models.StatusProcessed {
		return deny("only PROCESSED events can be cancelled; event is %s", e.Status)
	}
	rule := p.Rule(e.Type)
	if !rule.Cancellable {
		return deny("%s events cannot be cancelled", e.Type)
	}
	if rule.WindowDays == 0 {
		return Decision{Allowed: true}
	}
	if e.ProcessedAt == nil {
		return deny("event has no processing time")
	}
	if now.Sub(*e.ProcessedAt) > rule.Window() {
		return deny("cancellation window of %d days has elapsed", rule.WindowDays)
	}
	return Decision{Allowed: true}
}
