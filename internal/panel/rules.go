package panel

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const defaultToastTTL = 3 * time.Second

// Rules decide where the panel appears and what its controls do.
type Rules struct {
	// URLPatterns are case-insensitive. "*" matches any run of characters;
	// a pattern without "*" matches as a substring.
	URLPatterns  []string          `yaml:"url_patterns"`
	BuyAmounts   []decimal.Decimal `yaml:"buy_amounts"`
	SellPercents []int             `yaml:"sell_percents"`
	// Shortcuts maps a key to an action such as "buy:0", "sell:2" or "toggle".
	Shortcuts map[string]string `yaml:"shortcuts"`
	ToastTTL  time.Duration     `yaml:"toast_ttl"`

	matchers []*regexp.Regexp
}

// DefaultRules is used when no rules file is configured.
func DefaultRules() *Rules {
	r := &Rules{
		URLPatterns: []string{"pump.fun", "dexscreener.com", "birdeye.so", "x.com/*/status/"},
		BuyAmounts: []decimal.Decimal{
			decimal.RequireFromString("0.1"),
			decimal.RequireFromString("0.5"),
			decimal.RequireFromString("1"),
		},
		SellPercents: []int{25, 50, 100},
		Shortcuts: map[string]string{
			"1": "buy:0", "2": "buy:1", "3": "buy:2",
			"q": "sell:0", "w": "sell:1", "e": "sell:2",
			"p": "toggle",
		},
		ToastTTL: defaultToastTTL,
	}
	if err := r.compile(); err != nil {
		panic(err)
	}
	return r
}

// LoadRules reads a YAML rules file.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("panel: read rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes and validates YAML rules.
func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("panel: parse rules: %w", err)
	}
	if r.ToastTTL <= 0 {
		r.ToastTTL = defaultToastTTL
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := r.compile(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks amounts, percentages and that every shortcut names a
// control that exists.
func (r *Rules) Validate() error {
	for i, amt := range r.BuyAmounts {
		if !amt.IsPositive() {
			return fmt.Errorf("panel: buy_amounts[%d] must be positive, got %s", i, amt)
		}
	}
	for i, pct := range r.SellPercents {
		if pct <= 0 || pct > 100 {
			return fmt.Errorf("panel: sell_percents[%d] must be in 1..100, got %d", i, pct)
		}
	}
	for key, spec := range r.Shortcuts {
		a, err := ParseAction(spec)
		if err != nil {
			return fmt.Errorf("panel: shortcut %q: %w", key, err)
		}
		if err := r.checkAction(a); err != nil {
			return fmt.Errorf("panel: shortcut %q: %w", key, err)
		}
	}
	return nil
}

// Match reports whether the panel should be shown on url.
func (r *Rules) Match(url string) bool {
	if r == nil {
		return false
	}
	for _, m := range r.matchers {
		if m.MatchString(url) {
			return true
		}
	}
	return false
}

// Shortcut returns the action bound to key.
func (r *Rules) Shortcut(key string) (Action, bool) {
	spec, ok := r.Shortcuts[strings.ToLower(key)]
	if !ok {
		return Action{}, false
	}
	a, err := ParseAction(spec)
	if err != nil {
		return Action{}, false
	}
	return a, true
}

func (r *Rules) checkAction(a Action) error {
	switch a.Kind {
	case ActionBuy:
		if a.Index < 0 || a.Index >= len(r.BuyAmounts) {
			return fmt.Errorf("buy index %d out of range", a.Index)
		}
	case ActionSell:
		if a.Index < 0 || a.Index >= len(r.SellPercents) {
			return fmt.Errorf("sell index %d out of range", a.Index)
		}
	}
	return nil
}

func (r *Rules) compile() error {
	r.matchers = r.matchers[:0]
	lowered := make(map[string]string, len(r.Shortcuts))
	for k, v := range r.Shortcuts {
		lowered[strings.ToLower(k)] = v
	}
	r.Shortcuts = lowered

	for _, p := range r.URLPatterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts := strings.Split(p, "*")
		for i := range parts {
			parts[i] = regexp.QuoteMeta(parts[i])
		}
		m, err := regexp.Compile("(?i)" + strings.Join(parts, ".*"))
		if err != nil {
			return fmt.Errorf("panel: url pattern %q: %w", p, err)
		}
		r.matchers = append(r.matchers, m)
	}
	return nil
}

// ActionKind names a panel control.
type ActionKind string

const (
	ActionBuy    ActionKind = "buy"
	ActionSell   ActionKind = "sell"
	ActionToggle ActionKind = "toggle"
)

// Action is a parsed control reference. Index selects the amount or
// percentage.
type Action struct {
	Kind  ActionKind
	Index int
}

func (a Action) String() string {
	if a.Kind == ActionToggle {
		return string(a.Kind)
	}
	return string(a.Kind) + ":" + strconv.Itoa(a.Index)
}

// ParseAction parses "buy:N", "sell:N" or "toggle".
func ParseAction(s string) (Action, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == string(ActionToggle) {
		return Action{Kind: ActionToggle}, nil
	}
	kind, idx, ok := strings.Cut(s, ":")
	if !ok {
		return Action{}, fmt.Errorf("unknown action %q", s)
	}
	n, err := strconv.Atoi(idx)
	if err != nil {
		return Action{}, fmt.Errorf("bad action index %q", idx)
	}
	switch ActionKind(kind) {
	case ActionBuy, ActionSell:
		return Action{Kind: ActionKind(kind), Index: n}, nil
	}
	return Action{}, fmt.Errorf("unknown action %q", s)
}
