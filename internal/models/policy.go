package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Window names accepted in a policy quota. Each maps to a calendar-aligned
// period in the deployment's timezone.
const (
	WindowDaily   = "daily"
	WindowWeekly  = "weekly"
	WindowMonthly = "monthly"
)

// WindowLimit is the byte ceiling for one named window.
type WindowLimit struct {
	LimitBytes int64 `json:"limit_bytes"`
}

// Quota is the typed form of the policy quota blob: an absolute hard cap
// plus per-window byte limits. A zero HardCapBytes means no hard cap; an
// empty Windows map means no windowed limits.
type Quota struct {
	HardCapBytes int64                  `json:"hard_cap_bytes,omitempty"`
	Windows      map[string]WindowLimit `json:"windows,omitempty"`
}

// Validate checks the quota at policy-load time so the evaluator never has
// to re-parse or second-guess window names.
func (q *Quota) Validate() error {
	if q.HardCapBytes < 0 {
		return fmt.Errorf("hard_cap_bytes must be non-negative")
	}
	for name, w := range q.Windows {
		switch name {
		case WindowDaily, WindowWeekly, WindowMonthly:
		default:
			return fmt.Errorf("unknown quota window %q", name)
		}
		// An uncapped window is expressed by omitting it, not by a zero
		// limit, so a zero here is a configuration mistake.
		if w.LimitBytes <= 0 {
			return fmt.Errorf("window %q: limit_bytes must be positive", name)
		}
	}
	return nil
}

// Value implements driver.Valuer
func (q Quota) Value() (driver.Value, error) {
	return json.Marshal(q)
}

// Scan implements sql.Scanner
func (q *Quota) Scan(value interface{}) error {
	if value == nil {
		*q = Quota{}
		return nil
	}
	switch data := value.(type) {
	case []byte:
		return json.Unmarshal(data, q)
	case string:
		return json.Unmarshal([]byte(data), q)
	default:
		return fmt.Errorf("unsupported type for Quota: %T", value)
	}
}

// WifiPolicy is a per-role bandwidth policy. Exactly one policy is selected
// per user per evaluation: the highest-priority role match, else the system
// default policy (DefaultPolicyRole).
type WifiPolicy struct {
	BaseModel

	Role     string `json:"role" db:"role"`
	Priority int    `json:"priority" db:"priority"`

	Quota Quota `json:"quota" db:"quota"`
}

// DefaultPolicyRole is the role name of the system default policy. Its
// absence is a configuration error; evaluation fails closed without it.
const DefaultPolicyRole = "default"
