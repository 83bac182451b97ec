package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Promocode is managed by the admin panel and read-only here.
type Promocode struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"type:varchar(64);uniqueIndex" json:"code"`
	ExtraDays ExtraDays `gorm:"type:text" json:"extra_days"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PromocodeUsage records that a promocode was applied to a subscription at checkout.
type PromocodeUsage struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	PromocodeID    uint      `gorm:"not null;index" json:"promocode_id"`
	Promocode      Promocode `gorm:"foreignKey:PromocodeID" json:"promocode,omitempty"`
	SubscriptionID uint      `gorm:"not null;index" json:"subscription_id"`
	UserID         uint      `gorm:"not null;index" json:"user_id"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ExtraDays maps a purchase period in months to bonus days.
type ExtraDays map[int]int

// For returns the bonus days for a period, zero when none is configured.
func (e ExtraDays) For(months int) int {
	if e == nil {
		return 0
	}
	return e[months]
}

// ParseExtraDays accepts the JSON object ({"3":7}) as well as a JSON string
// holding that object, which is how older admin panel versions stored it.
// Values may be numbers or numeric strings.
func ParseExtraDays(raw []byte) (ExtraDays, error) {
	return parseExtraDays(raw, 0)
}

func parseExtraDays(raw []byte, depth int) (ExtraDays, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" || s == `""` {
		return ExtraDays{}, nil
	}
	if depth > 2 {
		return nil, fmt.Errorf("extra_days: too deeply encoded")
	}

	if strings.HasPrefix(s, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(s), &inner); err != nil {
			return nil, fmt.Errorf("extra_days: %w", err)
		}
		return parseExtraDays([]byte(inner), depth+1)
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("extra_days: %w", err)
	}

	out := make(ExtraDays, len(m))
	for k, v := range m {
		months, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("extra_days: invalid period %q", k)
		}
		days, err := parseDays(v)
		if err != nil {
			return nil, fmt.Errorf("extra_days: period %d: %w", months, err)
		}
		out[months] = days
	}
	return out, nil
}

func parseDays(v json.RawMessage) (int, error) {
	s := strings.TrimSpace(string(v))
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(v, &s); err != nil {
			return 0, err
		}
		s = strings.TrimSpace(s)
	}
	if s == "" || s == "null" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid days %q", s)
	}
	return int(math.Trunc(f)), nil
}

func (e *ExtraDays) UnmarshalJSON(b []byte) error {
	parsed, err := ParseExtraDays(b)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

func (e ExtraDays) MarshalJSON() ([]byte, error) {
	m := make(map[string]int, len(e))
	for k, v := range e {
		m[strconv.Itoa(k)] = v
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (e *ExtraDays) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*e = ExtraDays{}
		return nil
	case []byte:
		return e.UnmarshalJSON(v)
	case string:
		return e.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("extra_days: unsupported type %T", value)
	}
}

// Value implements driver.Valuer.
func (e ExtraDays) Value() (driver.Value, error) {
	b, err := e.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
