// Package journal persists the transition history of bookings for audit.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/autoaid/core/model"
)

// Record captures one committed booking transition.
type Record struct {
	Timestamp  time.Time          `json:"timestamp"`
	BookingID  string             `json:"booking_id"`
	CustomerID string             `json:"customer_id"`
	MechanicID string             `json:"mechanic_id,omitempty"`
	From       model.Status       `json:"from"`
	To         model.Status       `json:"to"`
	Event      model.Event        `json:"event"`
	Actor      model.Actor        `json:"actor"`
	RoundID    string             `json:"round_id,omitempty"`
	Reason     model.CancelReason `json:"reason,omitempty"`
	FinalCost  *float64           `json:"final_cost,omitempty"`
}

// Query defines filters for retrieving records. Zero values match everything.
type Query struct {
	Start      time.Time
	End        time.Time
	BookingID  string
	MechanicID string
	To         model.Status
}

// Matches reports whether r satisfies q.
func (q Query) Matches(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.BookingID != "" && r.BookingID != q.BookingID {
		return false
	}
	if q.MechanicID != "" && r.MechanicID != q.MechanicID {
		return false
	}
	if q.To != "" && r.To != q.To {
		return false
	}
	return true
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// Config selects and tunes the journal backend.
type Config struct {
	// Backend selects the store type: "memory", "jsonl" or "sqlite".
	Backend string `json:"backend"`
	// Path is the file location of the store.
	Path string `json:"path"`
	// MaxSizeMB enables rotation of the jsonl backend when positive.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.Path == "" {
		switch c.Backend {
		case "sqlite":
			c.Path = "bookings.db"
		case "jsonl":
			c.Path = "bookings.jsonl"
		}
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	switch c.Backend {
	case "memory":
		return nil
	case "jsonl", "sqlite":
		if c.Path == "" {
			return fmt.Errorf("path is required")
		}
		return nil
	}
	return fmt.Errorf("unknown backend %s", c.Backend)
}

// New opens the store described by cfg.
func New(cfg Config) (Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case "jsonl":
		if cfg.MaxSizeMB > 0 {
			return NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
		}
		return NewJSONLStore(cfg.Path)
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	default:
		return NewMemoryStore(), nil
	}
}
