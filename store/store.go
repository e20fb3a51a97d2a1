// Package store provides the persisted key-value store backing the
// governor's preferences, active profile, and adaptation history.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when no value exists for a key.
var ErrNotFound = errors.New("store: key not found")

// Well-known keys for the governor's persisted records.
const (
	KeyStabilityPreferences = "stabilityPreferences"
	KeyAdaptationHistory    = "adaptationHistory"
	KeyCurrentProfile       = "currentProfile"
	KeyMemoryConfig         = "memoryConfig"
)

// Store is a durable key-value store. Values are opaque byte slices;
// callers that need structure go through GetJSON/SetJSON.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// GetJSON reads key and decodes its value into out.
func GetJSON(ctx context.Context, s Store, key string, out any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v as JSON and writes it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}
