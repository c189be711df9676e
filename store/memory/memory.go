// Package memory provides an in-memory Gateway for tests and dev runs.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/packhouse/stock-engine/tracker"
)

// =============================================================================
// MEMORY GATEWAY
// =============================================================================

// Gateway keeps the latest snapshot as serialized bytes, so loads hand
// back deep copies and callers can never alias the stored state.
type Gateway struct {
	mu    sync.RWMutex
	data  []byte
	saves int

	// FailNextSave makes the next Save return an error, for exercising
	// the retryable save-failure path.
	FailNextSave bool
}

func New() *Gateway { return &Gateway{} }

func (g *Gateway) Load(_ context.Context) (*tracker.Snapshot, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.data == nil {
		return nil, tracker.ErrNoSnapshot
	}
	var snap tracker.Snapshot
	if err := json.Unmarshal(g.data, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snap, nil
}

func (g *Gateway) Save(_ context.Context, snap *tracker.Snapshot) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailNextSave {
		g.FailNextSave = false
		return errors.New("simulated save failure")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	g.data = data
	g.saves++
	return nil
}

// Saves returns how many successful saves have happened. Tests use this
// to assert the persist-on-every-mutation contract.
func (g *Gateway) Saves() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.saves
}
