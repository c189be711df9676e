/*
Package file persists the snapshot as a single JSON document.

PURPOSE:
  The whole system state fits in one file, rewritten atomically on every
  mutating operation: encode to a temp file in the same directory, fsync,
  then rename over the target. A crash mid-write leaves the prior
  snapshot intact - the rename either happened or it didn't.
*/
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/packhouse/stock-engine/tracker"
)

// =============================================================================
// FILE GATEWAY
// =============================================================================

type Gateway struct {
	path string
}

func New(path string) *Gateway { return &Gateway{path: path} }

func (g *Gateway) Load(_ context.Context) (*tracker.Snapshot, error) {
	data, err := os.ReadFile(g.path)
	if os.IsNotExist(err) {
		return nil, tracker.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", g.path, err)
	}
	var snap tracker.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", g.path, err)
	}
	return &snap, nil
}

// Save writes the snapshot with write-then-rename atomicity. The temp
// file lives in the target directory so the rename stays on one
// filesystem.
func (g *Gateway) Save(_ context.Context, snap *tracker.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	dir := filepath.Dir(g.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(g.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), g.path); err != nil {
		return fmt.Errorf("replacing %s: %w", g.path, err)
	}
	return nil
}
