package snapshot

import (
	"context"
	"fmt"

	"transitcat/internal/router"
)

// Store keeps encoded snapshots under a name. Load reports ErrNotFound for a
// name that was never saved.
type Store interface {
	Save(ctx context.Context, name string, blob []byte) error
	Load(ctx context.Context, name string) ([]byte, error)
}

// Save encodes r and writes it to st under name.
func Save(ctx context.Context, st Store, name string, r *router.Router) error {
	blob, err := Encode(r)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return st.Save(ctx, name, blob)
}

// Load reads the snapshot called name from st and restores the router.
func Load(ctx context.Context, st Store, name string) (*router.Router, error) {
	blob, err := st.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	return Decode(blob)
}
