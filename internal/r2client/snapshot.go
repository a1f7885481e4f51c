package r2client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/garyellow/dr-matricula-go/internal/catalog"
	domerrors "github.com/garyellow/dr-matricula-go/internal/errors"
	"github.com/garyellow/dr-matricula-go/internal/refcache"
)

// DefaultSnapshotKey is used when Config.SnapshotKey is empty.
const DefaultSnapshotKey = "catalog/snapshot.json.zst"

const maxSnapshotSize = 16 << 20

type snapshotDoc struct {
	Version     int              `json:"version"`
	FetchedAt   time.Time        `json:"fetched_at"`
	Fingerprint string           `json:"fingerprint"`
	Catalog     *catalog.Catalog `json:"catalog"`
}

// Name identifies the store in logs.
func (c *Client) Name() string {
	return "r2"
}

// SaveSnapshot uploads snap as a compressed object, replacing the previous one.
func (c *Client) SaveSnapshot(ctx context.Context, snap refcache.Snapshot) error {
	if snap.Catalog == nil {
		return fmt.Errorf("r2client: save snapshot: %w", domerrors.ErrInvalidInput)
	}
	fingerprint := snap.Fingerprint
	if fingerprint == "" {
		fingerprint = snap.Catalog.Fingerprint()
	}
	raw, err := json.Marshal(snapshotDoc{
		Version:     1,
		FetchedAt:   snap.FetchedAt.UTC(),
		Fingerprint: fingerprint,
		Catalog:     snap.Catalog,
	})
	if err != nil {
		return fmt.Errorf("r2client: encode snapshot: %w", err)
	}
	compressed, err := compress(raw)
	if err != nil {
		return err
	}
	_, err = c.Upload(ctx, c.snapshotKey, bytes.NewReader(compressed), "application/zstd")
	return err
}

// LoadSnapshot downloads the stored snapshot. Returns domerrors.ErrNotFound
// when the object does not exist.
func (c *Client) LoadSnapshot(ctx context.Context) (*refcache.Snapshot, error) {
	body, _, err := c.Download(ctx, c.snapshotKey)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	decoder, err := zstd.NewReader(body)
	if err != nil {
		return nil, fmt.Errorf("r2client: create decoder: %w", err)
	}
	defer decoder.Close()

	raw, err := io.ReadAll(io.LimitReader(decoder, maxSnapshotSize))
	if err != nil {
		return nil, fmt.Errorf("r2client: decompress snapshot: %w", err)
	}

	var doc snapshotDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("r2client: decode snapshot: %w", err)
	}
	if doc.Catalog == nil {
		return nil, fmt.Errorf("r2client: snapshot has no catalog: %w", domerrors.ErrNotFound)
	}
	return &refcache.Snapshot{
		Catalog:     doc.Catalog,
		FetchedAt:   doc.FetchedAt,
		Fingerprint: doc.Fingerprint,
	}, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	encoder, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("r2client: create encoder: %w", err)
	}
	if _, err := encoder.Write(data); err != nil {
		_ = encoder.Close()
		return nil, fmt.Errorf("r2client: compress: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("r2client: close encoder: %w", err)
	}
	return buf.Bytes(), nil
}
