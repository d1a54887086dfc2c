// Package artifact stores rendered invoice documents as immutable blobs and
// coordinates the at-most-once commit of an artifact reference per invoice.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/invoply/invoply-api/internal/store"
)

// FSStore keeps artifact blobs as files under a single directory. References
// are bare file names; the directory never leaks to callers.
type FSStore struct {
	dir string
}

// NewFSStore creates the artifact directory if needed.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create artifact dir")
	}
	return &FSStore{dir: dir}, nil
}

// NewRef generates a fresh unique reference for an invoice's document. The
// random suffix keeps re-rendered documents from colliding with prior ones.
func NewRef(invoiceID uuid.UUID) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("invoice_%s_%s.pdf", invoiceID, suffix)
}

// Put writes data under ref. The write goes through a temp file and rename so
// a reference never resolves to a partially written blob.
func (f *FSStore) Put(ref string, data []byte) error {
	if err := validateRef(ref); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp blob")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "write blob")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "close blob")
	}
	if err := os.Rename(tmpName, filepath.Join(f.dir, ref)); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "publish blob")
	}
	return nil
}

// Get reads the blob for ref.
func (f *FSStore) Get(ref string) ([]byte, error) {
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(f.dir, ref))
	if err != nil {
		return nil, errors.Wrapf(err, "read blob %s", ref)
	}
	return data, nil
}

// Delete removes the blob for ref. Missing blobs are not an error; losers of
// the commit race delete blobs that may already be gone.
func (f *FSStore) Delete(ref string) error {
	if err := validateRef(ref); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(f.dir, ref))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "delete blob %s", ref)
	}
	return nil
}

func validateRef(ref string) error {
	if ref == "" || ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return errors.Errorf("invalid artifact ref %q", ref)
	}
	return nil
}

// BlobStore is the slice of FSStore the cache needs. Kept small so tests can
// substitute failure-injecting implementations.
type BlobStore interface {
	Put(ref string, data []byte) error
	Get(ref string) ([]byte, error)
	Delete(ref string) error
}

// RenderFunc produces the document bytes for an invoice. It must be pure and
// is always invoked outside any store lock.
type RenderFunc func(ctx context.Context) ([]byte, error)

// Cache implements get-or-create for invoice artifacts on top of the
// invoice row's compare-and-set reference commit.
type Cache struct {
	store store.Store
	blobs BlobStore
	log   *zap.Logger
}

// NewCache wires a cache over the given persistence and blob layers.
func NewCache(st store.Store, blobs BlobStore, log *zap.Logger) *Cache {
	return &Cache{store: st, blobs: blobs, log: log}
}

// GetOrCreate returns the invoice's document, rendering and committing it on
// first access. Concurrent callers may all render, but exactly one blob is
// committed; losing callers discard their work and serve the winner's bytes.
// A render or write failure commits nothing, so later calls retry cleanly.
func (c *Cache) GetOrCreate(ctx context.Context, invoiceID uuid.UUID, render RenderFunc) (ref string, data []byte, err error) {
	inv, err := c.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return "", nil, err
	}
	if inv.ArtifactRef != "" {
		data, err := c.blobs.Get(inv.ArtifactRef)
		if err == nil {
			return inv.ArtifactRef, data, nil
		}
		// Reference committed but blob missing (pruned or lost volume).
		// Regenerate in place under the existing reference.
		c.log.Warn("artifact blob missing, regenerating",
			zap.String("invoice_id", invoiceID.String()),
			zap.String("artifact_ref", inv.ArtifactRef))
		data, rerr := render(ctx)
		if rerr != nil {
			return "", nil, rerr
		}
		if err := c.blobs.Put(inv.ArtifactRef, data); err != nil {
			return "", nil, err
		}
		return inv.ArtifactRef, data, nil
	}

	// Render outside any lock, then race to commit.
	data, err = render(ctx)
	if err != nil {
		return "", nil, err
	}
	candidate := NewRef(invoiceID)
	if err := c.blobs.Put(candidate, data); err != nil {
		return "", nil, err
	}

	final, committed, err := c.store.CommitInvoiceArtifact(ctx, invoiceID, candidate)
	if err != nil {
		_ = c.blobs.Delete(candidate)
		return "", nil, err
	}
	if committed {
		return final, data, nil
	}

	// Lost the race: drop our blob and serve the winner's.
	_ = c.blobs.Delete(candidate)
	winner, err := c.blobs.Get(final)
	if err != nil {
		return "", nil, errors.Wrapf(err, "read winning artifact %s", final)
	}
	return final, winner, nil
}

// Replace renders a fresh document and unconditionally supersedes the
// invoice's current reference. The old blob is removed after the swap.
func (c *Cache) Replace(ctx context.Context, invoiceID uuid.UUID, render RenderFunc) (string, []byte, error) {
	inv, err := c.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return "", nil, err
	}
	data, err := render(ctx)
	if err != nil {
		return "", nil, err
	}
	candidate := NewRef(invoiceID)
	if err := c.blobs.Put(candidate, data); err != nil {
		return "", nil, err
	}
	if err := c.store.ReplaceInvoiceArtifact(ctx, invoiceID, candidate); err != nil {
		_ = c.blobs.Delete(candidate)
		return "", nil, err
	}
	if inv.ArtifactRef != "" && inv.ArtifactRef != candidate {
		_ = c.blobs.Delete(inv.ArtifactRef)
	}
	return candidate, data, nil
}
