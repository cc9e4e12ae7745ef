// Package storage keeps attachment bytes outside the database.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/taskboard/internal/errs"
)

// ErrTooLarge is returned by Put when the payload exceeds the configured limit.
var ErrTooLarge = fmt.Errorf("%w: attachment too large", errs.ErrValidation)

// BlobStore stores opaque bytes under generated keys.
type BlobStore interface {
	// Put stores r and returns a new key and the number of bytes written.
	Put(ctx context.Context, r io.Reader) (key string, size int64, err error)
	// Open returns a reader over the bytes stored under key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the bytes under key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}

// Disk is a BlobStore backed by a flat directory; file names are UUIDv4 keys.
type Disk struct {
	dir      string
	maxBytes int64
}

var _ BlobStore = (*Disk)(nil)

// NewDisk creates dir if needed. maxBytes <= 0 disables the size limit.
func NewDisk(dir string, maxBytes int64) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("storage dir: %w", err)
	}
	return &Disk{dir: dir, maxBytes: maxBytes}, nil
}

func (d *Disk) path(key string) (string, error) {
	id, err := uuid.FromString(key)
	if err != nil || id.Version() != uuid.V4 {
		return "", fmt.Errorf("%w: bad storage key", errs.ErrValidation)
	}
	return filepath.Join(d.dir, id.String()), nil
}

// Put writes r to a new file. A payload over the limit is removed and ErrTooLarge returned.
func (d *Disk) Put(ctx context.Context, r io.Reader) (key string, size int64, err error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", 0, err
	}
	key = id.String()
	p := filepath.Join(d.dir, key)

	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, err
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(p)
		}
	}()

	src := io.Reader(&ctxReader{ctx: ctx, r: r})
	if d.maxBytes > 0 {
		src = io.LimitReader(src, d.maxBytes+1)
	}
	size, err = io.Copy(f, src)
	if err != nil {
		return "", 0, err
	}
	if d.maxBytes > 0 && size > d.maxBytes {
		return "", 0, ErrTooLarge
	}
	return key, size, nil
}

// Open opens the file stored under key.
func (d *Disk) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := d.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errs.ErrNotFound
	}
	return f, err
}

// Delete removes the file stored under key.
func (d *Disk) Delete(_ context.Context, key string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ctxReader stops a long copy once the request context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
