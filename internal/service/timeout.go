package service

import (
	"context"
	"time"
)

// timeoutStorage decorates an ObjectStorage with a per-call deadline so no
// single network call can hang the pipeline indefinitely.
type timeoutStorage struct {
	inner ObjectStorage
	d     time.Duration
}

// WithCallTimeout wraps storage so every call gets its own deadline.
// d <= 0 returns storage unchanged.
func WithCallTimeout(storage ObjectStorage, d time.Duration) ObjectStorage {
	if d <= 0 {
		return storage
	}
	return &timeoutStorage{inner: storage, d: d}
}

func (t *timeoutStorage) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, t.d)
}

func (t *timeoutStorage) ListContainers(ctx context.Context) ([]string, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.inner.ListContainers(ctx)
}

func (t *timeoutStorage) CreateContainer(ctx context.Context, name string, publicPolicy bool) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.inner.CreateContainer(ctx, name, publicPolicy)
}

func (t *timeoutStorage) DeleteContainer(ctx context.Context, name string) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.inner.DeleteContainer(ctx, name)
}

func (t *timeoutStorage) GrantPublicPolicy(ctx context.Context, name string) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.inner.GrantPublicPolicy(ctx, name)
}

func (t *timeoutStorage) PutObject(ctx context.Context, container, path string, data []byte, opts PutOptions) (string, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.inner.PutObject(ctx, container, path, data, opts)
}

func (t *timeoutStorage) DeleteObject(ctx context.Context, container, path string) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.inner.DeleteObject(ctx, container, path)
}

func (t *timeoutStorage) MergeChunks(ctx context.Context, container, path string, chunkPaths []string, contentType string) (string, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.inner.MergeChunks(ctx, container, path, chunkPaths, contentType)
}
