package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vizboard/dashboard/internal/model"
	"vizboard/dashboard/internal/service"
)

// previewTTL bounds how long sampled rows stay around. The cache is
// advisory: the record writer never reads it and eviction is always safe.
const previewTTL = 15 * time.Minute

type previewCache struct {
	rdb *redis.Client
}

func NewPreviewCache(rdb *redis.Client) service.PreviewCache {
	return &previewCache{rdb: rdb}
}

func previewKey(attemptID string) string {
	return fmt.Sprintf("upload:%s:preview", attemptID)
}

func (c *previewCache) Save(ctx context.Context, attemptID string, rows *model.PreviewRows) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, previewKey(attemptID), data, previewTTL).Err()
}

func (c *previewCache) Get(ctx context.Context, attemptID string) (*model.PreviewRows, error) {
	data, err := c.rdb.Get(ctx, previewKey(attemptID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rows model.PreviewRows
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return &rows, nil
}

func (c *previewCache) Delete(ctx context.Context, attemptID string) error {
	return c.rdb.Del(ctx, previewKey(attemptID)).Err()
}
