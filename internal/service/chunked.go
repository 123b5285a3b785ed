package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"vizboard/dashboard/internal/model"
	"vizboard/dashboard/internal/pkg/ingesterr"
)

const (
	// DefaultChunkSizeBytes is the chunk size of the large-file path.
	DefaultChunkSizeBytes = int64(50 << 20)

	// chunkBatchSize bounds concurrent chunk uploads. All chunks of a batch
	// are dispatched together and the whole batch is awaited before the next
	// starts.
	chunkBatchSize = 3

	// Per-chunk retry: bounded attempts with a fixed delay between them.
	chunkRetryAttempts = 3
	chunkRetryDelay    = 2 * time.Second

	// The last 10% of progress is reserved for the merge step so the UI
	// never reports completion before the merge confirms.
	chunkProgressCeiling = 90
)

// ChunkedEngine splits a file into contiguous byte-range chunks and uploads
// them in bounded-concurrency batches, then finalizes with a server-side
// merge of the ordered chunk paths.
type ChunkedEngine struct {
	storage    ObjectStorage
	chunkSize  int64
	retryDelay time.Duration
}

func NewChunkedEngine(storage ObjectStorage, chunkSize int64) *ChunkedEngine {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSizeBytes
	}
	return &ChunkedEngine{storage: storage, chunkSize: chunkSize, retryDelay: chunkRetryDelay}
}

// buildChunkDescriptors slices [0, size) into contiguous, non-overlapping
// ranges. In index order the ranges reconstruct the file exactly once.
func buildChunkDescriptors(size, chunkSize int64, basePath string) []model.ChunkDescriptor {
	total := int((size + chunkSize - 1) / chunkSize)
	chunks := make([]model.ChunkDescriptor, 0, total)
	for i := 0; i < total; i++ {
		start := int64(i) * chunkSize
		end := start + chunkSize
		if end > size {
			end = size
		}
		chunks = append(chunks, model.ChunkDescriptor{
			Index:      i,
			Start:      start,
			End:        end,
			RemotePath: fmt.Sprintf("%s.part%03d", basePath, i),
			Status:     model.ChunkPending,
		})
	}
	return chunks
}

// Transfer uploads data to container/path chunk by chunk and merges the
// chunks server-side. A merge failure is a hard error: an unmerged path is
// never treated as a complete object.
func (e *ChunkedEngine) Transfer(ctx context.Context, container, path string, data []byte, contentType string, onProgress func(int)) (model.StoredObject, error) {
	chunks := buildChunkDescriptors(int64(len(data)), e.chunkSize, path)
	totalBatches := (len(chunks) + chunkBatchSize - 1) / chunkBatchSize

	for batch := 0; batch < totalBatches; batch++ {
		if err := ctx.Err(); err != nil {
			e.cleanupChunks(container, chunks)
			return model.StoredObject{}, ingesterr.NewCancelled()
		}

		lo := batch * chunkBatchSize
		hi := lo + chunkBatchSize
		if hi > len(chunks) {
			hi = len(chunks)
		}

		var wg sync.WaitGroup
		errs := make([]error, hi-lo)
		for i := lo; i < hi; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i-lo] = e.uploadChunk(ctx, container, &chunks[i], data, contentType)
			}(i)
		}
		wg.Wait()

		if err := errors.Join(errs...); err != nil {
			e.cleanupChunks(container, chunks)
			if ctx.Err() != nil {
				return model.StoredObject{}, ingesterr.NewCancelled()
			}
			return model.StoredObject{}, ingesterr.NewTransient("chunk upload failed", err)
		}

		if onProgress != nil {
			pct := int(math.Round(float64(batch+1) / float64(totalBatches) * chunkProgressCeiling))
			if pct > chunkProgressCeiling {
				pct = chunkProgressCeiling
			}
			onProgress(pct)
		}
	}

	chunkPaths := make([]string, len(chunks))
	for i, c := range chunks {
		chunkPaths[i] = c.RemotePath
	}

	location, err := e.storage.MergeChunks(ctx, container, path, chunkPaths, contentType)
	if err != nil {
		// The chunks are orphaned now; clean up what we can, but the
		// transfer has failed either way.
		e.cleanupChunks(container, chunks)
		return model.StoredObject{}, ingesterr.NewMerge(err)
	}

	e.cleanupChunks(container, chunks)

	return model.StoredObject{
		Container: container,
		Path:      path,
		PublicURL: location,
		SizeBytes: int64(len(data)),
	}, nil
}

// uploadChunk puts one chunk with bounded fixed-delay retries. On success
// the descriptor moves to Uploaded; on exhaustion it is marked Failed and
// the whole transfer fails.
func (e *ChunkedEngine) uploadChunk(ctx context.Context, container string, chunk *model.ChunkDescriptor, data []byte, contentType string) error {
	body := data[chunk.Start:chunk.End]

	var lastErr error
	for attempt := 1; attempt <= chunkRetryAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(e.retryDelay):
			case <-ctx.Done():
				chunk.Status = model.ChunkFailed
				return ctx.Err()
			}
		}

		_, err := e.storage.PutObject(ctx, container, chunk.RemotePath, body, PutOptions{ContentType: contentType})
		if err == nil {
			chunk.Status = model.ChunkUploaded
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		log.Printf("chunk %d attempt %d/%d failed: %v", chunk.Index, attempt, chunkRetryAttempts, err)
	}

	chunk.Status = model.ChunkFailed
	return fmt.Errorf("chunk %d: %w", chunk.Index, lastErr)
}

// cleanupChunks best-effort deletes uploaded chunk objects. Failures are
// logged only; orphaned chunks are not fatal.
func (e *ChunkedEngine) cleanupChunks(container string, chunks []model.ChunkDescriptor) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, c := range chunks {
		if c.Status != model.ChunkUploaded {
			continue
		}
		if err := e.storage.DeleteObject(ctx, container, c.RemotePath); err != nil {
			log.Printf("cleanup chunk %s: %v", c.RemotePath, err)
		}
	}
}
