package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"vizboard/dashboard/internal/model"
	"vizboard/dashboard/internal/pkg/ingesterr"
)

func testChunkData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestBuildChunkDescriptorsCoverFileExactly(t *testing.T) {
	chunks := buildChunkDescriptors(70, 10, "datasets/1/file.csv")

	if len(chunks) != 7 {
		t.Fatalf("chunks = %d, want 7", len(chunks))
	}
	var next int64
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d index = %d", i, c.Index)
		}
		if c.Start != next {
			t.Errorf("chunk %d starts at %d, want %d (no gaps or overlaps)", i, c.Start, next)
		}
		if c.End <= c.Start {
			t.Errorf("chunk %d has empty range [%d, %d)", i, c.Start, c.End)
		}
		next = c.End
	}
	if next != 70 {
		t.Errorf("ranges end at %d, want 70", next)
	}
}

func TestChunkedTransferRoundTrip(t *testing.T) {
	storage := newFakeStorage(model.ContainerPrimary)
	engine := NewChunkedEngine(storage, 10)
	engine.retryDelay = time.Millisecond

	data := testChunkData(70) // 7 chunks, batches of 3, 3, 1

	var mu sync.Mutex
	var progress []int
	stored, err := engine.Transfer(context.Background(), model.ContainerPrimary, "datasets/1/file.csv", data, "text/csv", func(p int) {
		mu.Lock()
		progress = append(progress, p)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}

	merged, ok := storage.object(model.ContainerPrimary, "datasets/1/file.csv")
	if !ok {
		t.Fatal("merged object missing")
	}
	if !bytes.Equal(merged, data) {
		t.Error("merged object is not byte-identical to the source")
	}
	if stored.SizeBytes != 70 {
		t.Errorf("stored size = %d, want 70", stored.SizeBytes)
	}

	// Bounded concurrency: at most one batch of 3 in flight at any instant.
	if storage.maxInFlight > chunkBatchSize {
		t.Errorf("max in-flight uploads = %d, want <= %d", storage.maxInFlight, chunkBatchSize)
	}

	// One progress tick per batch, capped below the merge reserve.
	want := []int{30, 60, 90}
	if len(progress) != len(want) {
		t.Fatalf("progress = %v, want %v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Errorf("progress[%d] = %d, want %d", i, progress[i], want[i])
		}
	}

	// Chunk objects are cleaned up after the merge; only the final object
	// remains.
	if got := storage.objectCount(model.ContainerPrimary); got != 1 {
		t.Errorf("objects left = %d, want 1", got)
	}
}

func TestChunkedTransferRetriesFailedChunk(t *testing.T) {
	storage := newFakeStorage(model.ContainerPrimary)
	engine := NewChunkedEngine(storage, 10)
	engine.retryDelay = time.Millisecond

	var mu sync.Mutex
	failed := map[string]bool{}
	storage.putHook = func(container, path string) error {
		mu.Lock()
		defer mu.Unlock()
		if !failed[path] {
			failed[path] = true
			return fmt.Errorf("transient failure")
		}
		return nil
	}

	data := testChunkData(35)
	_, err := engine.Transfer(context.Background(), model.ContainerPrimary, "datasets/1/file.csv", data, "text/csv", nil)
	if err != nil {
		t.Fatalf("Transfer() error = %v, every chunk should succeed on retry", err)
	}

	merged, _ := storage.object(model.ContainerPrimary, "datasets/1/file.csv")
	if !bytes.Equal(merged, data) {
		t.Error("merged object is not byte-identical to the source")
	}
}

func TestChunkedTransferFailsAfterRetryExhaustion(t *testing.T) {
	storage := newFakeStorage(model.ContainerPrimary)
	engine := NewChunkedEngine(storage, 10)
	engine.retryDelay = time.Millisecond

	storage.putHook = func(container, path string) error {
		return fmt.Errorf("persistent failure")
	}

	_, err := engine.Transfer(context.Background(), model.ContainerPrimary, "datasets/1/file.csv", testChunkData(25), "text/csv", nil)
	if err == nil {
		t.Fatal("Transfer() = nil, want error")
	}
	if ingesterr.KindOf(err) != ingesterr.KindTransientNetwork {
		t.Errorf("kind = %v, want transient_network", ingesterr.KindOf(err))
	}
}

func TestChunkedTransferMergeFailureIsHard(t *testing.T) {
	storage := newFakeStorage(model.ContainerPrimary)
	engine := NewChunkedEngine(storage, 10)
	engine.retryDelay = time.Millisecond
	storage.mergeErr = errors.New("merge rejected")

	_, err := engine.Transfer(context.Background(), model.ContainerPrimary, "datasets/1/file.csv", testChunkData(25), "text/csv", nil)
	if err == nil {
		t.Fatal("Transfer() = nil, want merge error: an unmerged path must never pass as a complete object")
	}
	if ingesterr.KindOf(err) != ingesterr.KindMerge {
		t.Errorf("kind = %v, want merge", ingesterr.KindOf(err))
	}
}

func TestChunkedTransferHonorsCancellation(t *testing.T) {
	storage := newFakeStorage(model.ContainerPrimary)
	engine := NewChunkedEngine(storage, 10)
	engine.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Transfer(ctx, model.ContainerPrimary, "datasets/1/file.csv", testChunkData(25), "text/csv", nil)
	if ingesterr.KindOf(err) != ingesterr.KindCancelled {
		t.Errorf("kind = %v, want cancelled", ingesterr.KindOf(err))
	}
}
