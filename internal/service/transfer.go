package service

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"vizboard/dashboard/internal/model"
	"vizboard/dashboard/internal/pkg/ingesterr"
)

// DirectMaxBytes is the size threshold of the small-file path. Files above
// it still try a direct put first: object-storage backends sometimes reject
// large direct payloads only at the infrastructure layer, not predictably
// by size, so probing is cheaper than always going chunked.
const DirectMaxBytes = int64(10 << 20)

// TransferService picks a transfer path for an upload and runs it, falling
// through an ordered cascade until one path succeeds.
type TransferService struct {
	storage   ObjectStorage
	bootstrap *Bootstrapper
	chunked   *ChunkedEngine
}

func NewTransferService(storage ObjectStorage, bootstrap *Bootstrapper, chunked *ChunkedEngine) *TransferService {
	return &TransferService{storage: storage, bootstrap: bootstrap, chunked: chunked}
}

// Transfer stores req.Data at container/path. Attempt order:
//  1. direct single-shot put, regardless of size;
//  2. for small files, a permission probe plus one guided retry after a
//     bootstrap policy fix;
//  3. the chunked engine;
//  4. one minimal-options direct put (no cache or ACL hints) as the
//     absolute last resort.
func (t *TransferService) Transfer(ctx context.Context, req *model.UploadRequest, container, path string, onProgress func(int)) (model.StoredObject, error) {
	size := int64(len(req.Data))
	var result model.StoredObject

	fullOpts := PutOptions{
		ContentType:  req.ContentType,
		CacheControl: "max-age=3600",
		PublicRead:   true,
	}

	strategies := []Strategy{
		{Name: "direct", Attempt: func(ctx context.Context) error {
			location, err := t.storage.PutObject(ctx, container, path, req.Data, fullOpts)
			if err != nil {
				return err
			}
			result = model.StoredObject{Container: container, Path: path, PublicURL: location, SizeBytes: size}
			return nil
		}},
	}

	if size <= DirectMaxBytes {
		strategies = append(strategies, Strategy{Name: "probe_retry", Attempt: func(ctx context.Context) error {
			if err := t.probePermission(ctx, container); err != nil {
				// Give the bootstrap cascade one chance to fix policies
				// before the guided retry.
				report := t.bootstrap.EnsureContainers(ctx, model.RequiredContainers())
				if report.Degraded {
					log.Printf("transfer: policy fix left storage degraded: missing %v", report.Missing)
				}
			}
			location, err := t.storage.PutObject(ctx, container, path, req.Data, fullOpts)
			if err != nil {
				return err
			}
			result = model.StoredObject{Container: container, Path: path, PublicURL: location, SizeBytes: size}
			return nil
		}})
	}

	strategies = append(strategies,
		Strategy{Name: "chunked", Attempt: func(ctx context.Context) error {
			stored, err := t.chunked.Transfer(ctx, container, path, req.Data, req.ContentType, onProgress)
			if err != nil {
				return err
			}
			result = stored
			return nil
		}},
		Strategy{Name: "minimal_direct", Attempt: func(ctx context.Context) error {
			location, err := t.storage.PutObject(ctx, container, path, req.Data, PutOptions{})
			if err != nil {
				return err
			}
			result = model.StoredObject{Container: container, Path: path, PublicURL: location, SizeBytes: size}
			return nil
		}},
	)

	winner, err := RunCascade(ctx, "transfer", strategies)
	if err != nil {
		if ctx.Err() != nil {
			return model.StoredObject{}, ingesterr.NewCancelled()
		}
		return model.StoredObject{}, ingesterr.NewTransient("file transfer failed", err)
	}

	log.Printf("transfer: stored %s via %s (%d bytes)", path, winner, size)
	if onProgress != nil {
		onProgress(chunkProgressCeiling)
	}
	return result, nil
}

// probePermission writes and removes a tiny marker object to check that the
// container is actually writable before the guided retry.
func (t *TransferService) probePermission(ctx context.Context, container string) error {
	probePath := fmt.Sprintf(".probe/%s", uuid.New().String())
	if _, err := t.storage.PutObject(ctx, container, probePath, []byte("probe"), PutOptions{}); err != nil {
		return fmt.Errorf("permission probe: %w", err)
	}
	if err := t.storage.DeleteObject(ctx, container, probePath); err != nil {
		log.Printf("transfer: removing probe object: %v", err)
	}
	return nil
}
