package service

import (
	"context"

	"vizboard/dashboard/internal/model"
)

// PutOptions tune a single object put. The zero value is the minimal-options
// put used as the transfer cascade's last resort (no cache or ACL hints).
type PutOptions struct {
	ContentType  string
	CacheControl string
	PublicRead   bool
}

// ObjectStorage is the outbound port to the blob store. The S3 adapter in
// internal/pkg/storage implements it; tests use in-memory fakes.
type ObjectStorage interface {
	ListContainers(ctx context.Context) ([]string, error)
	CreateContainer(ctx context.Context, name string, publicPolicy bool) error
	DeleteContainer(ctx context.Context, name string) error
	GrantPublicPolicy(ctx context.Context, name string) error
	PutObject(ctx context.Context, container, path string, data []byte, opts PutOptions) (string, error)
	DeleteObject(ctx context.Context, container, path string) error
	MergeChunks(ctx context.Context, container, path string, chunkPaths []string, contentType string) (string, error)
}

// ProvisionClient is the privileged server-side bucket provisioning call,
// the first strategy of the bootstrap cascade. Optional: a nil client skips
// straight to client-side strategies.
type ProvisionClient interface {
	ProvisionContainers(ctx context.Context, names []string) error
}

// DatasetRepository is the outbound port to the metadata store.
type DatasetRepository interface {
	Insert(ctx context.Context, record *model.DatasetRecord) error
	Update(ctx context.Context, record *model.DatasetRecord) error
	FindByID(ctx context.Context, id uint) (*model.DatasetRecord, error)
	FindByOwnerAndName(ctx context.Context, ownerID uint, name string) (*model.DatasetRecord, error)
	ListByOwner(ctx context.Context, ownerID uint) ([]model.DatasetRecord, error)
	Delete(ctx context.Context, id uint) error
}

// PreviewCache holds sampled preview rows so the UI can render them before
// the dataset record exists. Advisory only: never a source of truth.
type PreviewCache interface {
	Save(ctx context.Context, attemptID string, rows *model.PreviewRows) error
	Get(ctx context.Context, attemptID string) (*model.PreviewRows, error)
	Delete(ctx context.Context, attemptID string) error
}

// Notifier pushes upload lifecycle events to connected dashboards.
type Notifier interface {
	NotifyProgress(ownerID uint, handle string, percent int)
	NotifyComplete(ownerID uint, handle string, record *model.DatasetRecord)
	NotifyFailed(ownerID uint, handle string, reason string, retryable bool)
	NotifyDatasetsChanged(ownerID uint)
}
