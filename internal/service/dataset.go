package service

import (
	"context"
	"fmt"
	"log"
	"sync"

	"vizboard/dashboard/internal/model"
	"vizboard/dashboard/internal/pkg/ingesterr"
)

// RecordMeta is everything the writer needs to persist one ingestion result.
type RecordMeta struct {
	Name             string
	Description      string
	OwnerID          uint
	FileName         string
	Stored           model.StoredObject
	RowCountEstimate int64
	Schema           model.SchemaMap
}

// DatasetService persists dataset records and serves the read side consumed
// by dashboards and listings.
type DatasetService struct {
	repo     DatasetRepository
	storage  ObjectStorage
	notifier Notifier

	// Serializes check-then-write per (ownerID, name). The duplicate check
	// is only best-effort across processes; in-process it is atomic.
	names sync.Map // string -> *sync.Mutex
}

func NewDatasetService(repo DatasetRepository, storage ObjectStorage, notifier Notifier) *DatasetService {
	return &DatasetService{repo: repo, storage: storage, notifier: notifier}
}

func (s *DatasetService) nameLock(ownerID uint, name string) *sync.Mutex {
	key := fmt.Sprintf("%d/%s", ownerID, name)
	mu, _ := s.names.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// CheckConflict returns the existing record for (ownerID, name), if any,
// without writing anything. The caller decides whether to overwrite.
func (s *DatasetService) CheckConflict(ctx context.Context, ownerID uint, name string) (*model.DatasetRecord, error) {
	return s.repo.FindByOwnerAndName(ctx, ownerID, name)
}

// WriteRecord persists meta as a DatasetRecord. Without isOverwrite a name
// collision returns a conflict error carrying the existing id and performs
// no writes. With it, the previous object is deleted best-effort and the
// record is updated in place.
//
// The write itself is a three-tier fallback: the full record, then the same
// record with schema and description blanked, then a minimal record with
// only identity fields. Each tier runs only if the previous write errored.
func (s *DatasetService) WriteRecord(ctx context.Context, meta RecordMeta, isOverwrite bool) (*model.DatasetRecord, error) {
	mu := s.nameLock(meta.OwnerID, meta.Name)
	mu.Lock()
	defer mu.Unlock()

	existing, err := s.repo.FindByOwnerAndName(ctx, meta.OwnerID, meta.Name)
	if err != nil {
		return nil, ingesterr.NewConstraint(err)
	}

	if existing != nil && !isOverwrite {
		return nil, ingesterr.NewConflict(existing.ID)
	}

	if existing != nil {
		// Best-effort removal of the object being replaced. A failure here
		// is logged, never fatal.
		if existing.StoragePath != "" {
			if err := s.storage.DeleteObject(ctx, existing.StorageContainer, existing.StoragePath); err != nil {
				log.Printf("dataset overwrite: deleting previous object %s: %v", existing.StoragePath, err)
			}
		}
	}

	record, err := s.writeWithFallback(ctx, meta, existing)
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyDatasetsChanged(meta.OwnerID)
	return record, nil
}

func (s *DatasetService) writeWithFallback(ctx context.Context, meta RecordMeta, existing *model.DatasetRecord) (*model.DatasetRecord, error) {
	full := s.buildRecord(meta, existing)

	simplified := *full
	simplified.Schema = model.SchemaMap{}
	simplified.Description = ""

	minimal := model.DatasetRecord{
		Name:             meta.Name,
		OwnerID:          meta.OwnerID,
		FileName:         meta.FileName,
		FileSizeBytes:    meta.Stored.SizeBytes,
		StorageContainer: meta.Stored.Container,
		StoragePath:      meta.Stored.Path,
		Schema:           model.SchemaMap{},
	}
	if existing != nil {
		minimal.Model = existing.Model
	}

	var written *model.DatasetRecord
	var lastErr error
	for _, tier := range []*model.DatasetRecord{full, &simplified, &minimal} {
		if err := s.persist(ctx, tier, existing != nil); err != nil {
			lastErr = err
			log.Printf("dataset write tier failed, simplifying: %v", err)
			continue
		}
		written = tier
		break
	}
	if written == nil {
		return nil, ingesterr.NewConstraint(lastErr)
	}
	return written, nil
}

func (s *DatasetService) buildRecord(meta RecordMeta, existing *model.DatasetRecord) *model.DatasetRecord {
	record := &model.DatasetRecord{
		Name:             meta.Name,
		Description:      meta.Description,
		OwnerID:          meta.OwnerID,
		FileName:         meta.FileName,
		FileSizeBytes:    meta.Stored.SizeBytes,
		StorageContainer: meta.Stored.Container,
		StoragePath:      meta.Stored.Path,
		RowCountEstimate: meta.RowCountEstimate,
		Schema:           meta.Schema,
	}
	if existing != nil {
		record.Model = existing.Model
	}
	return record
}

func (s *DatasetService) persist(ctx context.Context, record *model.DatasetRecord, overwrite bool) error {
	if overwrite {
		return s.repo.Update(ctx, record)
	}
	return s.repo.Insert(ctx, record)
}

// GetDataset returns one record by id, scoped to its owner.
func (s *DatasetService) GetDataset(ctx context.Context, ownerID, id uint) (*model.DatasetRecord, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil || record.OwnerID != ownerID {
		return nil, nil
	}
	return record, nil
}

// ListDatasets returns all records of one owner.
func (s *DatasetService) ListDatasets(ctx context.Context, ownerID uint) ([]model.DatasetRecord, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// DeleteDataset removes the record and best-effort deletes its object.
func (s *DatasetService) DeleteDataset(ctx context.Context, ownerID, id uint) error {
	record, err := s.GetDataset(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}
	if record.StoragePath != "" {
		if err := s.storage.DeleteObject(ctx, record.StorageContainer, record.StoragePath); err != nil {
			log.Printf("dataset delete: removing object %s: %v", record.StoragePath, err)
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.notifier.NotifyDatasetsChanged(ownerID)
	return nil
}
