package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"vizboard/dashboard/internal/model"
	"vizboard/dashboard/internal/service"
)

type datasetRepository struct {
	db *gorm.DB
}

func NewDatasetRepository(db *gorm.DB) service.DatasetRepository {
	return &datasetRepository{db: db}
}

func (r *datasetRepository) Insert(ctx context.Context, record *model.DatasetRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *datasetRepository) Update(ctx context.Context, record *model.DatasetRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

func (r *datasetRepository) FindByID(ctx context.Context, id uint) (*model.DatasetRecord, error) {
	var record model.DatasetRecord
	err := r.db.WithContext(ctx).First(&record, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *datasetRepository) FindByOwnerAndName(ctx context.Context, ownerID uint, name string) (*model.DatasetRecord, error) {
	var record model.DatasetRecord
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND name = ?", ownerID, name).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *datasetRepository) ListByOwner(ctx context.Context, ownerID uint) ([]model.DatasetRecord, error) {
	var records []model.DatasetRecord
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("updated_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *datasetRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&model.DatasetRecord{}, id).Error
}
