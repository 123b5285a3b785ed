package model

import (
	"time"

	"gorm.io/gorm"
)

// ColumnType is the inferred data type of a single dataset column.
type ColumnType string

const (
	ColumnString  ColumnType = "string"
	ColumnNumber  ColumnType = "number"
	ColumnInteger ColumnType = "integer"
	ColumnBoolean ColumnType = "boolean"
	ColumnDate    ColumnType = "date"
)

// ColumnSchema is one column of an inferred schema. Columns keep the
// insertion order of the source file headers.
type ColumnSchema struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// SchemaMap maps column names to inferred types, preserving header order.
type SchemaMap []ColumnSchema

func (s SchemaMap) TypeOf(name string) (ColumnType, bool) {
	for _, c := range s {
		if c.Name == name {
			return c.Type, true
		}
	}
	return "", false
}

func (s SchemaMap) Columns() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

func (s SchemaMap) Equal(other SchemaMap) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// FallbackSchema is returned whenever sampling or parsing fails. Schema
// inference must never abort an ingestion.
func FallbackSchema() SchemaMap {
	return SchemaMap{
		{Name: "Column1", Type: ColumnString},
		{Name: "Value", Type: ColumnNumber},
	}
}

// DatasetRecord is the durable metadata row for one ingested file. Name is
// unique per owner by convention; a collision goes through the overwrite
// workflow instead of a hard constraint error.
type DatasetRecord struct {
	gorm.Model
	Name             string    `json:"name" gorm:"index:idx_owner_name"`
	Description      string    `json:"description"`
	OwnerID          uint      `json:"owner_id" gorm:"index:idx_owner_name"`
	FileName         string    `json:"file_name"`
	FileSizeBytes    int64     `json:"file_size_bytes"`
	StorageContainer string    `json:"storage_container"`
	StoragePath      string    `json:"storage_path"`
	RowCountEstimate int64     `json:"row_count_estimate"`
	Schema           SchemaMap `json:"schema" gorm:"type:jsonb;serializer:json"`
}

// StoredObject is the location of a successfully transferred file.
type StoredObject struct {
	Container string `json:"container"`
	Path      string `json:"path"`
	PublicURL string `json:"public_url"`
	SizeBytes int64  `json:"size_bytes"`
}

// Required storage containers. Callers must not assume any other exists.
const (
	ContainerPrimary = "primary"
	ContainerSecure  = "secure"
	ContainerArchive = "archive"
)

func RequiredContainers() []string {
	return []string{ContainerPrimary, ContainerSecure, ContainerArchive}
}

// BootstrapReport describes the outcome of the container bootstrap cascade.
// Degraded means no strategy could verify every container, but ingestion
// proceeds anyway: some backends report false negatives on listing while
// uploads still succeed.
type BootstrapReport struct {
	Strategy  string    `json:"strategy"`
	Missing   []string  `json:"missing,omitempty"`
	Degraded  bool      `json:"degraded"`
	CheckedAt time.Time `json:"checked_at"`
}
