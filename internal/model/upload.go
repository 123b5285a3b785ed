package model

import "time"

// UploadRequest is the immutable input of one ingestion attempt.
type UploadRequest struct {
	Data              []byte
	FileName          string
	ContentType       string
	DatasetName       string
	Description       string
	OwnerID           uint
	OverwriteTargetID uint
}

// UploadState is one stage of the ingestion state machine.
type UploadState string

const (
	StateIdle              UploadState = "idle"
	StateValidating        UploadState = "validating"
	StateProbing           UploadState = "probing"
	StateBootstrapping     UploadState = "bootstrapping"
	StateAwaitingOverwrite UploadState = "awaiting_overwrite_confirm"
	StateTransferring      UploadState = "transferring"
	StateRecordWriting     UploadState = "record_writing"
	StateComplete          UploadState = "complete"
	StateFailed            UploadState = "failed"
)

// ChunkStatus tracks one chunk through the chunked transfer engine.
type ChunkStatus string

const (
	ChunkPending  ChunkStatus = "pending"
	ChunkUploaded ChunkStatus = "uploaded"
	ChunkFailed   ChunkStatus = "failed"
)

// ChunkDescriptor describes one contiguous byte range of a chunked upload.
// Descriptors are owned by the transfer engine for the duration of a single
// upload; in index order their ranges reconstruct the file exactly once.
type ChunkDescriptor struct {
	Index      int
	Start      int64 // inclusive
	End        int64 // exclusive
	RemotePath string
	Status     ChunkStatus
}

// UploadStatus is the poll surface of an upload attempt.
type UploadStatus struct {
	Handle     string         `json:"handle"`
	State      UploadState    `json:"state"`
	Progress   int            `json:"progress"`
	Error      string         `json:"error,omitempty"`
	Retryable  bool           `json:"retryable,omitempty"`
	ConflictID uint           `json:"conflict_id,omitempty"`
	Dataset    *DatasetRecord `json:"dataset,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
}

// PreviewRows are the sampled rows cached for the UI before the dataset
// record exists. Advisory only, safe to evict at any time.
type PreviewRows struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}
