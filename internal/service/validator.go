package service

import (
	"path/filepath"
	"strings"

	"vizboard/dashboard/internal/model"
	"vizboard/dashboard/internal/pkg/ingesterr"
)

// Extensions and MIME types accepted for ingestion.
var supportedExtensions = map[string]bool{
	".csv":  true,
	".json": true,
	".xls":  true,
	".xlsx": true,
}

var supportedMIMETypes = map[string]bool{
	"text/csv":         true,
	"application/csv":  true,
	"application/json": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
}

// ValidateUpload rejects unsupported or empty files before any I/O happens.
// Pure and synchronous: a rejected file never reaches the storage layer or
// the metadata store.
func ValidateUpload(req *model.UploadRequest) error {
	if req.FileName == "" {
		return ingesterr.NewValidation("file name is required")
	}
	if len(req.Data) == 0 {
		return ingesterr.NewValidation("file is empty")
	}
	if strings.TrimSpace(req.DatasetName) == "" {
		return ingesterr.NewValidation("dataset name is required")
	}

	ext := strings.ToLower(filepath.Ext(req.FileName))
	if supportedExtensions[ext] {
		return nil
	}

	// Extension unknown: fall back to the declared MIME type. Browsers are
	// inconsistent about one or the other.
	mime := strings.ToLower(strings.TrimSpace(req.ContentType))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if supportedMIMETypes[mime] {
		return nil
	}

	return ingesterr.NewValidation("unsupported file type: only csv, json, xls and xlsx are accepted")
}
