package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"vizboard/dashboard/internal/model"
	"vizboard/dashboard/internal/pkg/auth"
	"vizboard/dashboard/internal/pkg/httputils"
	"vizboard/dashboard/internal/service"
	"vizboard/dashboard/internal/ws"
)

// maxUploadMemoryBytes bounds how much of the multipart form stays in
// memory during parsing; larger files spill to temp files.
const maxUploadMemoryBytes = 64 << 20

type UploadHandler struct {
	uploads *service.UploadManager
	hub     *ws.Hub
}

func NewUploadHandler(uploads *service.UploadManager, hub *ws.Hub) *UploadHandler {
	return &UploadHandler{uploads: uploads, hub: hub}
}

func (h *UploadHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/upload", h.beginUpload).Methods("POST", "OPTIONS")
	router.HandleFunc("/upload/{id}", h.uploadStatus).Methods("GET", "OPTIONS")
	router.HandleFunc("/upload/{id}/preview", h.uploadPreview).Methods("GET", "OPTIONS")
	router.HandleFunc("/upload/{id}/confirm", h.confirmOverwrite).Methods("POST", "OPTIONS")
	router.HandleFunc("/upload/{id}/cancel", h.cancelUpload).Methods("POST", "OPTIONS")
	router.HandleFunc("/upload/{id}/retry", h.retryUpload).Methods("POST", "OPTIONS")
}

// RegisterStreamRoutes attaches the websocket endpoint at the server root,
// outside the /api prefix.
func (h *UploadHandler) RegisterStreamRoutes(router *mux.Router) {
	router.HandleFunc("/ws/events", h.events).Methods("GET")
}

func authorize(r *http.Request) (*auth.Claims, error) {
	tokenStr := r.Header.Get("Bearer")
	if tokenStr == "" {
		return nil, errors.New("missing token")
	}
	return auth.ValidateToken(tokenStr)
}

type beginUploadResponse struct {
	Handle string `json:"handle"`
}

// @Summary Begin dataset upload
// @Description Starts the ingestion pipeline for an uploaded file
// @ID begin-upload
// @Accept mpfd
// @Produce json
// @Param Bearer header string true "Auth Token"
// @Param file formData file true "Tabular file (csv, json, xls, xlsx)"
// @Param dataset_name formData string true "Dataset name"
// @Param description formData string false "Dataset description"
// @Success 202 {object} beginUploadResponse
// @Failure 400 {object} httputils.ErrorResponse
// @Failure 401 {object} httputils.ErrorResponse
// @Router /upload [post]
func (h *UploadHandler) beginUpload(w http.ResponseWriter, r *http.Request) {
	claims, err := authorize(r)
	if err != nil {
		httputils.ResponseError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemoryBytes); err != nil {
		httputils.ResponseError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputils.ResponseError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httputils.ResponseError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	var overwriteTargetID uint
	if v := r.FormValue("overwrite_target_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			httputils.ResponseError(w, http.StatusBadRequest, "invalid overwrite_target_id")
			return
		}
		overwriteTargetID = uint(id)
	}

	handle := h.uploads.Begin(&model.UploadRequest{
		Data:              data,
		FileName:          header.Filename,
		ContentType:       header.Header.Get("Content-Type"),
		DatasetName:       r.FormValue("dataset_name"),
		Description:       r.FormValue("description"),
		OwnerID:           claims.UserID,
		OverwriteTargetID: overwriteTargetID,
	})

	httputils.ResponseJSON(w, http.StatusAccepted, beginUploadResponse{Handle: handle})
}

// @Summary Upload status
// @Description Poll surface for the state and progress of an upload attempt
// @ID upload-status
// @Produce json
// @Param Bearer header string true "Auth Token"
// @Param id path string true "Upload handle"
// @Success 200 {object} model.UploadStatus
// @Failure 404 {object} httputils.ErrorResponse
// @Router /upload/{id} [get]
func (h *UploadHandler) uploadStatus(w http.ResponseWriter, r *http.Request) {
	if _, err := authorize(r); err != nil {
		httputils.ResponseError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	status, err := h.uploads.Status(mux.Vars(r)["id"])
	if err != nil {
		httputils.ResponseError(w, http.StatusNotFound, "unknown upload")
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, status)
}

// @Summary Upload preview rows
// @Description Sampled rows cached during schema inference, if still present
// @ID upload-preview
// @Produce json
// @Param Bearer header string true "Auth Token"
// @Param id path string true "Upload handle"
// @Success 200 {object} model.PreviewRows
// @Failure 404 {object} httputils.ErrorResponse
// @Router /upload/{id}/preview [get]
func (h *UploadHandler) uploadPreview(w http.ResponseWriter, r *http.Request) {
	if _, err := authorize(r); err != nil {
		httputils.ResponseError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	rows, err := h.uploads.Preview(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputils.ResponseError(w, http.StatusNotFound, "unknown upload")
		return
	}
	if rows == nil {
		httputils.ResponseError(w, http.StatusNotFound, "preview expired")
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, rows)
}

// @Summary Confirm overwrite
// @Description Resumes an upload paused on a duplicate-name conflict
// @ID confirm-overwrite
// @Produce json
// @Param Bearer header string true "Auth Token"
// @Param id path string true "Upload handle"
// @Success 204
// @Failure 409 {object} httputils.ErrorResponse
// @Router /upload/{id}/confirm [post]
func (h *UploadHandler) confirmOverwrite(w http.ResponseWriter, r *http.Request) {
	if _, err := authorize(r); err != nil {
		httputils.ResponseError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	if err := h.uploads.ConfirmOverwrite(mux.Vars(r)["id"]); err != nil {
		h.transitionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary Cancel upload
// @Description Aborts an upload attempt, including in-flight chunk uploads
// @ID cancel-upload
// @Produce json
// @Param Bearer header string true "Auth Token"
// @Param id path string true "Upload handle"
// @Success 204
// @Failure 409 {object} httputils.ErrorResponse
// @Router /upload/{id}/cancel [post]
func (h *UploadHandler) cancelUpload(w http.ResponseWriter, r *http.Request) {
	if _, err := authorize(r); err != nil {
		httputils.ResponseError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	if err := h.uploads.Cancel(mux.Vars(r)["id"]); err != nil {
		h.transitionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary Retry upload
// @Description Restarts a failed attempt from the transfer stage
// @ID retry-upload
// @Produce json
// @Param Bearer header string true "Auth Token"
// @Param id path string true "Upload handle"
// @Success 204
// @Failure 409 {object} httputils.ErrorResponse
// @Router /upload/{id}/retry [post]
func (h *UploadHandler) retryUpload(w http.ResponseWriter, r *http.Request) {
	if _, err := authorize(r); err != nil {
		httputils.ResponseError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	if err := h.uploads.Retry(mux.Vars(r)["id"]); err != nil {
		h.transitionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UploadHandler) transitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownHandle):
		httputils.ResponseError(w, http.StatusNotFound, "unknown upload")
	case errors.Is(err, service.ErrBadTransition):
		httputils.ResponseError(w, http.StatusConflict, "operation not valid in the current upload state")
	default:
		httputils.ResponseError(w, http.StatusInternalServerError, "internal error")
	}
}

// events upgrades the connection and attaches it to the hub so the client
// receives progress and dataset-changed pushes.
func (h *UploadHandler) events(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.ValidateToken(r.URL.Query().Get("token"))
	if err != nil {
		httputils.ResponseError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	conn, err := ws.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.hub.Register(claims.UserID, conn)
}
