package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"vizboard/dashboard/internal/pkg/httputils"
	"vizboard/dashboard/internal/service"
)

type DatasetHandler struct {
	datasets *service.DatasetService
}

func NewDatasetHandler(datasets *service.DatasetService) *DatasetHandler {
	return &DatasetHandler{datasets: datasets}
}

func (h *DatasetHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/datasets", h.listDatasets).Methods("GET", "OPTIONS")
	router.HandleFunc("/datasets/{id}", h.getDataset).Methods("GET", "OPTIONS")
	router.HandleFunc("/datasets/{id}", h.deleteDataset).Methods("DELETE", "OPTIONS")
}

// @Summary List datasets
// @Description All dataset records of the authenticated owner
// @ID list-datasets
// @Produce json
// @Param Bearer header string true "Auth Token"
// @Success 200 {object} []model.DatasetRecord
// @Failure 401 {object} httputils.ErrorResponse
// @Router /datasets [get]
func (h *DatasetHandler) listDatasets(w http.ResponseWriter, r *http.Request) {
	claims, err := authorize(r)
	if err != nil {
		httputils.ResponseError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	records, err := h.datasets.ListDatasets(r.Context(), claims.UserID)
	if err != nil {
		httputils.ResponseError(w, http.StatusInternalServerError, "failed to list datasets")
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, records)
}

// @Summary Get dataset
// @Description One dataset record by id
// @ID get-dataset
// @Produce json
// @Param Bearer header string true "Auth Token"
// @Param id path int true "Dataset ID"
// @Success 200 {object} model.DatasetRecord
// @Failure 404 {object} httputils.ErrorResponse
// @Router /datasets/{id} [get]
func (h *DatasetHandler) getDataset(w http.ResponseWriter, r *http.Request) {
	claims, err := authorize(r)
	if err != nil {
		httputils.ResponseError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		httputils.ResponseError(w, http.StatusBadRequest, "failed to parse dataset ID")
		return
	}

	record, err := h.datasets.GetDataset(r.Context(), claims.UserID, uint(id))
	if err != nil {
		httputils.ResponseError(w, http.StatusInternalServerError, "failed to get dataset")
		return
	}
	if record == nil {
		httputils.ResponseError(w, http.StatusNotFound, "dataset not found")
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, record)
}

// @Summary Delete dataset
// @Description Removes the record and best-effort deletes the stored object
// @ID delete-dataset
// @Produce json
// @Param Bearer header string true "Auth Token"
// @Param id path int true "Dataset ID"
// @Success 204
// @Failure 400 {object} httputils.ErrorResponse
// @Router /datasets/{id} [delete]
func (h *DatasetHandler) deleteDataset(w http.ResponseWriter, r *http.Request) {
	claims, err := authorize(r)
	if err != nil {
		httputils.ResponseError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		httputils.ResponseError(w, http.StatusBadRequest, "failed to parse dataset ID")
		return
	}

	if err := h.datasets.DeleteDataset(r.Context(), claims.UserID, uint(id)); err != nil {
		httputils.ResponseError(w, http.StatusInternalServerError, "failed to delete dataset")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
