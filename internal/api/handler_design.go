package api

import (
	"encoding/json"
	"net/http"

	"aiotts_gateway/internal/sku"
)

// DesignHandler exposes the SKU sheet operations. Failures map to 400 with
// an error envelope.
type DesignHandler struct {
	service *sku.Service
}

func NewDesignHandler(service *sku.Service) *DesignHandler {
	return &DesignHandler{service: service}
}

// sheetParams reads the workbook_name and sheet_name query parameters.
func sheetParams(w http.ResponseWriter, r *http.Request) (workbook, sheet string, ok bool) {
	q := r.URL.Query()
	workbook, sheet = q.Get("workbook_name"), q.Get("sheet_name")
	if workbook == "" || sheet == "" {
		writeError(w, http.StatusBadRequest, "workbook_name and sheet_name are required")
		return "", "", false
	}
	return workbook, sheet, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *DesignHandler) Read(w http.ResponseWriter, r *http.Request) {
	workbook, sheet, ok := sheetParams(w, r)
	if !ok {
		return
	}

	rows, err := h.service.Read(r.Context(), workbook, sheet)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "Error when reading data from Google Sheet: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: sku.StatusSuccess, Data: rows})
}

// Search returns a bare key -> row mapping, with null for absent keys.
func (h *DesignHandler) Search(w http.ResponseWriter, r *http.Request) {
	workbook, sheet, ok := sheetParams(w, r)
	if !ok {
		return
	}
	var keys []string
	if !decodeBody(w, r, &keys) {
		return
	}

	result, err := h.service.SearchByKey(r.Context(), workbook, sheet, keys)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "Error when reading data from Google Sheet: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *DesignHandler) Insert(w http.ResponseWriter, r *http.Request) {
	workbook, sheet, ok := sheetParams(w, r)
	if !ok {
		return
	}
	if !r.URL.Query().Has("seller_name") {
		writeError(w, http.StatusBadRequest, "seller_name is required")
		return
	}
	var records []sku.Record
	if !decodeBody(w, r, &records) {
		return
	}

	seller := r.URL.Query().Get("seller_name")
	result, err := h.service.InsertBatch(r.Context(), workbook, sheet, seller, records)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *DesignHandler) MoveDown(w http.ResponseWriter, r *http.Request) {
	workbook, sheet, ok := sheetParams(w, r)
	if !ok {
		return
	}
	var keys []string
	if !decodeBody(w, r, &keys) {
		return
	}

	result, err := h.service.MoveToLast(r.Context(), workbook, sheet, keys)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
