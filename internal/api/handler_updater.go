package api

import (
	"errors"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"aiotts_gateway/internal/updater"

	"github.com/rs/zerolog/log"
)

const maxUploadMemory = 32 << 20

type UpdaterHandler struct {
	store *updater.Store
}

func NewUpdaterHandler(store *updater.Store) *UpdaterHandler {
	return &UpdaterHandler{store: store}
}

func writeUpdaterError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, updater.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, updater.ErrInvalidFile):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("Updater operation failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func requireQuery(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		writeError(w, http.StatusBadRequest, name+" is required")
		return "", false
	}
	return v, true
}

func (h *UpdaterHandler) Info(w http.ResponseWriter, r *http.Request) {
	info, err := h.store.Info()
	if err != nil {
		writeUpdaterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *UpdaterHandler) Modify(w http.ResponseWriter, r *http.Request) {
	var info updater.Info
	if !decodeBody(w, r, &info) {
		return
	}
	if err := h.store.SetInfo(info); err != nil {
		writeUpdaterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Update info modified successfully"})
}

func (h *UpdaterHandler) DownloadData(w http.ResponseWriter, r *http.Request) {
	version, ok := requireQuery(w, r, "version")
	if !ok {
		return
	}
	path, err := h.store.PackagePath(version)
	if err != nil {
		writeUpdaterError(w, err)
		return
	}
	serveAttachment(w, r, path)
}

func (h *UpdaterHandler) DownloadMetadata(w http.ResponseWriter, r *http.Request) {
	version, ok := requireQuery(w, r, "version")
	if !ok {
		return
	}
	metadata, err := h.store.Metadata(version)
	if err != nil {
		writeUpdaterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: "success", Message: "File loaded successfully", Data: metadata})
}

type uploadResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Version  string `json:"version"`
}

func formFile(w http.ResponseWriter, r *http.Request, field string) (multipart.File, *multipart.FileHeader, bool) {
	file, header, err := r.FormFile(field)
	if err != nil {
		writeError(w, http.StatusBadRequest, field+" is required")
		return nil, nil, false
	}
	return file, header, true
}

func (h *UpdaterHandler) Upload(w http.ResponseWriter, r *http.Request) {
	version, ok := requireQuery(w, r, "version")
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	metadata, metadataHeader, ok := formFile(w, r, "metadata_file")
	if !ok {
		return
	}
	defer metadata.Close()
	pkg, pkgHeader, ok := formFile(w, r, "package_file")
	if !ok {
		return
	}
	defer pkg.Close()

	if err := h.store.Publish(version, metadataHeader.Filename, metadata, pkgHeader.Filename, pkg); err != nil {
		writeUpdaterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		Status:   "success",
		Message:  "File uploaded successfully",
		Filename: pkgHeader.Filename,
		Version:  version,
	})
}

func (h *UpdaterHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	file, header, ok := formFile(w, r, "file")
	if !ok {
		return
	}
	defer file.Close()

	if _, err := h.store.SaveUpload(header.Filename, file); err != nil {
		writeUpdaterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"filename": header.Filename})
}

func (h *UpdaterHandler) Installer(w http.ResponseWriter, r *http.Request) {
	name, ok := requireQuery(w, r, "file_name")
	if !ok {
		return
	}
	path, err := h.store.InstallerPath(name)
	if err != nil {
		writeUpdaterError(w, err)
		return
	}
	serveAttachment(w, r, path)
}

func (h *UpdaterHandler) OCRInstaller(w http.ResponseWriter, r *http.Request) {
	path, err := h.store.OCRInstallerPath()
	if err != nil {
		writeUpdaterError(w, err)
		return
	}
	serveAttachment(w, r, path)
}

func serveAttachment(w http.ResponseWriter, r *http.Request, path string) {
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeFile(w, r, path)
}
