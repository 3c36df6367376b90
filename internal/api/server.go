package api

import (
	"net/http"

	"aiotts_gateway/internal/flashship"
	"aiotts_gateway/internal/metrics"
	"aiotts_gateway/internal/sku"
	"aiotts_gateway/internal/updater"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps carries everything the router needs. Directory may be nil when no
// database is configured.
type Deps struct {
	Mode      string
	APIKey    string
	Designs   *sku.Service
	Directory Directory
	Updater   *updater.Store
	FlashShip *flashship.Client
	Pingers   map[string]Pinger
}

// NewServer builds the HTTP router.
func NewServer(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logging)
	r.Use(Recovery)
	r.Use(metrics.Metrics)

	health := NewHealthHandler(deps.Pingers)
	r.Get("/livez", health.Livez)
	r.Get("/readyz", health.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	designs := NewDesignHandler(deps.Designs)
	directory := NewDirectoryHandler(deps.Directory)
	updates := NewUpdaterHandler(deps.Updater)
	flash := NewFlashShipHandler(deps.FlashShip)
	requireKey := APIKey(deps.Mode, deps.APIKey)

	r.Route("/aiotts", func(r chi.Router) {
		r.Get("/update/info", updates.Info)
		r.Get("/update/download/data", updates.DownloadData)
		r.Get("/update/download/metadata", updates.DownloadMetadata)
		r.Get("/installer", updates.Installer)
		r.Get("/dependencies/ocr", updates.OCRInstaller)

		r.Get("/auth/search/uuid", directory.SearchUUID)
		r.Get("/auth/search/password_status", directory.PasswordStatus)
		r.Get("/label/search/{tracking_id}", directory.SearchLabel)

		r.Group(func(r chi.Router) {
			r.Use(requireKey)

			r.Post("/update/modify", updates.Modify)
			r.Post("/update/upload", updates.Upload)
			r.Post("/uploadfile", updates.UploadFile)

			r.Get("/order/design/read", designs.Read)
			r.Post("/order/design/sku/search", designs.Search)
			r.Post("/order/design/sku/insert", designs.Insert)
			r.Post("/order/design/sku/move-down", designs.MoveDown)

			r.Post("/flashship/login", flash.Login)
			r.Post("/flashship/order/create", flash.CreateOrder)
			r.Get("/flashship/order/details", flash.OrderDetails)
			r.Post("/flashship/order/cancel", flash.CancelOrder)
		})
	})

	return r
}
