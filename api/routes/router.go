package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/omarcastero/receiptscan-backend/api/controllers"
	"github.com/omarcastero/receiptscan-backend/api/middleware"
	"github.com/omarcastero/receiptscan-backend/internal/receipts"
	"github.com/omarcastero/receiptscan-backend/pkg/config"
	"github.com/omarcastero/receiptscan-backend/pkg/logger"
	pkgredis "github.com/omarcastero/receiptscan-backend/pkg/redis"
)

// Dependencies carries the wiring the router needs.
type Dependencies struct {
	Config          *config.Config
	Logger          *logger.Logger
	Redis           *pkgredis.Client
	ReceiptsService receipts.Service
	HealthChecks    map[string]controllers.Pinger
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive())
		r.Get("/ready", controllers.HealthReady(logg, deps.HealthChecks))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		var store pkgredis.IdempotencyStore
		if deps.Redis != nil {
			store = deps.Redis
		}
		r.Use(middleware.Idempotency(store, logg))

		r.Post("/receipts", controllers.UploadReceipt(deps.ReceiptsService, logg, cfg.Receipts.MaxUploadBytes()))
		r.Get("/receipts", controllers.ListReceipts(deps.ReceiptsService, logg))
		r.Get("/receipts/{receiptID}", controllers.GetReceipt(deps.ReceiptsService, logg))
		r.Get("/receipts/{receiptID}/download-url", controllers.ReceiptDownloadURL(deps.ReceiptsService, logg))
		r.Delete("/receipts/{receiptID}", controllers.DeleteReceipt(deps.ReceiptsService, logg))
	})

	return r
}
