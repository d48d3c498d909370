package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nandutech/sifen-api/internal/application/billing"
	"github.com/nandutech/sifen-api/internal/domain/repository"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Issue      *billing.IssueService
	CreditNote *billing.CreditNoteService
	Events     *billing.EventService
	Processor  *billing.EventBatchProcessor
	DocRepo    repository.DocumentRepository
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	docHandler := NewDocumentHandler(deps.Issue, deps.CreditNote, deps.Events, deps.DocRepo)
	documents := api.Group("/documents")
	documents.Post("/", docHandler.Issue)
	documents.Get("/:cdc", docHandler.GetByCDC)
	documents.Get("/:cdc/xml", docHandler.DownloadXML)
	documents.Get("/:cdc/remote", docHandler.QueryRemote)
	documents.Post("/:cdc/cancel", docHandler.Cancel)
	documents.Post("/:cdc/credit-note", docHandler.CreditNote)
	documents.Post("/:cdc/notify", docHandler.Notify)

	api.Get("/ruc/:ruc", docHandler.QueryRUC)

	eventHandler := NewEventHandler(deps.Events, deps.Processor)
	events := api.Group("/events")
	events.Post("/nullify", eventHandler.Nullify)
	events.Post("/process-batch", eventHandler.ProcessBatch)
	events.Post("/requeue", eventHandler.Requeue)
	events.Get("/stats", eventHandler.Stats)
}
