package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"silk-catalog/internal/domain"
	"silk-catalog/internal/media"
	"silk-catalog/internal/middleware"
	"silk-catalog/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CatalogHandler handles HTTP requests for the admin catalog
type CatalogHandler struct {
	catalog service.CatalogService
	logger  *zap.Logger
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(catalog service.CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// RegisterRoutes registers all catalog routes
func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", h.Upload)

		r.Get("/draft", h.GetDraft)
		r.Post("/draft", h.SaveDraft)
		r.Delete("/draft", h.ClearDraft)

		r.Post("/save-incomplete", h.SaveIncomplete)
		r.Post("/add-product", h.AddProduct)
		r.Post("/delete-product", h.DeleteProduct)
		r.Post("/restore-product", h.RestoreProduct)
		r.Post("/perm-delete", h.PermDelete)
		r.Post("/toggle-visibility", h.ToggleVisibility)
		r.Post("/clear-buffer", h.ClearBuffer)

		r.Get("/products", h.ListProducts)
		r.Get("/get-next-id", h.GetNextID)
	})
}

// respondWithServiceError maps service errors onto status codes
func (h *CatalogHandler) respondWithServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		h.logger.Debug(op+" rejected", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "product not found")
	default:
		h.logger.Error(op+" failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, op+" failed")
	}
}

// asValidation reports an undecodable upload as a client error
func asValidation(err error) error {
	if errors.Is(err, media.ErrImageProcessingFailed) {
		return fmt.Errorf("%w: %v", service.ErrValidation, err)
	}
	return err
}

// decode reads and validates a JSON body, writing the error response on failure
func (h *CatalogHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := middleware.DecodeAndValidate(r, v); err != nil {
		h.logger.Debug("Request validation failed", zap.String("path", r.URL.Path), zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return false
		}

		middleware.RespondWithBodyError(w, err)
		return false
	}
	return true
}

// Upload stages one multipart file in the buffer. An optional rotation
// form field turns the image clockwise by that many degrees.
func (h *CatalogHandler) Upload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.RespondWithBodyError(w, err)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "no file")
		return
	}
	defer file.Close()

	rotation := 0
	if raw := r.FormValue("rotation"); raw != "" {
		if rotation, err = strconv.Atoi(raw); err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "rotation must be an integer")
			return
		}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		middleware.RespondWithBodyError(w, err)
		return
	}

	ref, err := h.catalog.Stage(r.Context(), data, header.Filename, rotation)
	if err != nil {
		h.respondWithServiceError(w, "upload", asValidation(err))
		return
	}

	h.logger.Info("Upload staged", zap.String("url", ref.Path), zap.String("original", header.Filename))
	middleware.RespondWithJSON(w, http.StatusOK, StatusResponse{Status: "success", URL: ref.Path})
}

// GetDraft returns the in-progress form exactly as it was saved, or {}
// when there is none
func (h *CatalogHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := h.catalog.GetDraft(r.Context())
	if err != nil {
		h.respondWithServiceError(w, "load draft", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, draft)
}

// SaveDraft stores any JSON object the form posts. Fields are not
// validated until the product is saved or published.
func (h *CatalogHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		middleware.RespondWithBodyError(w, err)
		return
	}

	draft, err := domain.ParseDraft(body)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.catalog.SaveDraft(r.Context(), draft); err != nil {
		h.respondWithServiceError(w, "save draft", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, StatusResponse{Status: "saved"})
}

func (h *CatalogHandler) ClearDraft(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.ClearDraft(r.Context()); err != nil {
		h.respondWithServiceError(w, "clear draft", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, StatusResponse{Status: "cleared"})
}

// SaveIncomplete parks a partially filled product in the unfilled bucket
func (h *CatalogHandler) SaveIncomplete(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, "save incomplete", h.catalog.SaveIncomplete)
}

// AddProduct publishes a product to the storefront
func (h *CatalogHandler) AddProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, "add product", h.catalog.Publish)
}

func (h *CatalogHandler) saveProduct(w http.ResponseWriter, r *http.Request, op string, save func(ctx context.Context, in service.ProductInput) (*service.Result, error)) {
	var req ProductRequest
	if !h.decode(w, r, &req) {
		return
	}

	in, warnings, err := req.ToInput()
	if err != nil {
		h.respondWithServiceError(w, op, err)
		return
	}

	result, err := save(r.Context(), in)
	if err != nil {
		h.respondWithServiceError(w, op, err)
		return
	}

	warnings = append(warnings, result.Warnings...)
	h.logger.Info("Product saved",
		zap.String("op", op),
		zap.String("product_id", result.Product.ID),
		zap.Int("gallery", len(result.Product.Gallery)),
		zap.Strings("warnings", warnings),
	)
	middleware.RespondWithJSON(w, http.StatusOK, StatusResponse{Status: "success", ID: result.Product.ID, Warnings: warnings})
}

// DeleteProduct moves a live or unfilled product to the trash
func (h *CatalogHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, "delete product", h.catalog.Remove)
}

// RestoreProduct moves a trashed product back to the storefront
func (h *CatalogHandler) RestoreProduct(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, "restore product", h.catalog.Restore)
}

// PermDelete purges a trashed product and its files
func (h *CatalogHandler) PermDelete(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, "purge product", h.catalog.PurgeRecord)
}

// ToggleVisibility shows or hides a live product on the storefront. Without
// a visible field the current value is flipped.
func (h *CatalogHandler) ToggleVisibility(w http.ResponseWriter, r *http.Request) {
	var req VisibilityRequest
	if !h.decode(w, r, &req) {
		return
	}

	visible := false
	var err error
	if req.Visible != nil {
		visible = *req.Visible
		err = h.catalog.SetVisibility(r.Context(), req.ID, visible)
	} else {
		visible, err = h.catalog.ToggleVisibility(r.Context(), req.ID)
	}
	if err != nil {
		h.respondWithServiceError(w, "toggle visibility", err)
		return
	}

	h.logger.Info("Product visibility changed", zap.String("product_id", req.ID), zap.Bool("visible", visible))
	middleware.RespondWithJSON(w, http.StatusOK, StatusResponse{Status: "success", ID: req.ID, Visible: &visible})
}

func (h *CatalogHandler) byID(w http.ResponseWriter, r *http.Request, op string, apply func(ctx context.Context, id string) error) {
	var req IDRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := apply(r.Context(), req.ID); err != nil {
		h.respondWithServiceError(w, op, err)
		return
	}

	h.logger.Info("Product updated", zap.String("op", op), zap.String("product_id", req.ID))
	middleware.RespondWithJSON(w, http.StatusOK, StatusResponse{Status: "success", ID: req.ID})
}

func (h *CatalogHandler) ClearBuffer(w http.ResponseWriter, r *http.Request) {
	removed, err := h.catalog.ClearBuffer(r.Context())
	if err != nil {
		h.respondWithServiceError(w, "clear buffer", err)
		return
	}

	h.logger.Info("Buffer cleared", zap.Int("removed", removed))
	middleware.RespondWithJSON(w, http.StatusOK, StatusResponse{Status: "success", Removed: &removed})
}

// ListProducts returns the bucket named by ?source=main|trash|unfilled
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context(), r.URL.Query().Get("source"))
	if err != nil {
		h.respondWithServiceError(w, "list products", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, products)
}

func (h *CatalogHandler) GetNextID(w http.ResponseWriter, r *http.Request) {
	id, err := h.catalog.NextID(r.Context())
	if err != nil {
		h.respondWithServiceError(w, "next id", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, NextIDResponse{NextID: id})
}
