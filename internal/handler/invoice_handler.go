package handler

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prasetyawan/billing-extractor-service/internal/model"
	"github.com/prasetyawan/billing-extractor-service/internal/service"
)

// UploadLimits are the preconditions the extraction core assumes have
// already been enforced
type UploadLimits struct {
	AllowedMimeTypes []string
	MaxFileSizeBytes int64
	MaxFilesPerBatch int
}

// DefaultUploadLimits returns the default upload constraints
func DefaultUploadLimits() UploadLimits {
	return UploadLimits{
		AllowedMimeTypes: []string{"image/jpeg", "image/png"},
		MaxFileSizeBytes: 10 * 1024 * 1024, // 10MB
		MaxFilesPerBatch: 10,
	}
}

// InvoiceHandler handles HTTP requests for invoice extraction and queries
type InvoiceHandler struct {
	extraction service.ExtractionService
	invoices   service.InvoiceService
	limits     UploadLimits
}

// NewInvoiceHandler creates a new invoice handler
func NewInvoiceHandler(extraction service.ExtractionService, invoices service.InvoiceService, limits UploadLimits) *InvoiceHandler {
	return &InvoiceHandler{
		extraction: extraction,
		invoices:   invoices,
		limits:     limits,
	}
}

// RegisterRoutes registers the handler's routes with the given router
func (h *InvoiceHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/v1/invoices/extract", h.ExtractInvoices)
	router.GET("/v1/invoices", h.ListInvoices)
	router.GET("/v1/invoices/:invoiceNumber", h.GetInvoice)
	router.DELETE("/v1/invoices/:invoiceNumber", h.DeleteInvoice)
}

// ExtractInvoices handles a batch of invoice images
// @Summary Extract invoices from images
// @Description Upload invoice images, extract structured data with AI, and persist the aggregated invoices
// @Tags invoices
// @Accept multipart/form-data
// @Produce json
// @Param images formData file true "Invoice image files (JPEG or PNG)"
// @Success 200 {object} model.ExtractionResponse "Batch processed"
// @Failure 400 {object} model.ExtractionErrorResponse "Invalid upload or batch validation failure"
// @Failure 500 {object} model.ErrorResponse "Internal server error"
// @Router /v1/invoices/extract [post]
func (h *InvoiceHandler) ExtractInvoices(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respondBadRequest(c, "Failed to parse form data: "+err.Error())
		return
	}

	fileHeaders := form.File["images"]
	if len(fileHeaders) == 0 {
		respondBadRequest(c, "No image files provided")
		return
	}

	if validationErrors := h.validateUpload(fileHeaders); len(validationErrors) > 0 {
		c.JSON(http.StatusBadRequest, model.ExtractionErrorResponse{
			Success: false,
			Errors:  validationErrors,
		})
		return
	}

	files := make([]model.ImageFile, 0, len(fileHeaders))
	for _, header := range fileHeaders {
		data, err := readFormFile(header)
		if err != nil {
			respondInternalServerError(c, "Failed to read file data: "+err.Error())
			return
		}
		files = append(files, model.ImageFile{
			FileName:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	log.Printf("Processing extraction batch: %d image(s)", len(files))
	response, err := h.extraction.ProcessBatch(c.Request.Context(), files)
	if err != nil {
		var batchErr *service.BatchValidationError
		if errors.As(err, &batchErr) {
			c.JSON(http.StatusBadRequest, model.ExtractionErrorResponse{
				Success: false,
				Errors:  batchErr.Messages(),
			})
			return
		}
		respondInternalServerError(c, fmt.Sprintf("Processing failed: %v", err))
		return
	}

	respondOK(c, response)
}

// ListInvoices returns summaries of every active invoice
// @Summary List invoices
// @Tags invoices
// @Produce json
// @Success 200 {array} model.InvoiceSummaryDTO
// @Failure 500 {object} model.ErrorResponse
// @Router /v1/invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	summaries, err := h.invoices.GetAll(c.Request.Context())
	if err != nil {
		respondInternalServerError(c, ErrInternalServer)
		return
	}
	respondOK(c, summaries)
}

// GetInvoice returns one invoice's detail
// @Summary Get an invoice by number
// @Tags invoices
// @Produce json
// @Param invoiceNumber path string true "Invoice number"
// @Success 200 {object} model.InvoiceDetailDTO
// @Failure 404 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /v1/invoices/{invoiceNumber} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	invoiceNumber := c.Param("invoiceNumber")

	detail, err := h.invoices.GetByInvoiceNumber(c.Request.Context(), invoiceNumber)
	if err != nil {
		respondInternalServerError(c, ErrInternalServer)
		return
	}
	if detail == nil {
		respondNotFound(c, ErrResourceNotFound)
		return
	}
	respondOK(c, detail)
}

// DeleteInvoice soft-deletes an invoice
// @Summary Delete an invoice
// @Tags invoices
// @Produce json
// @Param invoiceNumber path string true "Invoice number"
// @Success 204 "Invoice deleted"
// @Failure 404 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /v1/invoices/{invoiceNumber} [delete]
func (h *InvoiceHandler) DeleteInvoice(c *gin.Context) {
	invoiceNumber := c.Param("invoiceNumber")

	deleted, err := h.invoices.Delete(c.Request.Context(), invoiceNumber)
	if err != nil {
		respondInternalServerError(c, ErrInternalServer)
		return
	}
	if !deleted {
		respondNotFound(c, ErrResourceNotFound)
		return
	}
	respondNoContent(c)
}

// validateUpload applies the batch count, MIME type, and per-file size
// constraints
func (h *InvoiceHandler) validateUpload(fileHeaders []*multipart.FileHeader) []string {
	var errs []string

	if len(fileHeaders) > h.limits.MaxFilesPerBatch {
		errs = append(errs, fmt.Sprintf("Maximum %d images allowed per upload", h.limits.MaxFilesPerBatch))
	}

	for _, header := range fileHeaders {
		contentType := header.Header.Get("Content-Type")
		if !h.mimeTypeAllowed(contentType) {
			errs = append(errs, fmt.Sprintf("File '%s' has invalid type %q. Allowed types: %v",
				header.Filename, contentType, h.limits.AllowedMimeTypes))
		}
		if header.Size > h.limits.MaxFileSizeBytes {
			errs = append(errs, fmt.Sprintf("File '%s' exceeds maximum allowed size of %dMB",
				header.Filename, h.limits.MaxFileSizeBytes/1024/1024))
		}
	}

	return errs
}

func (h *InvoiceHandler) mimeTypeAllowed(contentType string) bool {
	for _, allowed := range h.limits.AllowedMimeTypes {
		if contentType == allowed {
			return true
		}
	}
	return false
}

// readFormFile reads the full contents of one multipart file
func readFormFile(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}
