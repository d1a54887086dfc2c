package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/invoply/invoply-api/internal/services"
)

// InvoiceHandler exposes the invoice lifecycle over HTTP.
type InvoiceHandler struct {
	common *CommonServices
}

// NewInvoiceHandler creates a new invoice handler.
func NewInvoiceHandler(common *CommonServices) *InvoiceHandler {
	return &InvoiceHandler{common: common}
}

// CreateInvoice handles POST /api/v1/invoices
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	account, ok := actingAccount(c)
	if !ok {
		return
	}

	var params services.CreateInvoiceParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	inv, err := h.common.InvoiceService.Create(c.Request.Context(), account.ID, params)
	if err != nil {
		sendError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

// ListInvoices handles GET /api/v1/invoices
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	account, ok := actingAccount(c)
	if !ok {
		return
	}

	invoices, err := h.common.InvoiceService.List(c.Request.Context(), account.ID)
	if err != nil {
		sendError(c, err)
		return
	}

	var outstanding int64
	for _, inv := range invoices {
		if !inv.Paid {
			outstanding += inv.TotalCents
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"invoices":          invoices,
		"outstanding_cents": outstanding,
	})
}

// GetInvoice handles GET /api/v1/invoices/:invoice_id
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	account, ok := actingAccount(c)
	if !ok {
		return
	}
	invoiceID, ok := pathUUID(c, "invoice_id")
	if !ok {
		return
	}

	inv, err := h.common.InvoiceService.Get(c.Request.Context(), account.ID, invoiceID)
	if err != nil {
		sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

// GetInvoiceDocument handles GET /api/v1/invoices/:invoice_id/document.
// The PDF is rendered and committed on first access and served from the
// artifact store afterwards.
func (h *InvoiceHandler) GetInvoiceDocument(c *gin.Context) {
	account, ok := actingAccount(c)
	if !ok {
		return
	}
	invoiceID, ok := pathUUID(c, "invoice_id")
	if !ok {
		return
	}

	ref, data, err := h.common.InvoiceService.Document(c.Request.Context(), account.ID, invoiceID)
	if err != nil {
		sendError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ref))
	c.Data(http.StatusOK, "application/pdf", data)
}

// MarkInvoicePaid handles POST /api/v1/invoices/:invoice_id/mark-paid.
// Marking an already-paid invoice succeeds unchanged.
func (h *InvoiceHandler) MarkInvoicePaid(c *gin.Context) {
	account, ok := actingAccount(c)
	if !ok {
		return
	}
	invoiceID, ok := pathUUID(c, "invoice_id")
	if !ok {
		return
	}

	inv, err := h.common.InvoiceService.MarkPaid(c.Request.Context(), account.ID, invoiceID)
	if err != nil {
		sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

// ReRenderInvoice handles POST /api/v1/invoices/:invoice_id/re-render
func (h *InvoiceHandler) ReRenderInvoice(c *gin.Context) {
	account, ok := actingAccount(c)
	if !ok {
		return
	}
	invoiceID, ok := pathUUID(c, "invoice_id")
	if !ok {
		return
	}

	ref, _, err := h.common.InvoiceService.ReRender(c.Request.Context(), account.ID, invoiceID)
	if err != nil {
		sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"artifact_ref": ref})
}

// SendInvoice handles POST /api/v1/invoices/:invoice_id/send. The recipient
// defaults to the invoice's client email.
func (h *InvoiceHandler) SendInvoice(c *gin.Context) {
	account, ok := actingAccount(c)
	if !ok {
		return
	}
	invoiceID, ok := pathUUID(c, "invoice_id")
	if !ok {
		return
	}

	var body struct {
		To string `json:"to"`
	}
	// Body is optional.
	_ = c.ShouldBindJSON(&body)

	ctx := c.Request.Context()
	inv, err := h.common.InvoiceService.Get(ctx, account.ID, invoiceID)
	if err != nil {
		sendError(c, err)
		return
	}

	to := body.To
	if to == "" && inv.ClientID != nil {
		client, err := h.common.ClientService.Get(ctx, account.ID, *inv.ClientID)
		if err == nil {
			to = client.Email
		}
	}
	if to == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no recipient: supply \"to\" or attach a client with an email"})
		return
	}

	if err := h.common.EmailService.SendInvoice(ctx, to, account, inv); err != nil {
		h.common.logger.Error("invoice send failed",
			zap.String("invoice_id", invoiceID.String()), zap.Error(err))
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "failed to send invoice email"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true, "to": to})
}
