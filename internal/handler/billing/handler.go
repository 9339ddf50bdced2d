package billing

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dentara/clinic-api/internal/handler"
	"github.com/dentara/clinic-api/internal/model"
	"github.com/dentara/clinic-api/internal/service/billing"
	apperrors "github.com/dentara/clinic-api/pkg/errors"
	"github.com/dentara/clinic-api/pkg/metrics"
)

type Handler struct {
	service *billing.Service
	metrics *metrics.Metrics
}

func NewHandler(service *billing.Service, m *metrics.Metrics) *Handler {
	return &Handler{service: service, metrics: m}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	invoices := r.Group("/invoices")
	{
		invoices.POST("", h.CreateInvoice)
		invoices.GET("", h.ListInvoices)
		invoices.GET("/:id", h.GetInvoice)
		invoices.GET("/:id/items", h.ListInvoiceItems)
		invoices.GET("/:id/payments", h.ListInvoicePayments)
		invoices.GET("/:id/proofs", h.ListInvoiceProofs)
		invoices.POST("/:id/recompute", h.RecomputeInvoice)
		invoices.POST("/:id/cancel", h.CancelInvoice)
	}

	payments := r.Group("/payments")
	{
		payments.POST("", h.SubmitPayment)
		payments.GET("", h.ListPayments)
		payments.GET("/:id", h.GetPayment)
		payments.POST("/:id/approve", h.ApprovePayment)
		payments.POST("/:id/reject", h.RejectPayment)
	}
}

func (h *Handler) CreateInvoice(c *gin.Context) {
	var req model.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	invoice, err := h.service.CreateInvoice(c.Request.Context(), &req)
	if err != nil {
		handler.Error(c, err)
		return
	}

	h.metrics.InvoicesCreated.Inc()
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(invoice))
}

func (h *Handler) GetInvoice(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		// Invoice numbers double as lookup keys on the same route.
		invoice, nerr := h.service.GetInvoiceByNumber(c.Request.Context(), c.Param("id"))
		if nerr != nil {
			handler.Error(c, apperrors.NotFound("invoice", nerr))
			return
		}
		c.JSON(http.StatusOK, handler.NewSuccessResponse(invoice))
		return
	}

	invoice, err := h.service.GetInvoice(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(invoice))
}

func (h *Handler) ListInvoices(c *gin.Context) {
	filters := &model.InvoiceFilters{
		Status: model.InvoiceStatus(c.Query("status")),
	}
	if pid := c.Query("patient_id"); pid != "" {
		id, err := uuid.Parse(pid)
		if err != nil {
			handler.Error(c, apperrors.Validation("invalid patient_id"))
			return
		}
		filters.PatientID = id
	}
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			handler.Error(c, apperrors.Validation("invalid from date, expected RFC3339"))
			return
		}
		filters.StartDate = t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			handler.Error(c, apperrors.Validation("invalid to date, expected RFC3339"))
			return
		}
		filters.EndDate = t
	}

	invoices, err := h.service.ListInvoices(c.Request.Context(), filters)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(invoices))
}

func (h *Handler) ListInvoiceItems(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.Error(c, apperrors.Validation("invalid invoice id"))
		return
	}

	items, err := h.service.ListInvoiceItems(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(items))
}

func (h *Handler) ListInvoicePayments(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.Error(c, apperrors.Validation("invalid invoice id"))
		return
	}

	payments, err := h.service.ListInvoicePayments(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}

	// Each payment carries its parsed note signals so clients never
	// re-implement the notes format.
	type paymentView struct {
		*model.Payment
		Signals billing.PaymentSignals `json:"signals"`
	}
	views := make([]paymentView, 0, len(payments))
	for _, p := range payments {
		views = append(views, paymentView{Payment: p, Signals: billing.ParsePaymentSignals(p)})
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(views))
}

func (h *Handler) ListInvoiceProofs(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.Error(c, apperrors.Validation("invalid invoice id"))
		return
	}

	proofs, err := h.service.InvoiceProofs(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(proofs))
}

func (h *Handler) RecomputeInvoice(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.Error(c, apperrors.Validation("invalid invoice id"))
		return
	}

	invoice, err := h.service.RecomputeInvoiceTotals(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(invoice))
}

func (h *Handler) CancelInvoice(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.Error(c, apperrors.Validation("invalid invoice id"))
		return
	}

	if err := h.service.CancelInvoice(c.Request.Context(), id); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"cancelled": true}))
}

func (h *Handler) SubmitPayment(c *gin.Context) {
	var req model.SubmitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	payment, err := h.service.SubmitPayment(c.Request.Context(), &req)
	if err != nil {
		handler.Error(c, err)
		return
	}

	h.metrics.PaymentsSubmitted.WithLabelValues(string(payment.PaymentMethod)).Inc()
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(payment))
}

func (h *Handler) GetPayment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.Error(c, apperrors.Validation("invalid payment id"))
		return
	}

	payment, err := h.service.GetPayment(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"payment": payment,
		"signals": billing.ParsePaymentSignals(payment),
	}))
}

func (h *Handler) ListPayments(c *gin.Context) {
	filters := &model.PaymentFilters{
		Status: model.ApprovalStatus(c.Query("status")),
		Method: model.PaymentMethod(c.Query("method")),
	}
	if iid := c.Query("invoice_id"); iid != "" {
		id, err := uuid.Parse(iid)
		if err != nil {
			handler.Error(c, apperrors.Validation("invalid invoice_id"))
			return
		}
		filters.InvoiceID = id
	}

	payments, err := h.service.ListPayments(c.Request.Context(), filters)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(payments))
}

func (h *Handler) ApprovePayment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.Error(c, apperrors.Validation("invalid payment id"))
		return
	}

	payment, invoice, err := h.service.ApprovePayment(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}

	h.metrics.PaymentDecisions.WithLabelValues("approved").Inc()
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"payment": payment,
		"invoice": invoice,
	}))
}

func (h *Handler) RejectPayment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.Error(c, apperrors.Validation("invalid payment id"))
		return
	}

	var req model.DecidePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	payment, invoice, err := h.service.RejectPayment(c.Request.Context(), id, req.DoctorName)
	if err != nil {
		handler.Error(c, err)
		return
	}

	h.metrics.PaymentDecisions.WithLabelValues("rejected").Inc()
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"payment": payment,
		"invoice": invoice,
	}))
}
