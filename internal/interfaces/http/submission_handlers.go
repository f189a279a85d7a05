package http

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/memberhub/approval-workflow/internal/application/service"
	"github.com/memberhub/approval-workflow/internal/domain/entity"
)

// ApplicationRequest is the body of POST /applications
type ApplicationRequest struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	IDNumber   string `json:"id_number"`
	Email      string `json:"email"`
	CellNumber string `json:"cell_number"`
	WardCode   string `json:"ward_code"`
}

// RenewalRequest is the body of POST /renewals
type RenewalRequest struct {
	MemberID     int64 `json:"member_id"`
	PeriodMonths int   `json:"period_months"`
}

// PaymentRequest is the body of POST /{applications|renewals}/:id/payments.
// Amount accepts a JSON string or number.
type PaymentRequest struct {
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Method           string          `json:"method"`
	Status           string          `json:"status"`
	GatewayReference string          `json:"gateway_reference"`
}

// RetryResponse reports the member linked to an application
type RetryResponse struct {
	ApplicationID int64 `json:"application_id"`
	MemberID      int64 `json:"member_id"`
}

// SubmitApplication handles POST /applications
func (h *Handlers) SubmitApplication(c *gin.Context) {
	var req ApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondValidation(c, "invalid request body: %v", err)
		return
	}
	created, err := h.services.Submission.SubmitApplication(c.Request.Context(), entity.Applicant{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		IDNumber:   req.IDNumber,
		Email:      req.Email,
		CellNumber: req.CellNumber,
		WardCode:   req.WardCode,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondCreated(c, created)
}

// SubmitRenewal handles POST /renewals
func (h *Handlers) SubmitRenewal(c *gin.Context) {
	var req RenewalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondValidation(c, "invalid request body: %v", err)
		return
	}
	if req.MemberID <= 0 {
		h.respondValidation(c, "member_id is required")
		return
	}
	created, err := h.services.Submission.SubmitRenewal(c.Request.Context(), req.MemberID, req.PeriodMonths)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondCreated(c, created)
}

// RecordPayment handles POST /{applications|renewals}/:id/payments
func (h *Handlers) RecordPayment(t entity.EntityType) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := h.pathID(c)
		if !ok {
			return
		}
		var req PaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respondValidation(c, "invalid request body: %v", err)
			return
		}
		payment, err := h.services.Payment.RecordPayment(c.Request.Context(), t, id, service.PaymentInput{
			Amount:           req.Amount,
			Currency:         req.Currency,
			Method:           entity.PaymentMethod(req.Method),
			Status:           entity.PaymentStatus(req.Status),
			GatewayReference: req.GatewayReference,
		})
		if err != nil {
			h.respondError(c, err)
			return
		}
		h.respondCreated(c, payment)
	}
}

// ListPayments handles GET /{applications|renewals}/:id/payments
func (h *Handlers) ListPayments(t entity.EntityType) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := h.pathID(c)
		if !ok {
			return
		}
		payments, err := h.services.Payment.ListPayments(c.Request.Context(), t, id)
		if err != nil {
			h.respondError(c, err)
			return
		}
		h.respondOK(c, payments)
	}
}

// VerifyPayment handles POST /payments/:id/verify
func (h *Handlers) VerifyPayment(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req NotesRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	payment, err := h.services.Payment.VerifyCashPayment(c.Request.Context(), id, actorFrom(c), req.Notes)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondOK(c, payment)
}

// ListPendingMemberCreation handles GET /reconciliation/member-creation?limit=
func (h *Handlers) ListPendingMemberCreation(c *gin.Context) {
	limit, ok := h.queryInt64(c, "limit")
	if !ok {
		return
	}
	pending, err := h.services.Reconciliation.ListPendingMemberCreation(c.Request.Context(), int(limit))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondOK(c, pending)
}

// RetryMemberCreation handles POST /reconciliation/member-creation/:id/retry
func (h *Handlers) RetryMemberCreation(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	memberID, err := h.services.Reconciliation.RetryMemberCreation(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Info("Member creation retried",
		"application_id", id,
		"member_id", memberID,
		"user_id", actorFrom(c).UserID)
	h.respondOK(c, RetryResponse{ApplicationID: id, MemberID: memberID})
}
