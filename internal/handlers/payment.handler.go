package handlers

import (
	"context"

	"github.com/fasthttp/router"

	"github.com/atlasbank/swift-portal/internal/model"
	xhttp "github.com/atlasbank/swift-portal/pkg/http"
)

type PaymentService interface {
	Submit(ctx context.Context, req model.PaymentCreateRequest) (*model.Payment, error)
	ListMine(ctx context.Context, customerID int64, f model.PaymentFilter) ([]*model.Payment, int64, error)
	ListForReview(ctx context.Context, f model.PaymentFilter) ([]*model.Payment, int64, error)
	Verify(ctx context.Context, employeeID, paymentID int64) (*model.Payment, error)
	SubmitToSwift(ctx context.Context, employeeID int64, ids []int64) (int, error)
}

type PaymentHandler struct {
	svc  PaymentService
	auth *AuthHandler
}

func NewPaymentHandler(paymentService PaymentService, auth *AuthHandler) *PaymentHandler {
	return &PaymentHandler{
		svc:  paymentService,
		auth: auth,
	}
}

func RegisterPaymentRoutes(e *router.Group, h *PaymentHandler) {
	e.POST("/payments", h.auth.RequireRole(model.RoleCustomer, h.CreatePayment))
	e.GET("/payments/my", h.auth.RequireRole(model.RoleCustomer, h.ListMyPayments))
	e.GET("/payments/pending", h.auth.RequireRole(model.RoleEmployee, h.ListPendingPayments))
	e.POST("/payments/verify", h.auth.RequireRole(model.RoleEmployee, h.VerifyPayment))
	e.POST("/payments/submit-to-swift", h.auth.RequireRole(model.RoleEmployee, h.SubmitToSwift))
}

type createPaymentRequest struct {
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	PayeeName    string `json:"payee_name"`
	PayeeAccount string `json:"payee_account"`
	SwiftCode    string `json:"swift_code"`
}

type verifyPaymentRequest struct {
	PaymentID int64 `json:"payment_id"`
}

type submitToSwiftRequest struct {
	PaymentIDs []int64 `json:"payment_ids"`
}

type submitToSwiftResponse struct {
	Submitted int `json:"submitted"`
	Requested int `json:"requested"`
}

type listResponse struct {
	Items []*model.Payment `json:"items"`
	Total int64            `json:"total"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *PaymentHandler) CreatePayment(ctx *xhttp.RequestCtx) {
	var req createPaymentRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, CodeInvalidInput, "invalid JSON: "+err.Error())
		return
	}

	ident := identityFrom(ctx)
	p := model.PaymentCreateRequest{
		CustomerID:   ident.SubjectID,
		Amount:       req.Amount,
		Currency:     req.Currency,
		PayeeName:    req.PayeeName,
		PayeeAccount: req.PayeeAccount,
		SwiftCode:    req.SwiftCode,
	}

	payment, err := h.svc.Submit(ctx, p)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, payment)
}

// ListMyPayments only ever returns the caller's own payments. The
// customer id comes from the session, never from the query string.
func (h *PaymentHandler) ListMyPayments(ctx *xhttp.RequestCtx) {
	ident := identityFrom(ctx)
	f := parsePaymentFilter(ctx)

	items, total, err := h.svc.ListMine(ctx, ident.SubjectID, f)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, listResponse{Items: items, Total: total})
}

func (h *PaymentHandler) ListPendingPayments(ctx *xhttp.RequestCtx) {
	f := parsePaymentFilter(ctx)

	items, total, err := h.svc.ListForReview(ctx, f)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, listResponse{Items: items, Total: total})
}

func (h *PaymentHandler) VerifyPayment(ctx *xhttp.RequestCtx) {
	var req verifyPaymentRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, CodeInvalidInput, "invalid JSON: "+err.Error())
		return
	}
	if req.PaymentID <= 0 {
		writeError(ctx, xhttp.StatusBadRequest, CodeInvalidInput, "payment_id is required")
		return
	}

	ident := identityFrom(ctx)
	payment, err := h.svc.Verify(ctx, ident.SubjectID, req.PaymentID)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, payment)
}

// SubmitToSwift reports how many of the requested payments actually
// moved to submitted; callers must compare it against what they asked
// for.
func (h *PaymentHandler) SubmitToSwift(ctx *xhttp.RequestCtx) {
	var req submitToSwiftRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, CodeInvalidInput, "invalid JSON: "+err.Error())
		return
	}
	if len(req.PaymentIDs) == 0 {
		writeError(ctx, xhttp.StatusBadRequest, CodeInvalidInput, "payment_ids is required")
		return
	}

	ident := identityFrom(ctx)
	submitted, err := h.svc.SubmitToSwift(ctx, ident.SubjectID, req.PaymentIDs)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, submitToSwiftResponse{
		Submitted: submitted,
		Requested: len(req.PaymentIDs),
	})
}
