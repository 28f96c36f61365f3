package services

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/internal/storage"
)

// PaymentService charges subscription plans after validating the card in
// strict mode. Card data never touches storage; only the resolved issuer
// details and the last four digits are kept.
type PaymentService struct {
	store     storage.PaymentStore
	cards     *CardValidator
	receipts  *ReceiptQRService
	validator *ValidationHelper
	now       func() time.Time
}

func NewPaymentService(store storage.PaymentStore, cards *CardValidator, receipts *ReceiptQRService) *PaymentService {
	return &PaymentService{
		store:     store,
		cards:     cards,
		receipts:  receipts,
		validator: NewValidationHelper(),
		now:       time.Now,
	}
}

// PaymentRequest represents the payment initiation payload
type PaymentRequest struct {
	PlanID     string  `json:"planId" validate:"required"`
	Amount     float64 `json:"amount" validate:"required,gt=0"`
	Currency   string  `json:"currency" validate:"omitempty,len=3"`
	CardNumber string  `json:"cardNumber" validate:"required"`
	Expiry     string  `json:"expiry" validate:"required"`
	CVC        string  `json:"cvc" validate:"required"`
	CardName   string  `json:"cardName" validate:"required"`
}

// Charge validates the card strictly and records the payment. The card
// fields in req are never persisted.
func (s *PaymentService) Charge(ctx context.Context, userID string, req *PaymentRequest) (*models.Payment, *CardValidationResult, error) {
	result := s.cards.Validate(CardInput{
		CardNumber: req.CardNumber,
		Expiry:     req.Expiry,
		CVC:        req.CVC,
		CardName:   req.CardName,
	}, true)
	if !result.IsValid {
		return nil, result, nil
	}

	currency := req.Currency
	if currency == "" {
		currency = "TRY"
	}

	clean := stripWhitespace(req.CardNumber)
	now := s.now().UTC()
	payment := &models.Payment{
		ID:          uuid.New().String(),
		UserID:      userID,
		PlanID:      req.PlanID,
		ReferenceID: uuid.New().String(),
		Amount:      req.Amount,
		Currency:    currency,
		CardBank:    result.CardInfo.Bank,
		CardNetwork: result.CardInfo.Network,
		CardLast4:   clean[len(clean)-4:],
		Status:      models.PaymentStatusCompleted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.InsertPayment(ctx, payment); err != nil {
		return nil, nil, err
	}

	log.Printf("[PAYMENTS] Payment %s completed for user %s (%s %.2f %s)",
		payment.ID, userID, payment.PlanID, payment.Amount, payment.Currency)
	return payment, result, nil
}

// InitiatePayment charges a subscription plan
// @Summary Initiate payment
// @Description Validate the card strictly and record the subscription payment
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body PaymentRequest true "Payment data"
// @Success 201 {object} object{paymentId=string,referenceId=string,status=string}
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /payments [post]
func (s *PaymentService) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorCode(w, "Unauthorized", "AUTH_REQUIRED", http.StatusUnauthorized)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req PaymentRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	payment, result, err := s.Charge(r.Context(), userID, &req)
	if err != nil {
		log.Printf("[PAYMENTS] Failed to record payment for user %s: %v", userID, err)
		SendErrorCode(w, "Failed to process payment", "PAYMENT_ERROR", http.StatusInternalServerError)
		return
	}
	if payment == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":       result.Errors[0],
			"code":        "CARD_VALIDATION_FAILED",
			"failedField": result.FailedField,
			"allErrors":   result.Errors,
		})
		return
	}

	resp := map[string]interface{}{
		"paymentId":   payment.ID,
		"referenceId": payment.ReferenceID,
		"status":      payment.Status,
		"cardInfo": map[string]string{
			"bank":    payment.CardBank,
			"network": payment.CardNetwork,
			"last4":   payment.CardLast4,
		},
		"message": "Payment completed",
	}

	if s.receipts != nil {
		if token, image, err := s.receipts.GenerateReceipt(r.Context(), payment); err != nil {
			log.Printf("[PAYMENTS] Receipt generation failed for payment %s: %v", payment.ID, err)
		} else {
			resp["receiptToken"] = token
			resp["receiptQR"] = image
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

// GetPayment looks up a payment by id
// @Summary Payment status
// @Description Return one payment owned by the authenticated user
// @Tags payments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment id"
// @Success 200 {object} models.Payment
// @Failure 404 {object} ErrorResponse
// @Router /payments/{id} [get]
func (s *PaymentService) GetPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorCode(w, "Unauthorized", "AUTH_REQUIRED", http.StatusUnauthorized)
		return
	}

	id := chi.URLParam(r, "id")
	payment, err := s.store.GetPayment(r.Context(), id)
	if err != nil {
		if err == storage.ErrNotFound {
			SendErrorCode(w, "Payment not found", "NOT_FOUND", http.StatusNotFound)
			return
		}
		SendErrorCode(w, "Failed to load payment", "PAYMENT_ERROR", http.StatusInternalServerError)
		return
	}
	if payment.UserID != userID {
		SendErrorCode(w, "Payment not found", "NOT_FOUND", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payment)
}

// VerifyReceipt checks and consumes a payment receipt token
// @Summary Verify receipt
// @Description Validate a scanned receipt QR token; tokens are single use
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{token=string} true "Receipt token"
// @Success 200 {object} object{valid=bool}
// @Failure 400 {object} ErrorResponse
// @Router /payments/receipts/verify [post]
func (s *PaymentService) VerifyReceipt(w http.ResponseWriter, r *http.Request) {
	if s.receipts == nil {
		SendErrorCode(w, "Receipts are not enabled", "RECEIPTS_DISABLED", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		SendErrorResponse(w, "token is required", http.StatusBadRequest, nil)
		return
	}

	receipt, err := s.receipts.VerifyReceipt(r.Context(), req.Token)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"valid":   true,
		"receipt": receipt,
	})
}
