package payments

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/clinic-booking/internal/availability"
	"github.com/wolfman30/clinic-booking/internal/bookings"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

const providerSepay = "sepay"

type settlementStore interface {
	LoadSettlement(ctx context.Context, bookingID string) (*Settlement, error)
	MarkPaid(ctx context.Context, s *Settlement, t Transfer) (SettleOutcome, error)
}

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

type slotInvalidator interface {
	Invalidate(ctx context.Context, q availability.Query)
}

// sepayPayload is the transfer notification SePay posts for each bank movement.
type sepayPayload struct {
	ID              json.Number `json:"id"`
	Gateway         string      `json:"gateway"`
	TransactionDate string      `json:"transactionDate"`
	AccountNumber   string      `json:"accountNumber"`
	Code            *string     `json:"code"`
	Content         string      `json:"content"`
	Description     string      `json:"description"`
	TransferType    string      `json:"transferType"`
	TransferAmount  float64     `json:"transferAmount"`
	ReferenceCode   string      `json:"referenceCode"`
}

func (p sepayPayload) eventID() string {
	if id := p.ID.String(); id != "" {
		return id
	}
	return p.ReferenceCode
}

func (p sepayPayload) text() string {
	if p.Content != "" {
		return p.Content
	}
	return p.Description
}

// SepayWebhookHandler settles booking deposits from SePay transfer notifications.
type SepayWebhookHandler struct {
	apiKey    string
	prefix    string
	store     settlementStore
	processed processedTracker
	slots     slotInvalidator
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	now       func() time.Time
}

func NewSepayWebhookHandler(apiKey, prefix string, store settlementStore, processed processedTracker, logger *logging.Logger) *SepayWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if prefix == "" {
		prefix = DefaultContentPrefix
	}
	return &SepayWebhookHandler{
		apiKey:    apiKey,
		prefix:    prefix,
		store:     store,
		processed: processed,
		logger:    logger,
		now:       time.Now,
	}
}

// WithSlotInvalidator drops cached availability once a booking settles.
func (h *SepayWebhookHandler) WithSlotInvalidator(slots slotInvalidator) *SepayWebhookHandler {
	h.slots = slots
	return h
}

func (h *SepayWebhookHandler) WithMetrics(m *metrics.BookingMetrics) *SepayWebhookHandler {
	h.metrics = m
	return h
}

func (h *SepayWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r.Header.Get("Authorization")) {
		h.metrics.ObserveWebhook(providerSepay, "unauthorized")
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Unauthorized"})
		return
	}

	var payload sepayPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Warn("failed to decode sepay payload", "error", err)
		h.metrics.ObserveWebhook(providerSepay, "invalid")
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid payload"})
		return
	}

	ack := func(outcome string, body map[string]any) {
		h.metrics.ObserveWebhook(providerSepay, outcome)
		writeJSON(w, http.StatusOK, body)
	}
	fail := func(msg string, err error, args ...any) {
		h.logger.Error(msg, append([]any{"error", err}, args...)...)
		h.metrics.ObserveWebhook(providerSepay, "error")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "WEBHOOK_ERROR"})
	}

	if payload.TransferType != "in" {
		ack("ignored", map[string]any{"ok": true})
		return
	}

	ctx := r.Context()
	eventID := payload.eventID()
	if eventID != "" && h.processed != nil {
		seen, err := h.processed.AlreadyProcessed(ctx, providerSepay, eventID)
		if err != nil {
			fail("processed lookup failed", err, "event_id", eventID)
			return
		}
		if seen {
			ack("duplicate", map[string]any{"ok": true})
			return
		}
	}

	raw, ok := ExtractBookingID(payload.text(), h.prefix)
	if !ok {
		h.logger.Warn("sepay transfer without booking reference", "event_id", eventID, "content", payload.text())
		ack("no_reference", map[string]any{"ok": true})
		return
	}
	bookingID, ok := NormalizeBookingID(raw)
	if !ok {
		h.logger.Warn("sepay transfer references malformed booking id", "event_id", eventID, "reference", raw)
		ack("unknown_booking", map[string]any{"ok": true})
		return
	}

	settlement, err := h.store.LoadSettlement(ctx, bookingID)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			h.logger.Warn("sepay transfer for unknown booking", "booking_id", bookingID, "event_id", eventID)
			ack("unknown_booking", map[string]any{"ok": true})
			return
		}
		fail("failed to load booking for settlement", err, "booking_id", bookingID)
		return
	}

	if settlement.BookingStatus == "paid" {
		ack("already_paid", map[string]any{"ok": true, "alreadyPaid": true})
		return
	}
	if settlement.PaymentID == "" {
		h.logger.Warn("no pending payment for booking", "booking_id", bookingID)
		ack("no_pending_payment", map[string]any{"ok": true})
		return
	}
	if payload.TransferAmount < float64(settlement.ExpectedAmount) {
		h.logger.Warn("sepay transfer below expected amount",
			"booking_id", bookingID,
			"paid", payload.TransferAmount,
			"expected", settlement.ExpectedAmount,
		)
		ack("underpaid", map[string]any{"ok": true})
		return
	}

	outcome, err := h.store.MarkPaid(ctx, settlement, Transfer{
		Provider:        providerSepay,
		EventID:         eventID,
		TransactionCode: payload.ReferenceCode,
		Amount:          int64(payload.TransferAmount),
		ReceivedAt:      h.now().UTC(),
	})
	if err != nil {
		fail("failed to settle booking", err, "booking_id", bookingID)
		return
	}
	switch outcome {
	case SettleDuplicate:
		ack("duplicate", map[string]any{"ok": true})
		return
	case SettleAlreadyPaid:
		ack("already_paid", map[string]any{"ok": true, "alreadyPaid": true})
		return
	}

	if h.slots != nil {
		h.slots.Invalidate(ctx, bookings.SlotRef{
			ClinicID:    settlement.ClinicID,
			ServiceID:   settlement.ServiceID,
			BookingTime: settlement.BookingTime,
		}.Query())
	}
	h.logger.Info("booking paid", "booking_id", bookingID, "event_id", eventID, "amount", payload.TransferAmount)
	ack("paid", map[string]any{"success": true})
}

// authorized checks the optional "Authorization: Apikey <key>" header.
func (h *SepayWebhookHandler) authorized(header string) bool {
	if h.apiKey == "" {
		return true
	}
	scheme, key, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "apikey") {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(key)), []byte(h.apiKey)) == 1
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
