package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/wolfman30/clinic-booking/internal/events"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// PaymentNotifier emails clinic staff when a booking deposit settles. It is
// the outbox DeliveryHandler for booking.paid.v1.
type PaymentNotifier struct {
	email      EmailSender
	recipients []string
	logger     *logging.Logger
}

func NewPaymentNotifier(email EmailSender, recipients []string, logger *logging.Logger) *PaymentNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &PaymentNotifier{email: email, recipients: recipients, logger: logger}
}

// Handle implements events.DeliveryHandler. Unknown event types are
// acknowledged so they do not block the outbox.
func (n *PaymentNotifier) Handle(ctx context.Context, entry events.OutboxEntry) error {
	if entry.Type != events.EventTypeBookingPaid {
		n.logger.Debug("notify: skipping event", "type", entry.Type, "event_id", entry.ID)
		return nil
	}
	var evt events.BookingPaidV1
	if err := json.Unmarshal(entry.Payload, &evt); err != nil {
		// a malformed payload will never decode; drop it
		n.logger.Error("notify: invalid booking.paid payload", "error", err, "event_id", entry.ID)
		return nil
	}
	return n.NotifyBookingPaid(ctx, evt)
}

// NotifyBookingPaid sends the deposit email to every configured recipient.
func (n *PaymentNotifier) NotifyBookingPaid(ctx context.Context, evt events.BookingPaidV1) error {
	if n.email == nil || len(n.recipients) == 0 {
		n.logger.Debug("notify: no email recipients configured", "booking_id", evt.BookingID)
		return nil
	}

	patient := evt.PatientName
	if patient == "" {
		patient = "A patient"
	}
	amount := formatVND(evt.AmountPaid)
	slot := evt.BookingTime.Format("Monday, 02/01/2006 15:04")

	subject := fmt.Sprintf("Deposit received - %s", patient)
	body := fmt.Sprintf(`%s has paid the %s deposit.

Booking: %s
Appointment: %s
Phone: %s
Amount: %s
Transaction: %s
Paid at: %s`, patient, amount, evt.BookingID, slot, evt.PatientPhone, amount, evt.TransactionCode, evt.PaidAt.Format("02/01/2006 15:04"))

	var errs []error
	for _, recipient := range n.recipients {
		if err := n.email.Send(ctx, EmailMessage{To: recipient, Subject: subject, Body: body, Category: "booking-paid"}); err != nil {
			n.logger.Error("notify: failed to send email", "error", err, "to", recipient, "booking_id", evt.BookingID)
			errs = append(errs, err)
			continue
		}
		n.logger.Info("notify: payment email sent", "to", recipient, "booking_id", evt.BookingID)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d of %d emails failed: %w", len(errs), len(n.recipients), errs[0])
	}
	return nil
}

// formatVND renders 150000 as "150,000 VND".
func formatVND(amount int64) string {
	digits := strconv.FormatInt(amount, 10)
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + " VND"
}
