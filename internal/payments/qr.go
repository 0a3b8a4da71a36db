// Package payments reconciles SePay bank-transfer deposits with bookings.
package payments

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// DefaultContentPrefix tags transfer descriptions that carry a booking id.
const DefaultContentPrefix = "DATLICH"

const sepayQRBase = "https://qr.sepay.vn/img"

// QRURL builds a SePay VietQR image link for a transfer.
func QRURL(bankCode, accountNo string, amount int64, description string) string {
	des := strings.ReplaceAll(url.QueryEscape(description), "+", "%20")
	return fmt.Sprintf("%s?bank=%s&acc=%s&amount=%d&des=%s", sepayQRBase, bankCode, accountNo, amount, des)
}

// QRBuilder produces deposit QR links for bookings.
type QRBuilder struct {
	bankCode  string
	accountNo string
	prefix    string
}

// NewQRBuilder returns nil when the receiving account is not configured.
func NewQRBuilder(bankCode, accountNo, prefix string) *QRBuilder {
	if bankCode == "" || accountNo == "" {
		return nil
	}
	if prefix == "" {
		prefix = DefaultContentPrefix
	}
	return &QRBuilder{bankCode: bankCode, accountNo: accountNo, prefix: prefix}
}

// Description is the transfer content the patient must keep intact.
func (b *QRBuilder) Description(bookingID string) string {
	return b.prefix + "_" + bookingID
}

// PaymentQR returns the QR link for a booking deposit.
func (b *QRBuilder) PaymentQR(bookingID string, amount int64) string {
	return QRURL(b.bankCode, b.accountNo, amount, b.Description(bookingID))
}

var defaultReference = referencePattern(DefaultContentPrefix)

func referencePattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta(prefix) + `_?([a-zA-Z0-9-]+)`)
}

// ExtractBookingID finds the booking id following prefix in transfer content.
func ExtractBookingID(content, prefix string) (string, bool) {
	pattern := defaultReference
	if prefix != "" && prefix != DefaultContentPrefix {
		pattern = referencePattern(prefix)
	}
	m := pattern.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// NormalizeBookingID accepts canonical or hyphen-stripped ids, since some
// banks drop punctuation from transfer content.
func NormalizeBookingID(raw string) (string, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", false
	}
	return id.String(), true
}
