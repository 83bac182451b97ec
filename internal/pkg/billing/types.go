package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/SubGate/app/models"
)

// FlexString decodes ids that the gateway sends either as JSON strings or as
// JSON numbers.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(b))
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// FlexFloat decodes amounts sent as JSON numbers or numeric strings.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q", s)
	}
	*f = FlexFloat(v)
	return nil
}

// IPNEvent is a decoded gateway notification. Alternative key spellings seen
// across deliveries are folded into the canonical fields by UnmarshalJSON.
type IPNEvent struct {
	PaymentID        FlexString `json:"payment_id,omitempty"`
	InvoiceID        FlexString `json:"invoice_id,omitempty"`
	OrderID          FlexString `json:"order_id,omitempty"`
	PurchaseID       FlexString `json:"purchase_id,omitempty"`
	PaymentStatus    string     `json:"payment_status"`
	PayAddress       string     `json:"pay_address,omitempty"`
	PriceAmount      FlexFloat  `json:"price_amount,omitempty"`
	PriceCurrency    string     `json:"price_currency,omitempty"`
	PayAmount        FlexFloat  `json:"pay_amount,omitempty"`
	ActuallyPaid     FlexFloat  `json:"actually_paid,omitempty"`
	PayCurrency      string     `json:"pay_currency,omitempty"`
	OrderDescription string     `json:"order_description,omitempty"`
}

var ipnKeyAliases = map[string][]string{
	"payment_id":        {"payment_id", "paymentId", "payment_ID"},
	"invoice_id":        {"invoice_id", "invoiceId", "iid"},
	"order_id":          {"order_id", "orderId"},
	"purchase_id":       {"purchase_id", "purchaseId"},
	"payment_status":    {"payment_status", "paymentStatus", "status"},
	"pay_address":       {"pay_address", "payAddress"},
	"price_amount":      {"price_amount", "priceAmount"},
	"price_currency":    {"price_currency", "priceCurrency"},
	"pay_amount":        {"pay_amount", "payAmount"},
	"actually_paid":     {"actually_paid", "actuallyPaid"},
	"pay_currency":      {"pay_currency", "payCurrency"},
	"order_description": {"order_description", "orderDescription"},
}

func (e *IPNEvent) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	pick := func(field string) json.RawMessage {
		for _, k := range ipnKeyAliases[field] {
			if v, ok := raw[k]; ok && !isJSONNull(v) {
				return v
			}
		}
		return nil
	}

	var out IPNEvent
	ids := []struct {
		field string
		dst   *FlexString
	}{
		{"payment_id", &out.PaymentID},
		{"invoice_id", &out.InvoiceID},
		{"order_id", &out.OrderID},
		{"purchase_id", &out.PurchaseID},
	}
	for _, id := range ids {
		if v := pick(id.field); v != nil {
			if err := id.dst.UnmarshalJSON(v); err != nil {
				return fmt.Errorf("%s: %w", id.field, err)
			}
		}
	}

	amounts := []struct {
		field string
		dst   *FlexFloat
	}{
		{"price_amount", &out.PriceAmount},
		{"pay_amount", &out.PayAmount},
		{"actually_paid", &out.ActuallyPaid},
	}
	for _, a := range amounts {
		if v := pick(a.field); v != nil {
			if err := a.dst.UnmarshalJSON(v); err != nil {
				return fmt.Errorf("%s: %w", a.field, err)
			}
		}
	}

	texts := []struct {
		field string
		dst   *string
	}{
		{"payment_status", &out.PaymentStatus},
		{"pay_address", &out.PayAddress},
		{"price_currency", &out.PriceCurrency},
		{"pay_currency", &out.PayCurrency},
		{"order_description", &out.OrderDescription},
	}
	for _, t := range texts {
		if v := pick(t.field); v != nil {
			var fs FlexString
			if err := fs.UnmarshalJSON(v); err != nil {
				return fmt.Errorf("%s: %w", t.field, err)
			}
			*t.dst = fs.String()
		}
	}

	*e = out
	return nil
}

func isJSONNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// ParseIPN decodes a raw notification body.
func ParseIPN(body []byte) (*IPNEvent, error) {
	var ev IPNEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &ev, nil
}

// Status returns the normalized payment status.
func (e *IPNEvent) Status() Status {
	return NormalizeStatus(e.PaymentStatus)
}

// Identifiers returns the lookup keys carried by the event.
func (e *IPNEvent) Identifiers() Identifiers {
	return Identifiers{
		InvoiceID:        e.InvoiceID.String(),
		OrderID:          e.OrderID.String(),
		GatewayPaymentID: e.PaymentID.String(),
	}
}

// Snapshot converts the event into the typed provider record stored on the payment.
func (e *IPNEvent) Snapshot(at time.Time) models.ProviderData {
	t := at
	return models.ProviderData{
		Version:      models.ProviderDataVersion,
		PaymentID:    e.PaymentID.String(),
		InvoiceID:    e.InvoiceID.String(),
		OrderID:      e.OrderID.String(),
		LastStatus:   strings.TrimSpace(e.PaymentStatus),
		PayCurrency:  strings.ToLower(strings.TrimSpace(e.PayCurrency)),
		PayAddress:   strings.TrimSpace(e.PayAddress),
		PriceAmount:  float64(e.PriceAmount),
		ActuallyPaid: float64(e.ActuallyPaid),
		UpdatedAt:    &t,
	}
}

// Remaining is the amount still owed on a partially paid payment.
func (e *IPNEvent) Remaining() float64 {
	return float64(e.PriceAmount) - float64(e.ActuallyPaid)
}

// Identifiers are the candidate keys used to locate a payment.
type Identifiers struct {
	ExternalID       string `json:"external_id,omitempty"`
	InvoiceID        string `json:"invoice_id,omitempty"`
	OrderID          string `json:"order_id,omitempty"`
	GatewayPaymentID string `json:"payment_id,omitempty"`
}

func (i Identifiers) normalized() Identifiers {
	return Identifiers{
		ExternalID:       strings.TrimSpace(i.ExternalID),
		InvoiceID:        strings.TrimSpace(i.InvoiceID),
		OrderID:          strings.TrimSpace(i.OrderID),
		GatewayPaymentID: strings.TrimSpace(i.GatewayPaymentID),
	}
}

// IsEmpty reports whether no identifier is set.
func (i Identifiers) IsEmpty() bool {
	n := i.normalized()
	return n.ExternalID == "" && n.InvoiceID == "" && n.OrderID == "" && n.GatewayPaymentID == ""
}
