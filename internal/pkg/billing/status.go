package billing

import "strings"

// Status is a gateway payment status, lowercased.
type Status string

const (
	StatusWaiting       Status = "waiting"
	StatusConfirming    Status = "confirming"
	StatusConfirmed     Status = "confirmed"
	StatusSending       Status = "sending"
	StatusPartiallyPaid Status = "partially_paid"
	StatusFinished      Status = "finished"
	StatusFailed        Status = "failed"
	StatusExpired       Status = "expired"
	StatusRefunded      Status = "refunded"
)

// NormalizeStatus lowercases and trims a raw gateway status. Gateways are not
// consistent about casing.
func NormalizeStatus(raw string) Status {
	return Status(strings.ToLower(strings.TrimSpace(raw)))
}

// Handler identifies the branch of the status dispatcher.
type Handler string

const (
	HandlerSuccess    Handler = "success"
	HandlerFailure    Handler = "failure"
	HandlerRefund     Handler = "refund"
	HandlerPartial    Handler = "partial"
	HandlerInProgress Handler = "in_progress"
	HandlerIgnore     Handler = "ignore"
)

// HandlerFor maps a normalized status to its handler.
func HandlerFor(s Status) Handler {
	switch s {
	case StatusFinished:
		return HandlerSuccess
	case StatusFailed, StatusExpired:
		return HandlerFailure
	case StatusRefunded:
		return HandlerRefund
	case StatusPartiallyPaid:
		return HandlerPartial
	case StatusWaiting, StatusConfirming, StatusConfirmed, StatusSending:
		return HandlerInProgress
	default:
		return HandlerIgnore
	}
}

// failureMessage is stored on the payment and shown to the user.
func failureMessage(s Status) string {
	if s == StatusExpired {
		return "Время оплаты истекло"
	}
	return "Платеж не прошел"
}
