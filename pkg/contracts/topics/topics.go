package topics

const (
	// Signals
	SignalsDelivered = "signals_delivered"
	SignalsDLQ       = "signals_delivered_dlq"

	// Payments
	PaymentsCredited = "payments_credited"
)
