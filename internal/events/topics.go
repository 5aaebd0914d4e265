package events

// Topic constants for domain events emitted by the register.
const (
	TopicTransactionCommitted = "transaction.committed"
	TopicRentalCheckedOut     = "rental.checked_out"
	TopicRentalReturned       = "rental.returned"
	TopicRentalOverdue        = "rental.overdue"
	TopicStockLow             = "stock.low"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicTransactionCommitted,
		TopicRentalCheckedOut,
		TopicRentalReturned,
		TopicRentalOverdue,
		TopicStockLow,
	}
}
