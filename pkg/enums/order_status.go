package enums

import "slices"

// OrderStatus tracks fulfilment of a paid order. Transitions are strictly
// adjacent: PENDING_PAYMENT -> PAID -> PREPARING -> DISPATCHED -> COMPLETED.
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "PENDING_PAYMENT"
	OrderStatusPaid           OrderStatus = "PAID"
	OrderStatusPreparing      OrderStatus = "PREPARING"
	OrderStatusDispatched     OrderStatus = "DISPATCHED"
	OrderStatusCompleted      OrderStatus = "COMPLETED"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPendingPayment,
	OrderStatusPaid,
	OrderStatusPreparing,
	OrderStatusDispatched,
	OrderStatusCompleted,
}

// ActiveOrderStatuses are the states shown as an in-progress order.
var ActiveOrderStatuses = []OrderStatus{
	OrderStatusPaid,
	OrderStatusPreparing,
	OrderStatusDispatched,
}

var orderStatusLabels = map[OrderStatus]string{
	OrderStatusPendingPayment: "Awaiting payment",
	OrderStatusPaid:           "Paid",
	OrderStatusPreparing:      "Preparing",
	OrderStatusDispatched:     "Out for delivery",
	OrderStatusCompleted:      "Completed",
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// Label returns the customer facing wording for the status.
func (s OrderStatus) Label() string {
	if label, ok := orderStatusLabels[s]; ok {
		return label
	}
	return string(s)
}

func (s OrderStatus) IsValid() bool { return slices.Contains(validOrderStatuses, s) }

// Next returns the only status reachable from s.
func (s OrderStatus) Next() (OrderStatus, bool) {
	i := slices.Index(validOrderStatuses, s)
	if i < 0 || i+1 == len(validOrderStatuses) {
		return "", false
	}
	return validOrderStatuses[i+1], true
}

// CanTransition reports whether to directly follows s.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	next, ok := s.Next()
	return ok && next == to
}

// ParseOrderStatus is case-sensitive; statuses travel upper-case on the wire.
func ParseOrderStatus(value string) (OrderStatus, error) {
	return parse("order status", value, validOrderStatuses)
}
