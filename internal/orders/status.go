package orders

import "time"

type Status string

const (
	StatusPending      Status = "pending"
	StatusProcessing   Status = "processing"
	StatusInProduction Status = "in_production"
	StatusShipped      Status = "shipped"
	StatusDelivered    Status = "delivered"
	StatusCancelled    Status = "cancelled"
)

// Forward transitions only, plus cancelled from any non-terminal
// state. delivered and cancelled are terminal.
var validNext = map[Status]map[Status]bool{
	StatusPending:      {StatusProcessing: true, StatusInProduction: true, StatusShipped: true, StatusDelivered: true, StatusCancelled: true},
	StatusProcessing:   {StatusInProduction: true, StatusShipped: true, StatusDelivered: true, StatusCancelled: true},
	StatusInProduction: {StatusShipped: true, StatusDelivered: true, StatusCancelled: true},
	StatusShipped:      {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered:    {},
	StatusCancelled:    {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func IsValid(s Status) bool {
	_, ok := validNext[s]
	return ok
}

func IsTerminal(s Status) bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanCancel: non-terminal status and within the cancellation window
// of creation. Pure over order state and wall-clock time; no
// persisted flag.
func CanCancel(o Order, now time.Time, window time.Duration) bool {
	if IsTerminal(o.Status) {
		return false
	}
	return now.Sub(o.CreatedAt) <= window
}
