package client

import (
	"github.com/innkeep/innkeep/internal/metrics"
	"github.com/innkeep/innkeep/internal/realtime"
)

// cacheKeys maps each domain tag to the cache keys a dashboard must refetch
// when that domain changes.
var cacheKeys = map[realtime.Domain][]string{
	realtime.DomainReservations:        {"reservations", "dashboard-metrics"},
	realtime.DomainRooms:               {"rooms", "dashboard-metrics"},
	realtime.DomainGuests:              {"guests"},
	realtime.DomainAnalytics:           {"dashboard-metrics"},
	realtime.DomainRestaurantOrders:    {"restaurant-orders", "restaurant-dashboard"},
	realtime.DomainRestaurantKOT:       {"restaurant-kot", "restaurant-dashboard"},
	realtime.DomainRestaurantBills:     {"restaurant-bills", "restaurant-dashboard"},
	realtime.DomainRestaurantDashboard: {"restaurant-dashboard"},
}

// Dispatch routes one data_update event to the invalidator. Unknown domain
// tags invalidate everything: refetching too much is always safe, serving
// stale data is not.
func Dispatch(domain realtime.Domain, inv Invalidator) {
	keys, ok := cacheKeys[domain]
	if !ok {
		metrics.ClientInvalidationsTotal.WithLabelValues("unknown").Inc()
		inv.InvalidateAll()
		return
	}
	metrics.ClientInvalidationsTotal.WithLabelValues(string(domain)).Inc()
	inv.Invalidate(keys...)
}
