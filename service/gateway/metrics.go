package gateway

import (
	gometrics "github.com/rcrowley/go-metrics"
)

// Counter names, exposed on GET /stats.
const (
	mConnections        = "gateway.connections"
	mAuthenticated      = "gateway.authenticated"
	mEvictions          = "gateway.evictions"
	mForwarded          = "gateway.events.forwarded"
	mEventsDropped      = "gateway.events.dropped"
	mBroadcastDelivered = "gateway.broadcasts.delivered"
	mBroadcastDropped   = "gateway.broadcasts.dropped"
)

func incr(name string, i int64) {
	gometrics.GetOrRegisterCounter(name, gometrics.DefaultRegistry).Inc(i)
}

func decr(name string, i int64) {
	gometrics.GetOrRegisterCounter(name, gometrics.DefaultRegistry).Dec(i)
}

// statsSnapshot flattens the counter registry for the diagnostics
// endpoint.
func statsSnapshot() map[string]int64 {
	out := make(map[string]int64)
	gometrics.DefaultRegistry.Each(func(name string, v any) {
		if c, ok := v.(gometrics.Counter); ok {
			out[name] = c.Count()
		}
	})
	return out
}
