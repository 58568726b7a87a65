/*
Package resilience provides a circuit breaker that guards collector delivery.

When the collector is down every flush would otherwise wait out its own timeout
and retries. After Threshold consecutive failures the breaker fails calls fast
with ErrCircuitOpen. Once Cooldown has passed it admits up to Probes calls; if
they all succeed the circuit closes, and any failure reopens it.

	breaker := resilience.New("vfl-hub", resilience.Settings{
		Threshold: 5,
		Cooldown:  15 * time.Second,
	})

	err := breaker.Do(func() error {
		return post(ctx, batch)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		// collector considered unavailable
	}

States:

	Closed --[Threshold failures]--> Open --[Cooldown]--> Half-Open --[Probes successes]--> Closed
	                                  ^                       |
	                                  +-------[failure]-------+

Context cancellation is not counted as a failure unless IsFailure says so.
*/
package resilience
