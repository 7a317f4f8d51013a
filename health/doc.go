// Package health tracks component health as one of three states: healthy,
// degraded or unhealthy.
//
// Status carries the state, a message, a timestamp, optional metrics and
// nested sub-statuses. Monitor stores the latest Status per component and
// aggregates them: any unhealthy component makes the aggregate unhealthy,
// otherwise any degraded component makes it degraded.
//
//	monitor := health.NewMonitor(registry.CoreMetrics())
//	monitor.Collect(map[string]health.Reporter{
//		"transport":  manager,
//		"resilience": executor,
//	})
//	if monitor.AggregateHealth("streamsync").IsUnhealthy() {
//		// page someone
//	}
//
// A Recorder passed to NewMonitor sees every update; metric.Metrics uses it
// to publish the streamsync_health_status gauge.
//
// Messages built by FromError and Degrade are sanitized: URLs, paths, IP
// addresses, ports and credential-looking fragments are replaced with
// placeholders before they can reach an HTTP endpoint.
package health
