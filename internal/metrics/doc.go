// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Socket connection state, dial attempts and event rates
//   - Relay peers, publishes, deliveries and dropped peers
//   - Notification listener throughput
//   - Database connection pool stats
package metrics
