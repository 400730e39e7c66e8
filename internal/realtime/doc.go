// Package realtime implements the shared socket connection of the chat client.
//
// The package:
//   - Owns at most one Socket per Manager, created lazily on first Acquire
//   - Reconnects with a bounded-attempt, fixed-delay ReconnectPolicy
//   - Binds exactly one socket listener per event name and fans it out to subscribers
//   - Reports transport failures as status changes, never as returned errors
//
// Subscribers hold a Subscription (or a Scope) for as long as they are mounted
// and release it on teardown. Releasing a subscription never closes the Socket.
package realtime
