// Package model defines data types shared by the socket client and the relay.
//
// Wire format:
//   - Every frame is a JSON text message: {"event": "<name>", "data": <payload>}
//   - Event names for chat traffic are built with the Key helpers
//   - "connect" and "disconnect" are local lifecycle events and never travel on the wire
//
// Conventions:
//   - IDs: string (uuid text, as issued by the persistence layer)
//   - Timestamps: time.Time, encoded as RFC 3339
package model
