// Package relay is the server side of the real-time socket.
//
// A Hub keeps one peer per WebSocket connection and fans every published
// envelope out to all of them through a watermill gochannel topic. Route
// handlers and the database notification listener publish through
// Hub.Publish or the POST emit endpoint; clients only listen.
//
// Routes:
//   - GET  <path>             WebSocket upgrade (default /api/socket/io)
//   - POST /api/socket/emit   publish one envelope
//   - GET  /health            liveness
//   - GET  /metrics           Prometheus metrics, when configured
package relay
