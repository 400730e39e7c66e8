// Package media fetches access tokens for audio/video rooms from the token
// service and tracks the state of a media session.
//
// One token is requested per session load, keyed by the chat id as the room
// and the caller's display name. Failures surface as a short user-visible
// message; there is no retry and no cache.
package media
