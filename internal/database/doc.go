// Package database connects to the chat application's PostgreSQL database
// and bridges its notifications into relay events.
//
// Route handlers that write messages or change memberships can call
// pg_notify('<channel>', '{"event":"chat:<id>:messages","data":{...}}') in the
// same transaction; the Listener picks the notification up and publishes it
// to every connected socket.
package database
