// Package api implements the HTTP and WebSocket surface of the inventory gateway.
//
// This package provides:
//   - WebSocket endpoints that attach connections to the live subscription layer
//   - REST endpoints for record CRUD on served collections
//   - A publish endpoint for the internal pub/sub bus
//   - Health and metrics endpoints
//   - Middleware stack (request ID, logging, recovery, CORS, body limit, bearer auth)
//
// # Architecture
//
// Record writes made through the REST endpoints go through the document
// store, whose change feed drives every live watch. WebSocket frames are
// handed to a live.Dispatcher one at a time per connection.
//
// # Security
//
// When security.jwt.secret is set, REST routes and the WebSocket upgrade
// require an HS256 bearer token. Browsers that cannot set headers on the
// upgrade request may pass the token as the access_token query parameter.
// Writes require the inventory:write scope.
package api
