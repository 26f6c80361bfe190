// Package auth validates bearer tokens for the inventory gateway.
//
// Tokens are HS256-signed JWTs carrying a subject and a list of scopes.
// The gateway never issues tokens to end users itself; GenerateToken
// exists for operators and tests that need a token for a known secret.
//
// Scopes are checked statically:
//   - inventory:read  allows websocket sessions and REST reads
//   - inventory:write allows REST writes and bus publishes
//
// A token with no scopes is treated as read-only.
package auth
