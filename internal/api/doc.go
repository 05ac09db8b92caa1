// Package api is the HTTP and WebSocket front end of the TCP Connected
// bridge.
//
// REST endpoints under /api/v1 list lights, switch and dim them, force a
// gateway refresh and read recorded state history. Every endpoint except
// /health, /auth/login and /ws requires a bearer access token, and each
// route checks the caller's role against a permission from package auth.
//
// State changes reported by the bridge are fanned out to WebSocket clients
// subscribed to the light.state_changed channel. A WebSocket is opened with
// a single-use ticket from POST /auth/ws-ticket, so access tokens never
// appear in URLs.
package api
