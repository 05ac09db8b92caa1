// Package auth authenticates API users and authorises their requests.
//
// Users come from the security.users section of the configuration, each
// with an Argon2id password hash and one of three roles: viewer, operator
// or admin. A successful login yields a short-lived HS256 JWT access token
// whose claims carry the role; requests are then checked against a static
// role to permission map.
package auth
