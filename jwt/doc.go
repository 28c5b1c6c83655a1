// Package jwt issues and verifies the access and refresh tokens that bind a
// subject to a session state value.
package jwt
