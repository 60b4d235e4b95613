// Package credential manages the id and refresh tokens issued by the
// machine API.
//
// Tokens are written to a Store under a service name derived from the API
// URL and user name. Each token is split into two halves before storage
// because the Windows credential manager rejects long secrets, and the
// halves are joined again on load. Only when both halves exist is a token
// considered present.
//
// Credentials.AccessToken implements the login flow: a still-valid id
// token is reused, an expired one is refreshed with the refresh token, and
// a password is requested only when refreshing is impossible.
package credential
