// Package api is the HTTP client for the hosted machine API.
//
// A Session owns the transport stack: proxies (HTTP or SOCKS5), HTTP/2,
// fixed client headers, client-side rate limiting and retries with
// exponential backoff on gateway errors. Every request fetches a fresh
// access token from a TokenSource, so an expiring id token is refreshed
// transparently between polls. Failed requests surface as *RequestError
// with the access token scrubbed from the message.
//
// Client maps the REST endpoints used by the provider:
//
//	POST /login                      Login
//	GET  /machine?config=true        Machines (HTTP cache aware)
//	GET  /machine/{name}             MachineStatus
//	POST /job                        SubmitJob
//	GET  /job/{id}?websocket=bool    JobStatus
//	POST /job/{id}/cancel            CancelJob
//
// When a status response carries websocket credentials, StreamStatus
// opens wss://ws.<host>/<version> and waits for the final job document
// instead of polling.
package api
