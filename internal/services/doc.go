// Package services implements [Client], the view-history engine's only link to the record service.
//
// # Client Interface
//
// A [Client] sends one [Request] and returns one [Response] or an error. Requests are built from three actions:
//   - [ActionList] : read the user's record for an entry (filter:entryIdEqual)
//   - [ActionAdd] : create the record on first write
//   - [ActionUpdate] : change an existing record by id
//
// # Implementations
//
// [HistoryService] posts form-encoded api_v3 requests and decodes JSON replies.
//
// [ProxyService] posts update requests as JSON to an asynchronous proxy. The proxy's reply is ignored;
// the engine keeps the optimistic record it computed before the call.
//
// [Router] combines the two: updates go to the proxy when one is configured.
//
// [BreakerClient] wraps any client with a sony/gobreaker circuit breaker.
//
// # Credentials
//
// [Credentials] supplies the opaque ks. [TokenCredentials] adapts an [oauth2.TokenSource] so hosts with
// refreshable sessions can plug in their own source.
//
// # Error Handling
//
// Clients return typed errors:
//   - [*RemoteError] : KalturaAPIException payload from the service
//   - [shared.ErrAPIRequest] : transport failure or non-2xx status
//   - [shared.ErrUnexpectedResponse] : body could not be decoded
//   - [shared.ErrServiceUnavailable] : circuit breaker is open
//   - [shared.ErrNoCredentials] : no ks available
package services
