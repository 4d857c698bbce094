// Package server provides the development record service: a local stand-in for the remote view-history service.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [Logging] and [Recover] are the service's middleware.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Record Handler
//
// [RecordHandler] serves api_v3 requests for the userEntry service:
//   - list : records filtered by entryIdEqual, as a KalturaUserEntryListResponse
//   - add : creates the user's record for an entry
//   - update : changes status, position and playback context of an existing record
//
// Requests are form-encoded; the ks identifies the user. Failures are answered with a KalturaAPIException body,
// the way the real service does.
//
// # Proxy Handler
//
// [ProxyHandler] accepts the JSON update requests that clients send to an asynchronous proxy, applies them through
// the record handler, and answers with an acknowledgement the client does not read.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
