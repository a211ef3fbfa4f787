// Package poller checks job status resources over HTTP.
//
// [Client.Check] performs one request and classifies the answer as a usable
// document, a transport failure, a retryable error status or a refusal
// (400, 401, 403). The root package turns that classification into retry or
// termination; scheduling and session bookkeeping live in
// [github.com/jpalmerr/pollwatch.Coordinator].
package poller
