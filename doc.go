// Package pollwatch polls asynchronous jobs until they reach a terminal
// state.
//
// The motivating case is a data file upload: the file's status resource
// reports summary.status "Pending" while the backend parses it, and the
// caller wants one notification when parsing finishes, fails or takes too
// long. pollwatch generalizes that into a [Coordinator] that runs any number
// of independent polling sessions keyed by request id.
//
// # Quick Start
//
//	c, _ := pollwatch.New()
//	defer c.Close()
//
//	t, _ := pollwatch.NewTarget("file-42", "https://tdp.example.gov/v1/data_files/42/",
//	    pollwatch.WithHeaders("Authorization", "Bearer "+token),
//	)
//	c.Watch(t, pollwatch.Handlers{
//	    OnSuccess: func(resp pollwatch.Response) { fmt.Println(string(resp.Body)) },
//	    OnError:   func(err error) { fmt.Println("failed:", err) },
//	})
//
// Any function can be polled with [Coordinator.StartPolling]; a [Target] is
// just a ready-made HTTP [Probe].
//
// # Retry rules
//
// The first attempt runs immediately. A response that fails its [Predicate]
// and any probe error are retried after the session's wait time, except
// errors carrying status 400, 401 or 403 (see [PollError] and [IsFatal]),
// which end the session. Every attempt, errored or not, counts toward the
// max tries ceiling; exceeding it ends the session through OnTimeout and
// OnError with [ErrMaxTriesExceeded].
//
// # Predicates
//
//   - [StatusLeaves]: summary.status present and no longer pending
//   - [FieldIn], [FieldNotIn]: any JSON field, dot notation
//   - [StatusCodeIn], [HTTPSuccess]: status code checks
//   - [BodyContains], [MatchRegex]: plain-text bodies
//   - [AllOf], [AnyOf]: composition
//
// # Architecture
//
//   - internal/poller: pooled HTTP transport used by [Target] probes
//   - internal/store: session records in memory or Redis, with pub/sub
//   - internal/server: REST API and Server-Sent Events over the store
//   - config: YAML configuration for the pollwatch binary
//
// The internal packages are not part of the public API and may change
// without notice.
package pollwatch
