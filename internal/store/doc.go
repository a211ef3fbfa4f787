// Package store keeps the latest record of every polling session and fans
// record updates out to subscribers.
//
// This package is internal to pollwatch. The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store
//   - [RedisStore]: Redis-backed implementation that survives restarts
//   - [SessionRecord]: Storage representation of a polling session
//
// Both implementations share the same in-process pub/sub. Subscribers
// receive updates via buffered channels with non-blocking sends: slow
// subscribers miss updates rather than block the coordinator.
package store
