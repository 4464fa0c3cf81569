// Package recorder implements record/replay proxies for live Go values.
//
// A Recorder wraps a live object; every attribute read and call is forwarded
// to the wrapped object and appended to an ordered log. A Player wraps a
// previously captured log; reads and calls are matched against the log in
// order and satisfied from it, so the original dependency (for example a
// network service) does not need to be present.
//
// ARCHITECTURE:
//
// Explicit proxy surface:
// Attribute interception is expressed as an explicit API - Attr, Call,
// CallMethod and a curated set of special operations (Bool, Len, Item,
// Next, Enter, Exit) - rather than implicit dispatch. Which special
// operations a proxy supports is decided once, at construction, by
// introspecting the wrapped value into an enumerable Capabilities set.
//
// Ordered replay contract:
// The playback log is consumed strictly from the front. Replaying reads and
// calls in any order other than the recorded order is a protocol violation
// and surfaces as a typed error (NonMatchingRequest, NonMatchingCallArgs,
// NoCallRecordsLeft). The framework never recovers from these silently;
// they signal that the replayed code path diverged from the recorded one.
//
// Determinism:
// Correct ordered replay requires effectively single-threaded, deterministic
// call order during both recording and playback. Proxies are safe for
// concurrent use (appends are mutex-guarded), but concurrency reorders the
// log in whatever way timing produces. Package unordered exists to relax
// this for functions invoked by worker pools.
package recorder
