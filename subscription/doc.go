// Package subscription keeps the set of live subscription queries.
//
// A subscription pairs a query tag (Fetch or Count) with a prefix filter and a
// bounded delivery sink. The registry owns every subscription; the emitter
// only ever sees a point-in-time Snapshot, so subscriptions added while an
// emission is in flight are not visited and subscriptions removed during one
// either receive that single update or safely miss it.
//
// Sinks never block the sender. When a sink is full the oldest queued update
// is evicted to make room for the new one: a newer summary supersedes an older
// one for the same card, and a CountChanged signal only says "re-query".
package subscription
