// Package broadcast fans device snapshots out to live observers.
//
// A Snapshot is the full device list in display form. It is rebuilt from
// the registry on every Publish and pushed to each subscribed Observer.
// A new subscriber receives the current snapshot immediately, before any
// further publish.
//
// Delivery is best effort: each observer gets at most one copy per
// publish, nothing is retried, and one slow or closed observer never
// delays the others. Observer implementations must not block in Deliver;
// ChannelObserver is the standard buffered implementation.
package broadcast
