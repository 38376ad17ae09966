// Package ingest turns raw sensor payloads into device state.
//
// Ingestion runs in three steps:
//
//  1. Normalize: any payload shape becomes a Reading (device id, in, out,
//     occupancy). Malformed input degrades to zeros; it never fails.
//  2. Reconcile: the Reading is merged into the device registry (create
//     on first sight, otherwise update counters per the configured
//     counter mode) and appended to the history log.
//  3. Publish: on full success the broadcaster pushes a fresh snapshot
//     to every observer.
//
// Engine.Ingest runs all three under one mutex, so readings are applied
// and snapshots are published in arrival order.
package ingest
