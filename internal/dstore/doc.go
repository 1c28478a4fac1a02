// Package dstore implements the data-store collection owned by one
// container: the component that creates, attaches, routes ops to, garbage
// collects, and summarizes a container's child data stores, and that
// maintains the alias namespace user code uses to discover root objects.
//
// # Overview
//
// A container is a tree of data stores. This package owns the collection at
// the root of that tree — not any individual store's content, which is the
// job of the downstream Channel implementation (see internal/channel for
// reference adapters), but the bookkeeping that makes the collection
// addressable, attachable, garbage-collectible, and summarizable.
//
// # Lifecycle
//
// A locally created store starts Unbound and Detached. Calling MakeVisible
// either submits an Attach op (container already attached — the store moves
// to Attaching until the op round-trips) or simply marks the store Bound
// (container still detached — the store is picked up by the next attach
// summary). A store created from a remote Attach op lands directly Bound and
// Attached. The only way out of the table is GC sweep.
//
// # Components
//
//   - Table: the indexed collection of StoreContexts (unbound/bound/remoted)
//   - StoreContext: per-store state machine
//   - AttachCoordinator: local Attach submission, remote Attach processing
//   - AliasCoordinator: alias reservation, submission, and commit
//   - OpRouter / ChannelOpPipeline: inbound message dispatch, handle detection
//   - GCManager: outbound-route graph, used/tombstoned/sweep-ready routes
//   - SummaryBuilder: attach and operational summaries
//   - IDAllocator: compact internal id assignment
//   - RequestRouter: alias/id resolution for "/{alias-or-id}/subpath" requests
//
// Collection wires all of the above into the single entry point a parent
// runtime talks to.
//
// # Concurrency
//
// The collection is driven by a single logical task. Suspension only occurs
// at the points spec'd for this subsystem: channel realization,
// Table.GetBoundOrRemoted(wait=true), AliasCoordinator's pending-alias wait,
// storage reads, and the fan-out summary/GC calls into child channels.
// Everything else — state transitions, table mutation, envelope routing —
// completes synchronously within one call. Suspension is implemented with
// plain channels rather than a bespoke scheduler. The package starts
// goroutines in two places: SummaryBuilder.Summarize runs one per attached
// store, and AliasCoordinator.Alias runs one per reservation to forward the
// settled result to the returned channel.
package dstore
