// ABOUTME: Reserves, submits, and resolves alias operations, enforcing global uniqueness against both existing internal ids and prior aliases.
// ABOUTME: A local Alias submission is a future that only resolves once the op round-trips through the sequencer; concurrent aliases to the same name are arbitrated by sequence order.

package dstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// AliasResult is what an alias reservation settles to.
type AliasResult int

const (
	AliasSuccess AliasResult = iota
	AliasConflict
	AliasAlreadyAliased
)

func (r AliasResult) String() string {
	switch r {
	case AliasSuccess:
		return "Success"
	case AliasConflict:
		return "Conflict"
	case AliasAlreadyAliased:
		return "AlreadyAliased"
	default:
		return "Unknown"
	}
}

// ErrCollectionDisposed is the error a still-pending alias future resolves
// with if the collection is disposed before the op round-trips.
var ErrCollectionDisposed = errors.New("collection disposed")

// aliasFuture is a single-resolution future: exactly one of resolveResult
// or resolveErr is ever called, after which wait returns immediately for
// every caller, not just the first.
type aliasFuture struct {
	done   chan struct{}
	result AliasResult
	err    error
}

func newAliasFuture() *aliasFuture {
	return &aliasFuture{done: make(chan struct{})}
}

func (f *aliasFuture) resolveResult(r AliasResult) {
	f.result = r
	close(f.done)
}

func (f *aliasFuture) resolveErr(err error) {
	f.err = err
	close(f.done)
}

func (f *aliasFuture) wait(ctx context.Context) (AliasResult, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// AliasCoordinator reserves and commits aliases, arbitrating concurrent
// claims on the same name against the container's global uniqueness
// namespace.
type AliasCoordinator struct {
	table       *Table
	runtime     Runtime
	makeVisible func(ctx context.Context, sc *StoreContext) error

	mu             sync.Mutex
	aliases        map[string]string // alias -> internal id
	pendingAliases map[string]*aliasFuture
	disposed       bool

	logger *slog.Logger
}

// NewAliasCoordinator wires an AliasCoordinator. makeVisible is called to
// bind a not-yet-bound store before its first alias op is submitted.
func NewAliasCoordinator(table *Table, runtime Runtime, makeVisible func(context.Context, *StoreContext) error, logger *slog.Logger) *AliasCoordinator {
	return &AliasCoordinator{
		table:          table,
		runtime:        runtime,
		makeVisible:    makeVisible,
		aliases:        make(map[string]string),
		pendingAliases: make(map[string]*aliasFuture),
		logger:         logger.With("component", "alias_coordinator"),
	}
}

// AlreadyProcessed is the canonical global-uniqueness predicate: x collides
// either with an existing alias or with an existing internal id.
func (a *AliasCoordinator) AlreadyProcessed(x string) bool {
	a.mu.Lock()
	_, aliased := a.aliases[x]
	a.mu.Unlock()
	return aliased || a.table.IsKnown(x)
}

// Resolve returns the internal id an alias maps to, or ("", false).
func (a *AliasCoordinator) Resolve(alias string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.aliases[alias]
	return id, ok
}

// Alias reserves desiredAlias for internalID and submits the Alias op. If
// internalID is already root (a prior alias on it already succeeded), this
// short-circuits locally with AliasAlreadyAliased rather than round-
// tripping a second time. The returned channel receives at most one result
// and is then closed; it closes without a value if the collection is
// disposed or ctx ends before the op round-trips.
func (a *AliasCoordinator) Alias(ctx context.Context, internalID, desiredAlias string) (<-chan AliasResult, error) {
	sc := a.table.Get(internalID)
	if sc == nil {
		return nil, newUsage(fmt.Errorf("unknown data store %q", internalID))
	}

	if sc.IsRoot() {
		ch := make(chan AliasResult, 1)
		ch <- AliasAlreadyAliased
		close(ch)
		return ch, nil
	}

	if sc.Binding() == Unbound {
		if err := a.makeVisible(ctx, sc); err != nil {
			return nil, err
		}
	}

	future := newAliasFuture()
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return nil, ErrCollectionDisposed
	}
	a.pendingAliases[desiredAlias] = future
	a.mu.Unlock()

	msg := AliasMessage{Type: string(ContainerMessageAlias), InternalID: internalID, Alias: desiredAlias}
	if err := a.runtime.SubmitMessage(string(ContainerMessageAlias), msg, future); err != nil {
		a.mu.Lock()
		delete(a.pendingAliases, desiredAlias)
		a.mu.Unlock()
		return nil, newDataProcessing("submit alias", err)
	}

	out := make(chan AliasResult, 1)
	go func() {
		result, err := future.wait(ctx)
		if err == nil {
			out <- result
		}
		close(out)
	}()
	return out, nil
}

// ProcessAlias handles an inbound Alias op. For a local op this resolves
// the pending future created by Alias; for a remote op it only updates
// state.
func (a *AliasCoordinator) ProcessAlias(msg AliasMessage, local bool) error {
	if msg.InternalID == "" || msg.Alias == "" {
		return newDataCorruption("process alias", ErrMalformedAlias)
	}

	result := a.commit(msg)

	if local {
		a.mu.Lock()
		future, pending := a.pendingAliases[msg.Alias]
		if pending {
			delete(a.pendingAliases, msg.Alias)
		}
		a.mu.Unlock()
		if pending {
			future.resolveResult(result)
		}
	}
	return nil
}

func (a *AliasCoordinator) commit(msg AliasMessage) AliasResult {
	if a.AlreadyProcessed(msg.Alias) {
		a.logger.Info("alias rejected: already processed", "alias", msg.Alias)
		return AliasConflict
	}

	sc := a.table.Get(msg.InternalID)
	if sc == nil {
		a.logger.Error("alias op for unknown internal id", "internal_id", msg.InternalID, "alias", msg.Alias)
		return AliasConflict
	}

	a.mu.Lock()
	a.aliases[msg.Alias] = msg.InternalID
	a.mu.Unlock()

	sc.SetInMemoryRoot()
	a.runtime.AddedOutboundReference(containerHandlePath, "/"+msg.InternalID)
	a.logger.Info("alias committed", "alias", msg.Alias, "internal_id", msg.InternalID)
	return AliasSuccess
}

// WaitIfPendingAlias preserves the historical contract: it returns
// AliasSuccess when no entry for alias is currently pending, conflating
// "nothing in flight" with "alias succeeded". RequestRouter uses
// WaitIfPendingAliasStrict instead.
func (a *AliasCoordinator) WaitIfPendingAlias(ctx context.Context, alias string) (AliasResult, error) {
	a.mu.Lock()
	future, ok := a.pendingAliases[alias]
	a.mu.Unlock()
	if !ok {
		return AliasSuccess, nil
	}
	return future.wait(ctx)
}

// WaitIfPendingAliasStrict is the same wait, but reports whether anything
// was actually pending instead of conflating that with success. New code
// should prefer this.
func (a *AliasCoordinator) WaitIfPendingAliasStrict(ctx context.Context, alias string) (result AliasResult, wasPending bool, err error) {
	a.mu.Lock()
	future, ok := a.pendingAliases[alias]
	a.mu.Unlock()
	if !ok {
		return 0, false, nil
	}
	r, err := future.wait(ctx)
	return r, true, err
}

// Dispose resolves every still-pending alias future with
// ErrCollectionDisposed and refuses any further reservation.
func (a *AliasCoordinator) Dispose() {
	a.mu.Lock()
	a.disposed = true
	pending := a.pendingAliases
	a.pendingAliases = make(map[string]*aliasFuture)
	a.mu.Unlock()

	for _, future := range pending {
		future.resolveErr(ErrCollectionDisposed)
	}
}

// containerHandlePath is the synthetic root the GC graph hangs all alias
// edges from, matching the synthetic "/" node GCManager reports.
const containerHandlePath = "/"
