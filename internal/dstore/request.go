// ABOUTME: Resolves "/{alias-or-id}/subpath" requests into a realized channel, honoring wait/viaHandle/allowTombstone/allowInactive headers.
// ABOUTME: allowTombstone is forced true whenever the request targets a sub-path within a store, since tombstoning only gates access to the store's own root.

package dstore

import (
	"context"
	"log/slog"
	"strings"
)

// RequestRouter resolves "/{alias-or-id}/subpath" requests into a realized
// channel.
type RequestRouter struct {
	table *Table
	alias *AliasCoordinator
	gc    *GCManager

	logger *slog.Logger
}

// NewRequestRouter wires a RequestRouter against the collaborators it reads.
func NewRequestRouter(table *Table, alias *AliasCoordinator, gc *GCManager, logger *slog.Logger) *RequestRouter {
	return &RequestRouter{table: table, alias: alias, gc: gc, logger: logger.With("component", "request_router")}
}

// Request resolves url against the alias namespace and the table, then
// forwards the remaining sub-path to the resolved store's channel.
func (r *RequestRouter) Request(ctx context.Context, url string, headers RequestHeaders) (ResponseMessage, error) {
	trimmed := strings.TrimPrefix(url, "/")
	parts := strings.SplitN(trimmed, "?", 2)
	path := parts[0]
	query := parseQuery(parts)

	segments := strings.Split(path, "/")
	if len(segments) == 0 || segments[0] == "" {
		return ResponseMessage{}, newNotFound(url)
	}
	id := segments[0]
	subPath := strings.Join(segments[1:], "/")

	// AllowInactive is the allowTombstone header's remote-ack counterpart:
	// either one lets the request through to a tombstoned store's root.
	allowTombstone := headers.AllowTombstone || headers.AllowInactive
	if subPath != "" {
		allowTombstone = true
	}

	if _, _, err := r.alias.WaitIfPendingAliasStrict(ctx, id); err != nil {
		return ResponseMessage{}, err
	}

	internalID := id
	if resolved, ok := r.alias.Resolve(id); ok {
		internalID = resolved
	}

	// ViaHandle requests arrive already holding a handle to the store, which
	// implies the store is known to exist; wait for it the same as an
	// explicit Wait header would.
	wait := headers.Wait || headers.ViaHandle
	sc, err := r.table.GetBoundOrRemoted(ctx, internalID, wait)
	if err != nil {
		return ResponseMessage{}, err
	}
	if sc == nil {
		return ResponseMessage{}, newNotFound(url)
	}

	if err := r.gc.NodeUpdatedForRequest("/"+trimURL(path), internalID, "Loaded", allowTombstone); err != nil {
		return ResponseMessage{}, err
	}

	if _, err := sc.Realize(ctx); err != nil {
		return ResponseMessage{}, err
	}

	return sc.Request(ctx, RequestMessage{Path: subPath, Query: query, Headers: headers})
}

// trimURL strips a leading and trailing slash, matching the trimmed URL form
// GC's node-updated accounting expects.
func trimURL(path string) string {
	return strings.Trim(path, "/")
}

// parseQuery extracts "?k=v&k2=v2" style query parameters from a split
// "path?query" pair; parts[1] is absent for a request with no query string.
func parseQuery(parts []string) map[string][]string {
	out := make(map[string][]string)
	if len(parts) < 2 || parts[1] == "" {
		return out
	}
	for _, pair := range strings.Split(parts[1], "&") {
		kv := strings.SplitN(pair, "=", 2)
		key := kv[0]
		val := ""
		if len(kv) == 2 {
			val = kv[1]
		}
		out[key] = append(out[key], val)
	}
	return out
}
