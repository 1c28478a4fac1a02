// ABOUTME: Produces the attached-container operational summary and the detached-container attach summary.
// ABOUTME: The attach summary iterates to a fixed point because summarizing a bound store can transitively bind stores it holds handles to.

package dstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// SummaryBuilder produces a container's operational summary tree (fanning
// out across every store) and its detached attach summary (a fixed-point
// iteration that keeps including newly-created stores until a pass adds
// none).
type SummaryBuilder struct {
	table  *Table
	logger *slog.Logger
}

// NewSummaryBuilder wires a SummaryBuilder against the table it reads.
func NewSummaryBuilder(table *Table, logger *slog.Logger) *SummaryBuilder {
	return &SummaryBuilder{table: table, logger: logger.With("component", "summary_builder")}
}

// CollectionSummary is the composed result of summarizing every eligible
// context, keyed by internal id.
type CollectionSummary struct {
	Tree  map[string]*SummaryTree
	Stats SummaryStats
}

// Summarize produces the operational summary for an attached container: one
// sub-tree per Attached context, run in parallel. Any context still in
// Attaching aborts the whole summary with a data-processing error, since an
// attached container's summary may not depend on local uncommitted state.
func (b *SummaryBuilder) Summarize(ctx context.Context, fullTree, trackState bool) (CollectionSummary, error) {
	type result struct {
		id   string
		tree *SummaryTree
		stat SummaryStats
		err  error
	}

	var toSummarize []*StoreContext
	var abortErr error
	b.table.Each(func(sc *StoreContext) {
		if abortErr != nil {
			return
		}
		switch sc.AttachState() {
		case AttachStateAttaching:
			abortErr = newDataProcessing("summarize", fmt.Errorf("data store %q is attaching during summary", sc.ID()))
		case AttachStateAttached:
			toSummarize = append(toSummarize, sc)
		}
	})
	if abortErr != nil {
		return CollectionSummary{}, abortErr
	}

	results := make(chan result, len(toSummarize))
	var wg sync.WaitGroup
	for _, sc := range toSummarize {
		wg.Add(1)
		go func(sc *StoreContext) {
			defer wg.Done()
			tree, stats, err := sc.Summarize(ctx, fullTree, trackState)
			results <- result{id: sc.ID(), tree: tree, stat: stats, err: err}
		}(sc)
	}
	wg.Wait()
	close(results)

	out := CollectionSummary{Tree: make(map[string]*SummaryTree, len(toSummarize))}
	for r := range results {
		if r.err != nil {
			return CollectionSummary{}, r.err
		}
		out.Tree[r.id] = r.tree
		out.Stats.TreeNodeCount += r.stat.TreeNodeCount
		out.Stats.BlobNodeCount += r.stat.BlobNodeCount
		out.Stats.TotalBlobSize += r.stat.TotalBlobSize
	}
	return out, nil
}

// AttachSummaryResult is the detached-container equivalent of
// CollectionSummary, additionally reporting how many fixed-point passes ran.
type AttachSummaryResult struct {
	Tree   map[string]*SummaryTree
	Stats  SummaryStats
	Passes int
}

// BuildAttachSummary produces the detached container's attach summary by
// iterating to a fixed point: each pass summarizes every bound,
// not-yet-summarized, attach-op-not-yet-fired context, and since doing so
// can transitively bind new stores (a summarized store may hold a handle
// that makes another store reachable), the loop repeats until
// Table.NotBoundLength stops changing. A not-yet-loaded context contributes
// its base snapshot verbatim rather than forcing a realize.
func (b *SummaryBuilder) BuildAttachSummary(ctx context.Context) (AttachSummaryResult, error) {
	summarized := make(map[string]struct{})
	out := AttachSummaryResult{Tree: make(map[string]*SummaryTree)}

	for {
		before := b.table.NotBoundLength()

		var pending []*StoreContext
		b.table.EachBound(func(sc *StoreContext) {
			if _, done := summarized[sc.ID()]; done {
				return
			}
			pending = append(pending, sc)
		})

		for _, sc := range pending {
			tree, stats, err := summarizeForAttach(ctx, sc)
			if err != nil {
				return AttachSummaryResult{}, err
			}
			out.Tree[sc.ID()] = tree
			out.Stats.TreeNodeCount += stats.TreeNodeCount
			out.Stats.BlobNodeCount += stats.BlobNodeCount
			out.Stats.TotalBlobSize += stats.TotalBlobSize
			summarized[sc.ID()] = struct{}{}
		}

		out.Passes++
		after := b.table.NotBoundLength()
		if after == before {
			break
		}
	}

	b.logger.Info("attach summary built", "stores", len(out.Tree), "passes", out.Passes)
	return out, nil
}

// summarizeForAttach produces one context's contribution to an attach
// summary: its full attach-time snapshot, flattened into the generic
// SummaryTree shape, for a not-yet-loaded context; its live summary
// otherwise.
func summarizeForAttach(ctx context.Context, sc *StoreContext) (*SummaryTree, SummaryStats, error) {
	if !sc.IsLoaded() {
		summary, err := sc.AttachData(ctx, true)
		if err != nil {
			return nil, SummaryStats{}, err
		}
		return snapshotToSummaryTree(summary.Snapshot), SummaryStats{TreeNodeCount: 1}, nil
	}
	return sc.Summarize(ctx, true, false)
}

// snapshotToSummaryTree reshapes a flattened SnapshotTree into the
// recursively-keyed SummaryTree a summary payload is expressed in.
func snapshotToSummaryTree(snap *SnapshotTree) *SummaryTree {
	root := &SummaryTree{Children: make(map[string]*SummaryTree)}
	if snap == nil {
		return root
	}
	for _, entry := range snap.Entries {
		insertSnapshotEntry(root, entry)
	}
	return root
}

func insertSnapshotEntry(root *SummaryTree, entry SnapshotEntry) {
	parts := splitNonEmpty(entry.Path)
	node := root
	for i, part := range parts {
		if i == len(parts)-1 {
			node.Children[part] = &SummaryTree{Blob: entry.Blob}
			return
		}
		child, ok := node.Children[part]
		if !ok {
			child = &SummaryTree{Children: make(map[string]*SummaryTree)}
			node.Children[part] = child
		}
		node = child
	}
}

func splitNonEmpty(path string) []string {
	var parts []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i > start {
				parts = append(parts, path[start:i])
			}
			start = i + 1
		}
	}
	return parts
}
