// Package traversal walks the remote tree and loads every record file it finds.
package traversal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync/atomic"
	"time"

	"github.com/movie-explorer/catalog-ingest/internal/catalog"
	"github.com/movie-explorer/catalog-ingest/internal/config"
	"github.com/movie-explorer/catalog-ingest/internal/extract"
	"github.com/movie-explorer/catalog-ingest/internal/metrics"
	"github.com/movie-explorer/catalog-ingest/internal/remote"
)

// State is the lifecycle of one Orchestrator.
type State int32

// Orchestrator states.
const (
	StateIdle State = iota
	StateWalking
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWalking:
		return "walking"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyWalked is returned when Walk is called on an orchestrator that is not idle.
	ErrAlreadyWalked = errors.New("orchestrator has already been used")

	// ErrMissingRoot is returned when Walk is called without a root folder id.
	ErrMissingRoot = errors.New("root folder id is required")
)

type (
	// RunStats aggregates the outcome of one walk.
	//
	// Processed counts record files that were fetched and attempted, so
	// Processed == Inserted + Skipped + Failed.
	RunStats struct {
		Processed      int
		Inserted       int
		Skipped        int
		Failed         int
		FoldersVisited int
		FoldersFailed  int
	}

	// Orchestrator performs a depth-first, pre-order walk from a root folder. Each record
	// file is fetched, parsed and loaded in natural-key mode before the next one starts.
	Orchestrator struct {
		tree     remote.Tree
		loader   catalog.Loader
		suffix   string
		maxDepth int
		recorder *metrics.Recorder
		logger   *slog.Logger
		state    atomic.Int32
	}

	// Option configures an Orchestrator.
	Option func(*Orchestrator)

	frame struct {
		id    string
		name  string
		path  string
		depth int
	}
)

// WithSuffix sets the record-file suffix (case-insensitive). Default ".json".
func WithSuffix(suffix string) Option {
	return func(o *Orchestrator) {
		if suffix != "" {
			o.suffix = suffix
		}
	}
}

// WithMaxDepth stops descent below depth levels under the root. Zero means unlimited.
func WithMaxDepth(depth int) Option {
	return func(o *Orchestrator) {
		if depth > 0 {
			o.maxDepth = depth
		}
	}
}

// WithRecorder records per-record and per-folder metrics.
func WithRecorder(r *metrics.Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator creates an idle orchestrator over tree and loader.
func NewOrchestrator(tree remote.Tree, loader catalog.Loader, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		tree:   tree,
		loader: loader,
		suffix: extract.DefaultSuffix,
		logger: config.NewLogger(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// String renders the counters for the run summary line.
func (s RunStats) String() string {
	return fmt.Sprintf("processed=%d inserted=%d skipped=%d failed=%d folders=%d folders_failed=%d",
		s.Processed, s.Inserted, s.Skipped, s.Failed, s.FoldersVisited, s.FoldersFailed)
}

// Walk traverses the tree from rootID. Folder, fetch, parse and load failures are logged,
// counted and skipped. The walk ends early only when the context is cancelled or the loader
// reports catalog.ErrUnavailable; the stats gathered so far are returned with the error.
func (o *Orchestrator) Walk(ctx context.Context, rootID, rootName string) (RunStats, error) {
	var stats RunStats

	if rootID == "" {
		return stats, ErrMissingRoot
	}

	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateWalking)) {
		return stats, ErrAlreadyWalked
	}

	defer o.state.Store(int32(StateDone))

	if rootName == "" {
		rootName = rootID
	}

	visitedFolders := make(map[string]bool)
	visitedLeaves := make(map[string]bool)
	stack := []frame{{id: rootID, name: rootName, path: rootName}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visitedFolders[current.id] {
			o.logger.Warn("Folder reached more than once, skipping",
				slog.String("folder_id", current.id),
				slog.String("path", current.path))

			continue
		}

		visitedFolders[current.id] = true

		listing, err := o.tree.ListChildren(ctx, current.id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}

			stats.FoldersFailed++
			o.recorder.RecordFolder(false)
			o.logger.Error("Failed to list folder, skipping subtree",
				slog.String("folder_id", current.id),
				slog.String("path", current.path),
				slog.String("kind", string(remote.KindOf(err))),
				slog.String("error", err.Error()))

			continue
		}

		stats.FoldersVisited++
		o.recorder.RecordFolder(true)

		o.logger.Info(fmt.Sprintf("Found %d files and %d subfolders in %s",
			len(listing.Files), len(listing.Folders), current.path),
			slog.String("folder_id", current.id),
			slog.Int("depth", current.depth))

		for _, leaf := range listing.Files {
			if !extract.IsRecordFile(leaf.Name, o.suffix) {
				continue
			}

			if visitedLeaves[leaf.ID] {
				o.logger.Debug("Record file listed under several parents, already processed",
					slog.String("file_id", leaf.ID),
					slog.String("name", leaf.Name))

				continue
			}

			visitedLeaves[leaf.ID] = true

			if err := ctx.Err(); err != nil {
				return stats, err
			}

			if err := o.processLeaf(ctx, current, leaf, &stats); err != nil {
				return stats, err
			}
		}

		if o.maxDepth > 0 && current.depth >= o.maxDepth {
			if len(listing.Folders) > 0 {
				o.logger.Warn("Maximum depth reached, not descending",
					slog.String("path", current.path),
					slog.Int("max_depth", o.maxDepth),
					slog.Int("skipped_subfolders", len(listing.Folders)))
			}

			continue
		}

		// Reverse order so subfolders pop in name order.
		for i := len(listing.Folders) - 1; i >= 0; i-- {
			sub := listing.Folders[i]
			stack = append(stack, frame{
				id:    sub.ID,
				name:  sub.Name,
				path:  path.Join(current.path, sub.Name),
				depth: current.depth + 1,
			})
		}
	}

	return stats, nil
}

// processLeaf handles one record file. Only a catalog outage is returned; every other
// failure is absorbed into stats.
func (o *Orchestrator) processLeaf(ctx context.Context, folder frame, leaf remote.Leaf, stats *RunStats) error {
	stats.Processed++

	attrs := []any{
		slog.String("file_id", leaf.ID),
		slog.String("name", leaf.Name),
		slog.String("path", folder.path),
		slog.String("size", leaf.SizeString()),
	}

	data, err := o.tree.FetchLeafBytes(ctx, leaf.ID)
	if err != nil {
		stats.Failed++
		o.recorder.RecordFailure(metrics.PathBulk, metrics.StageFetch)
		o.logger.Error("Failed to fetch record file",
			append(attrs, slog.String("kind", string(remote.KindOf(err))), slog.String("error", err.Error()))...)

		return nil
	}

	movie, err := extract.Parse(leaf.Name, data)
	if err != nil {
		stats.Failed++
		o.recorder.RecordFailure(metrics.PathBulk, metrics.StageParse)
		o.logger.Warn("Skipping malformed record file", append(attrs, slog.String("error", err.Error()))...)

		return nil
	}

	start := time.Now()
	outcome, err := o.loader.Load(ctx, movie, catalog.NaturalKeyConflict)
	o.recorder.ObserveLoad(metrics.PathBulk, time.Since(start))

	if err != nil {
		stats.Failed++
		o.recorder.RecordFailure(metrics.PathBulk, metrics.StageLoad)
		o.logger.Error("Failed to load record", append(attrs, slog.String("error", err.Error()))...)

		if errors.Is(err, catalog.ErrUnavailable) {
			return fmt.Errorf("catalog unavailable while loading %s: %w", leaf.Name, err)
		}

		return nil
	}

	if outcome.IsInserted() {
		stats.Inserted++
		o.recorder.RecordOutcome(metrics.PathBulk, metrics.OutcomeInserted)
		o.logger.Info("Inserted movie", append(attrs,
			slog.String("id", outcome.ID), slog.String("movie", movie.Key().String()))...)

		return nil
	}

	stats.Skipped++
	o.recorder.RecordOutcome(metrics.PathBulk, metrics.OutcomeAlreadyExists)
	o.logger.Info("Movie already exists, skipped", append(attrs, slog.String("movie", movie.Key().String()))...)

	return nil
}
