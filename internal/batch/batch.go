// Package batch is the batch scheduler (spec.md §4.8): group inputs by
// label, process each label's group strictly in order, and run groups
// for different labels in parallel bounded by a configurable
// concurrency ceiling. The worker-pool shape (semaphore + WaitGroup,
// maxWorkers defaulting to runtime.NumCPU()) is grounded directly on
// the teacher's internal/scanner/parallel.go ScanParallel, generalised
// from "one goroutine per file" to "one goroutine per label, files
// within a label processed sequentially" per spec.md §4.8's ordering
// discipline.
package batch

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/divyang-garg/docxtract/internal/metrics"
	"github.com/divyang-garg/docxtract/internal/model"
)

// Item is one input to a batch run, carrying its original position so
// result events can report file_index (spec.md §4.8).
type Item struct {
	Index    int
	PDFBytes []byte
	Label    string
	Schema   model.Schema
}

// Extractor is the subset of *pipeline.Pipeline the scheduler needs.
type Extractor interface {
	Extract(ctx context.Context, req model.ExtractionRequest) *model.ExtractionResult
}

// EventKind tags a streamed batch event (spec.md §9: tagged variant,
// not a string soup).
type EventKind string

const (
	EventResult   EventKind = "result"
	EventComplete EventKind = "complete"
)

// Event is one item onto the stream Run returns.
type Event struct {
	Kind      EventKind
	FileIndex int
	Result    *model.ExtractionResult
	Stats     Stats
}

// Stats is the terminating complete event's aggregate payload
// (spec.md §4.8).
type Stats struct {
	Total              int
	Successful         int
	Failed             int
	ProcessingTimeSecs float64
	MethodCounts       map[model.Method]int
	Labels             []string
}

// Scheduler runs a heterogeneous batch of extraction requests with
// per-label serialisation and cross-label parallelism (spec.md §4.8).
type Scheduler struct {
	extractor  Extractor
	maxWorkers int
	met        *metrics.Registry
}

// New builds a Scheduler. maxWorkers<=0 defaults to runtime.NumCPU()
// (min 1), matching the teacher's own ScanParallel default. met may be nil.
func New(extractor Extractor, maxWorkers int, met *metrics.Registry) *Scheduler {
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU()
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if met == nil {
		met = metrics.Noop()
	}
	return &Scheduler{extractor: extractor, maxWorkers: maxWorkers, met: met}
}

// Run groups items by label, launches one worker per label bounded by
// a semaphore of size maxWorkers, and streams one Event per completed
// item followed by a terminating EventComplete. Cancelling ctx stops
// new items from starting but lets in-flight items finish (spec.md
// §4.8 "a worker must not die on a per-item failure... cancellation...
// complete still fires with partial counts").
func (s *Scheduler) Run(ctx context.Context, items []Item) <-chan Event {
	out := make(chan Event, len(items)+1)

	groups := groupByLabel(items)

	go func() {
		start := time.Now()
		defer close(out)

		var mu sync.Mutex
		stats := Stats{MethodCounts: map[model.Method]int{}}

		semaphore := make(chan struct{}, s.maxWorkers)
		var wg sync.WaitGroup

		for label, group := range groups {
			wg.Add(1)
			s.met.BatchInFlight.Add(1)
			go func(label string, group []Item) {
				defer wg.Done()
				defer s.met.BatchInFlight.Add(-1)

				semaphore <- struct{}{}
				defer func() { <-semaphore }()

				s.runLabelGroup(ctx, group, out, &mu, &stats)
			}(label, group)
		}

		wg.Wait()

		mu.Lock()
		stats.Total = len(items)
		stats.Labels = labelNames(groups)
		stats.ProcessingTimeSecs = time.Since(start).Seconds()
		final := stats
		final.MethodCounts = copyMethodCounts(stats.MethodCounts)
		mu.Unlock()

		out <- Event{Kind: EventComplete, Stats: final}
	}()

	return out
}

// runLabelGroup processes one label's items strictly in order
// (spec.md §4.8: "a worker processes its group sequentially... so
// pattern learning from item k is available to item k+1"), stopping
// before starting a new item once ctx is cancelled.
func (s *Scheduler) runLabelGroup(ctx context.Context, group []Item, out chan<- Event, mu *sync.Mutex, stats *Stats) {
	for _, item := range group {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result := s.extractor.Extract(ctx, model.ExtractionRequest{
			PDFBytes: item.PDFBytes,
			Label:    item.Label,
			Schema:   item.Schema,
		})

		mu.Lock()
		if result.Success {
			stats.Successful++
		} else {
			stats.Failed++
		}
		stats.MethodCounts[result.Metadata.Method]++
		mu.Unlock()

		out <- Event{Kind: EventResult, FileIndex: item.Index, Result: result}
	}
}

func groupByLabel(items []Item) map[string][]Item {
	groups := make(map[string][]Item)
	for _, item := range items {
		groups[item.Label] = append(groups[item.Label], item)
	}
	return groups
}

func labelNames(groups map[string][]Item) []string {
	names := make([]string, 0, len(groups))
	for label := range groups {
		names = append(names, label)
	}
	return names
}

func copyMethodCounts(m map[model.Method]int) map[model.Method]int {
	out := make(map[model.Method]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
