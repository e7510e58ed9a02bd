package pipeline

import (
	"sync"

	"github.com/divyang-garg/docxtract/internal/fingerprint"
	"github.com/divyang-garg/docxtract/internal/model"
)

// singleflightGroup guarantees at most one concurrent resolution per
// fingerprint key (spec.md §4.7, §5, §9: "a mapping from key to a
// shared completion handle, created under a mutex, awaited by all
// concurrent callers, removed on completion").
type singleflightGroup struct {
	mu    sync.Mutex
	calls map[fingerprint.Key]*call
}

type call struct {
	wg     sync.WaitGroup
	result *model.ExtractionResult
}

func newSingleflightGroup() *singleflightGroup {
	return &singleflightGroup{calls: make(map[fingerprint.Key]*call)}
}

// do runs fn for key if no call for key is already in flight; otherwise
// it waits for the in-flight call and returns its result, reporting
// coalesced=true so the caller can tag its metadata accordingly
// (spec.md §8 property 4: "the others report a path explicitly tagged
// as coalesced").
func (g *singleflightGroup) do(key fingerprint.Key, fn func() *model.ExtractionResult) (*model.ExtractionResult, bool) {
	g.mu.Lock()
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		c.wg.Wait()
		return c.result, true
	}

	c := &call{}
	c.wg.Add(1)
	g.calls[key] = c
	g.mu.Unlock()

	c.result = fn()
	c.wg.Done()

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()

	return c.result, false
}
