package agent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/richinex/theseus/driver"
	"github.com/richinex/theseus/model"
)

// dispatched pairs one executed call with its result and timing.
type dispatched struct {
	call    driver.ToolCall
	result  driver.Result
	metrics model.ToolMetrics
}

// dispatchBatch executes one step's calls in plan order. Contiguous
// runs of read-only tools fan out concurrently and fan back in;
// results are cached by call ID so post-processing sees them in plan
// order regardless of execution order. A state-mutating tool always
// runs alone, terminating any parallel batch around it.
func dispatchBatch(ctx context.Context, d driver.Driver, calls []driver.ToolCall) []dispatched {
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = uuid.New().String()
		}
	}

	var out []dispatched
	i := 0
	for i < len(calls) {
		if !driver.IsReadOnly(calls[i].Tool) {
			out = append(out, executeOne(ctx, d, calls[i]))
			i++
			continue
		}

		j := i
		for j < len(calls) && driver.IsReadOnly(calls[j].Tool) {
			j++
		}
		out = append(out, fanOut(ctx, d, calls[i:j])...)
		i = j
	}
	return out
}

func executeOne(ctx context.Context, d driver.Driver, call driver.ToolCall) dispatched {
	start := time.Now()
	res := d.Execute(ctx, call)
	return dispatched{
		call:   call,
		result: res,
		metrics: model.ToolMetrics{
			Name:       string(call.Tool),
			InputSize:  len(call.SalientArg()),
			OutputSize: len(res.Evidence()),
			DurationMs: uint64(time.Since(start).Milliseconds()),
			Success:    res.Success,
		},
	}
}

func fanOut(ctx context.Context, d driver.Driver, calls []driver.ToolCall) []dispatched {
	if len(calls) == 1 {
		return []dispatched{executeOne(ctx, d, calls[0])}
	}

	// Fan out, caching each result under its call ID, then reassemble
	// in plan order.
	cache := make(map[string]dispatched, len(calls))
	var mu sync.Mutex
	var group errgroup.Group

	for _, call := range calls {
		call := call
		group.Go(func() error {
			res := executeOne(ctx, d, call)
			mu.Lock()
			cache[call.ID] = res
			mu.Unlock()
			return nil
		})
	}
	// Driver failures surface as Result values, never as group errors.
	_ = group.Wait()

	out := make([]dispatched, len(calls))
	for idx, call := range calls {
		out[idx] = cache[call.ID]
	}
	return out
}
