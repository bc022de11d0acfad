package agent

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/martinemde/deskagent/llm"
)

// ToolStatus classifies the outcome of one tool call.
type ToolStatus string

const (
	ToolOK        ToolStatus = "ok"
	ToolError     ToolStatus = "error"
	ToolCancelled ToolStatus = "cancelled"
)

// ToolResult is the outcome of one dispatched call. Output is already
// truncated to the per-tool cap and is what enters the history.
type ToolResult struct {
	CallID string
	Name   string
	Status ToolStatus
	Output string
}

// Dispatcher executes one batch of proposed tool calls. Parallel-safe
// calls run concurrently under a bounded worker pool; exclusive calls run
// one at a time afterwards, each behind the confirmation gate when its
// spec requires it. Results always come back in call order.
type Dispatcher struct {
	registry *Registry
	gate     *ConfirmationGate
	workers  int64
	logger   *zap.Logger
}

// NewDispatcher builds a dispatcher with the given worker-pool size.
func NewDispatcher(registry *Registry, gate *ConfirmationGate, workers int, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry: registry,
		gate:     gate,
		workers:  int64(workers),
		logger:   logger,
	}
}

// DispatchBatch runs every call in the batch and returns one result per
// call, index-aligned with the input.
func (d *Dispatcher) DispatchBatch(ctx context.Context, calls []llm.ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))

	type job struct {
		idx  int
		call llm.ToolCall
		spec ToolSpec
	}
	var parallel, exclusive []job

	for i, call := range calls {
		spec, ok := d.registry.Get(call.Name)
		if !ok {
			results[i] = ToolResult{
				CallID: call.ID,
				Name:   call.Name,
				Status: ToolError,
				Output: fmt.Sprintf("Unknown tool: %s", call.Name),
			}
			continue
		}
		j := job{idx: i, call: call, spec: spec}
		if spec.ParallelSafe && !spec.RequiresConfirmation {
			parallel = append(parallel, j)
		} else {
			exclusive = append(exclusive, j)
		}
	}

	if len(parallel) > 0 {
		sem := semaphore.NewWeighted(d.workers)
		var wg sync.WaitGroup
		for _, j := range parallel {
			wg.Add(1)
			go func(j job) {
				defer wg.Done()
				if err := sem.Acquire(ctx, 1); err != nil {
					results[j.idx] = cancelledResult(j.call)
					return
				}
				defer sem.Release(1)
				results[j.idx] = d.execute(ctx, j.call, j.spec)
			}(j)
		}
		wg.Wait()
	}

	// Exclusive calls run strictly one at a time, in call order, after
	// the parallel batch has fully drained.
	for _, j := range exclusive {
		if ctx.Err() != nil {
			results[j.idx] = cancelledResult(j.call)
			continue
		}
		if j.spec.RequiresConfirmation {
			preview := ""
			if j.spec.Preview != nil {
				preview = j.spec.Preview(j.call.Arguments)
			}
			approved, err := d.gate.Request(ctx, j.call, preview)
			if err != nil || !approved {
				results[j.idx] = cancelledResult(j.call)
				continue
			}
		}
		results[j.idx] = d.execute(ctx, j.call, j.spec)
	}

	return results
}

func (d *Dispatcher) execute(ctx context.Context, call llm.ToolCall, spec ToolSpec) ToolResult {
	d.logger.Debug("executing tool", zap.String("tool", call.Name), zap.String("call_id", call.ID))
	output, err := spec.Execute(ctx, call.Arguments)
	if err != nil {
		if ctx.Err() != nil {
			return cancelledResult(call)
		}
		return ToolResult{
			CallID: call.ID,
			Name:   call.Name,
			Status: ToolError,
			Output: fmt.Sprintf("Tool error (%s): %v", call.Name, err),
		}
	}
	return ToolResult{
		CallID: call.ID,
		Name:   call.Name,
		Status: ToolOK,
		Output: TruncateToolOutput(output),
	}
}

func cancelledResult(call llm.ToolCall) ToolResult {
	return ToolResult{
		CallID: call.ID,
		Name:   call.Name,
		Status: ToolCancelled,
		Output: fmt.Sprintf("Tool call cancelled: %s", call.Name),
	}
}
