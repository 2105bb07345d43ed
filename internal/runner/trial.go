// Package runner executes a loaded candidate against generated scenarios
// and assembles the full evaluation report.
package runner

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"

	"github.com/signalnine/stratgate/internal/loader"
	"github.com/signalnine/stratgate/internal/metrics"
	"github.com/signalnine/stratgate/internal/platform"
	"github.com/signalnine/stratgate/internal/result"
	"github.com/signalnine/stratgate/internal/scenario"
	"github.com/signalnine/stratgate/internal/validation"
)

const DefaultScenarioTimeout = 3 * time.Second

// Failure kinds for errored scenarios.
const (
	KindDivisionByZero = "division by zero"
	KindNullType       = "type error on null value"
	KindType           = "type error"
	KindConversion     = "conversion error"
	KindAttribute      = "attribute error"
	KindLookup         = "lookup error"
	KindExplicit       = "explicit failure"
	KindTimeout        = "timeout"
	KindPanic          = "panic"
	KindRuntime        = "runtime error"
)

type TrialOpts struct {
	Timeout  time.Duration
	Parallel int
	Symbol   string
	Metrics  *metrics.Recorder
	Log      zerolog.Logger

	// unguarded caches the candidate's unchecked read lines across a run.
	unguarded map[int]bool
	analyzed  bool
}

func (o TrialOpts) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultScenarioTimeout
	}
	return o.Timeout
}

// stubOptions binds the stub to the candidate's unchecked read sites so
// that only a degenerate value the candidate could have acted on taints
// its orders. When the source cannot be analyzed every degenerate read
// taints.
func (o TrialOpts) stubOptions(h *loader.Handle) []platform.Option {
	lines, ok := o.unguarded, o.analyzed
	if !ok {
		lines, ok = validation.UnguardedReadLines(h.Source())
	}
	stubOpts := []platform.Option{platform.WithSymbol(o.Symbol)}
	if ok {
		stubOpts = append(stubOpts, platform.WithUnguardedReads(func(line int) bool { return lines[line] }))
	}
	return stubOpts
}

// RunScenario executes one scenario on a fresh instance and classifies
// the outcome. It never fails: every problem ends up in the result.
// The scenario deadline is detached from ctx so that cancelling a run
// lets in-flight scenarios finish.
func RunScenario(ctx context.Context, h *loader.Handle, sc scenario.Scenario, opts TrialOpts) result.ExecutionResult {
	stub := platform.New(sc, opts.stubOptions(h)...)
	inst := h.NewInstance(stub)

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.timeout())
	defer cancel()

	start := time.Now()
	err := inst.Run(sctx, func() error {
		if err := inst.Boot(); err != nil {
			return err
		}
		if err := inst.Initialize(); err != nil {
			return err
		}
		return inst.HandleData()
	})
	elapsed := time.Since(start)

	res := result.ExecutionResult{
		ScenarioID: sc.ID,
		Scenario:   sc.Name,
		Category:   sc.Category,
		Orders:     len(stub.Orders()),
		DurationMS: float64(elapsed.Microseconds()) / 1000,

		StrategyType: stub.StrategyType(),
		Notional:     stub.TotalNotional(),
		Alerts:       len(stub.Alerts()),
	}
	for _, r := range stub.Reads() {
		if r.Value.Degenerate() {
			res.DegenerateReads++
		}
	}
	for _, v := range stub.Violations() {
		res.Violations = append(res.Violations, v.Rule)
	}

	switch {
	case err != nil:
		res.Status = result.StatusError
		res.Failure = Classify(err)
	case len(res.Violations) > 0:
		first := stub.Violations()[0]
		res.Status = result.StatusFail
		res.Failure = &result.Failure{Kind: first.Rule, Message: first.Message}
	default:
		res.Status = result.StatusPass
	}
	// An abandoned thread may still be running; its step counter is not
	// safe to read.
	if !errors.Is(err, loader.ErrTimeout) {
		res.Steps = inst.Steps()
	}
	opts.Metrics.ObserveScenario(res)
	return res
}

// RunScenarios runs every scenario of seq through a bounded pool and
// returns the results in generation order. interrupted is set when ctx
// ended before the sequence was exhausted.
func RunScenarios(ctx context.Context, h *loader.Handle, seq iter.Seq[scenario.Scenario], opts TrialOpts) (results []result.ExecutionResult, interrupted bool) {
	if !opts.analyzed {
		opts.unguarded, opts.analyzed = validation.UnguardedReadLines(h.Source())
	}
	var (
		mu        sync.Mutex
		byIndex   = map[int]result.ExecutionResult{}
		scheduled int
		exhausted bool
	)
	jobs := func(yield func(Job) bool) {
		for sc := range seq {
			idx := scheduled
			scheduled++
			job := func() error {
				res := RunScenario(ctx, h, sc, opts)
				opts.Log.Debug().
					Str("scenario", sc.Name).
					Str("status", string(res.Status)).
					Float64("ms", res.DurationMS).
					Msg("scenario finished")
				mu.Lock()
				byIndex[idx] = res
				mu.Unlock()
				return nil
			}
			if !yield(job) {
				return
			}
		}
		exhausted = true
	}
	for _, err := range RunPool(ctx, opts.Parallel, jobs) {
		opts.Log.Warn().Err(err).Msg("scenario job failed")
	}

	results = make([]result.ExecutionResult, 0, len(byIndex))
	for i := range scheduled {
		if res, ok := byIndex[i]; ok {
			results = append(results, res)
		}
	}
	return results, !exhausted || len(results) < scheduled
}

// Classify condenses a hook error into a failure kind, the first line of
// its message and the candidate line that raised it.
func Classify(err error) *result.Failure {
	f := &result.Failure{Kind: KindRuntime, Message: firstLine(err.Error())}

	var he *loader.HookError
	if errors.As(err, &he) {
		f.Hook = he.Hook
	}
	var ee *starlark.EvalError
	if errors.As(err, &ee) {
		f.Message = firstLine(ee.Msg)
		if fr, ok := candidateFrame(ee.CallStack); ok {
			f.Line = int(fr.Pos.Line)
			f.Message = fmt.Sprintf("%s (%s:%d)", f.Message, fr.Pos.Filename(), fr.Pos.Line)
		}
	}

	var pe *loader.PanicError
	switch {
	case errors.Is(err, loader.ErrTimeout):
		f.Kind = KindTimeout
	case errors.As(err, &pe):
		f.Kind = KindPanic
	default:
		f.Kind = kindOf(f.Message)
	}
	return f
}

// candidateFrame is the innermost frame in candidate code.
func candidateFrame(stack starlark.CallStack) (starlark.CallFrame, bool) {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].Pos.Filename() != "<builtin>" && stack[i].Pos.Line > 0 {
			return stack[i], true
		}
	}
	return starlark.CallFrame{}, false
}

var kindPatterns = []struct {
	kind     string
	patterns []string
}{
	{KindDivisionByZero, []string{"division by zero", "modulo by zero"}},
	{KindExplicit, []string{"fail: "}},
	{KindNullType, []string{"NoneType"}},
	{KindConversion, []string{"cannot convert", "invalid literal"}},
	{KindAttribute, []string{"has no .", "no field or method", "can't assign to"}},
	{KindLookup, []string{"not in", "out of range", "undefined:", "not found"}},
	{KindType, []string{"unknown binary op", "unknown unary op", "not implemented", "not callable", "unhashable", "missing argument", "unexpected keyword", "got ", "want "}},
}

func kindOf(msg string) string {
	for _, kp := range kindPatterns {
		for _, p := range kp.patterns {
			if strings.Contains(msg, p) {
				return kp.kind
			}
		}
	}
	return KindRuntime
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
