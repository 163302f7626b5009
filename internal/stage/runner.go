package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// State is the per-run lifecycle of a stage:
// PENDING -> (SKIPPED | RUNNING -> COMPLETED | RUNNING -> FAILED).
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSkipped   State = "skipped"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Stage is one named pipeline step. Inputs and Outputs declare the file
// paths the stage reads and writes; the runner trusts these declarations,
// so an undeclared input is a latent staleness bug on the caller's side.
type Stage interface {
	Name() string
	Inputs() []string
	Outputs() []string
	Run(ctx context.Context) error
}

// ValueInputs is implemented by stages whose re-run decision also depends
// on non-file inputs, such as a configured download URL. Each value is
// fingerprinted into the manifest under a "value:" key, so changing the
// configuration invalidates the prior completed manifest.
type ValueInputs interface {
	InputValues() map[string]string
}

// ExecError wraps a failure raised by a stage body. The failure is recorded
// in the stage's manifest and re-signaled to the caller; the runner never
// swallows it.
type ExecError struct {
	Stage string
	Err   error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Result is the per-run outcome of one stage.
type Result struct {
	Stage   string        `json:"stage"`
	State   State         `json:"state"`
	Elapsed time.Duration `json:"elapsed"`
}

// Runner executes stages in declared order against a manifest store.
type Runner struct {
	store *ManifestStore
	runID string
}

// NewRunner creates a runner. runID is stamped on every manifest written
// during this invocation.
func NewRunner(store *ManifestStore, runID string) *Runner {
	return &Runner{store: store, runID: runID}
}

// RunAll executes stages strictly in order, halting at the first failure.
// Results for the stages reached so far are returned either way; manifests
// of earlier completed stages are left intact for a later resume.
func (r *Runner) RunAll(ctx context.Context, stages []Stage, force bool) ([]Result, error) {
	log := zap.L().With(zap.String("component", "stage.runner"))

	var results []Result
	var executed, skipped int
	for _, s := range stages {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		res, err := r.RunStage(ctx, s, force)
		results = append(results, res)
		if err != nil {
			log.Error("pipeline halted", zap.String("stage", s.Name()), zap.Error(err))
			return results, err
		}
		if res.State == StateSkipped {
			skipped++
		} else {
			executed++
		}
	}

	log.Info("pipeline run complete", zap.Int("executed", executed), zap.Int("skipped", skipped))
	return results, nil
}

// RunStage runs a single stage through the skip-or-execute decision. force
// causes execution regardless of manifest state for exactly this
// invocation; it does not disable manifest writing.
func (r *Runner) RunStage(ctx context.Context, s Stage, force bool) (Result, error) {
	log := zap.L().With(zap.String("stage", s.Name()))

	in, err := inputFingerprints(s)
	if err != nil {
		return Result{Stage: s.Name(), State: StateFailed}, eris.Wrapf(err, "stage: fingerprint inputs for %s", s.Name())
	}

	if !force {
		skip, err := r.shouldSkip(s, in)
		if err != nil {
			return Result{Stage: s.Name(), State: StateFailed}, err
		}
		if skip {
			log.Info("skipping (inputs and outputs unchanged)")
			return Result{Stage: s.Name(), State: StateSkipped}, nil
		}
	}

	log.Info("running")
	start := time.Now()
	runErr := s.Run(ctx)
	elapsed := time.Since(start)

	if runErr == nil {
		// Fresh fingerprints: inputs may legitimately change while a stage
		// runs (the download stages write their own declared inputs' peers),
		// and outputs did not exist before.
		if in, err = inputFingerprints(s); err != nil {
			runErr = err
		}
	}

	var out map[string]string
	if runErr == nil {
		out, runErr = r.verifyOutputs(s)
	}

	if runErr != nil {
		m := &Manifest{
			StageName:         s.Name(),
			RunID:             r.runID,
			InputFingerprints: in,
			Status:            StatusFailed,
			Timestamp:         time.Now().UTC(),
			Elapsed:           elapsed.String(),
			Error:             runErr.Error(),
		}
		if werr := r.store.Write(m); werr != nil {
			log.Error("failed to record stage failure", zap.Error(werr))
		}
		log.Error("stage failed", zap.Duration("elapsed", elapsed), zap.Error(runErr))
		return Result{Stage: s.Name(), State: StateFailed, Elapsed: elapsed}, &ExecError{Stage: s.Name(), Err: runErr}
	}

	m := &Manifest{
		StageName:          s.Name(),
		RunID:              r.runID,
		InputFingerprints:  in,
		OutputFingerprints: out,
		Status:             StatusCompleted,
		Timestamp:          time.Now().UTC(),
		Elapsed:            elapsed.String(),
	}
	if err := r.store.Write(m); err != nil {
		return Result{Stage: s.Name(), State: StateFailed, Elapsed: elapsed}, err
	}

	log.Info("stage complete", zap.Duration("elapsed", elapsed))
	return Result{Stage: s.Name(), State: StateCompleted, Elapsed: elapsed}, nil
}

// inputFingerprints hashes a stage's declared file inputs plus any declared
// value inputs. Value keys are namespaced so they cannot collide with paths.
func inputFingerprints(s Stage) (map[string]string, error) {
	in, err := Fingerprints(s.Inputs())
	if err != nil {
		return nil, err
	}
	if vi, ok := s.(ValueInputs); ok {
		for k, v := range vi.InputValues() {
			in["value:"+k] = ValueSHA256(v)
		}
	}
	return in, nil
}

// shouldSkip implements the content-addressed cache lookup: reuse only when
// the prior attempt completed, every declared input hashes the same, and
// every declared output still exists with its recorded fingerprint. File
// timestamps are never consulted.
func (r *Runner) shouldSkip(s Stage, in map[string]string) (bool, error) {
	m, err := r.store.Load(s.Name())
	if err != nil {
		return false, err
	}
	if m == nil || m.Status != StatusCompleted {
		return false, nil
	}
	if !fingerprintsEqual(m.InputFingerprints, in) {
		return false, nil
	}
	return outputsIntact(s.Outputs(), m.OutputFingerprints)
}

// verifyOutputs hashes the declared outputs after a successful run. A
// declared output that does not exist is a stage failure: the declaration
// and the stage body disagree.
func (r *Runner) verifyOutputs(s Stage) (map[string]string, error) {
	out, err := Fingerprints(s.Outputs())
	if err != nil {
		return nil, err
	}
	for p, sum := range out {
		if sum == fingerprintMissing {
			return nil, eris.Errorf("stage: declared output %s was not produced", p)
		}
	}
	return out, nil
}

// Func adapts a plain function plus declarations into a Stage. Download and
// build stages with static path declarations use this instead of a struct.
type Func struct {
	StageName   string
	InputPaths  []string
	InputVals   map[string]string
	OutputPaths []string
	Body        func(ctx context.Context) error
}

func (f *Func) Name() string                   { return f.StageName }
func (f *Func) Inputs() []string               { return f.InputPaths }
func (f *Func) InputValues() map[string]string { return f.InputVals }
func (f *Func) Outputs() []string              { return f.OutputPaths }
func (f *Func) Run(ctx context.Context) error {
	return f.Body(ctx)
}
