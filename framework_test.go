package phaseline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRegisterPhase_Validation(t *testing.T) {
	fw := New()

	if err := fw.RegisterPhase(Phase{Order: 1, RiskLevel: RiskLow, Rollback: RollbackNone}); !errors.Is(err, ErrInvalidPhase) {
		t.Errorf("Expected ErrInvalidPhase for missing name, got %v", err)
	}
	if err := fw.RegisterPhase(Phase{Name: "p", Order: 1, RiskLevel: "extreme", Rollback: RollbackNone}); !errors.Is(err, ErrInvalidPhase) {
		t.Errorf("Expected ErrInvalidPhase for bad risk level, got %v", err)
	}

	ok := Phase{Name: "p", Order: 1, RiskLevel: RiskLow, Rollback: RollbackNone}
	if err := fw.RegisterPhase(ok); err != nil {
		t.Fatalf("RegisterPhase failed: %v", err)
	}
	if err := fw.RegisterPhase(ok); !errors.Is(err, ErrDuplicatePhase) {
		t.Errorf("Expected ErrDuplicatePhase, got %v", err)
	}
}

func TestRegisterStep_Validation(t *testing.T) {
	fw := newTestFramework(t)

	if err := fw.RegisterStep(NewTestStep("a", "nope")); !errors.Is(err, ErrUnknownPhase) {
		t.Errorf("Expected ErrUnknownPhase, got %v", err)
	}

	missing := NewTestStep("b", "foundation")
	missing.ExecuteFunc = nil
	if err := fw.RegisterStep(missing); !errors.Is(err, ErrInvalidStep) {
		t.Errorf("Expected ErrInvalidStep for nil ExecuteFunc, got %v", err)
	}

	if err := fw.RegisterStep(NewTestStep("a", "foundation")); err != nil {
		t.Fatalf("RegisterStep failed: %v", err)
	}
	if err := fw.RegisterStep(NewTestStep("a", "foundation")); !errors.Is(err, ErrDuplicateStep) {
		t.Errorf("Expected ErrDuplicateStep, got %v", err)
	}
}

func TestFrameworkValidate_AggregatesProblems(t *testing.T) {
	fw := newTestFramework(t)
	fw.MustRegisterStep(NewTestStep("a", "foundation", "ghost1"))
	fw.MustRegisterStep(NewTestStep("b", "foundation", "ghost2"))

	err := fw.Validate()
	if err == nil {
		t.Fatal("Expected validation failure")
	}
	if !strings.Contains(err.Error(), "ghost1") || !strings.Contains(err.Error(), "ghost2") {
		t.Errorf("Expected both missing dependencies reported, got: %v", err)
	}
}

// The basic end-to-end scenario: step A in an early phase, step B in a later
// phase depending on A.
func TestExecute_TwoPhaseMigration(t *testing.T) {
	fw := New()
	fw.MustRegisterPhase(Phase{Name: "Foundation", Order: 1, RiskLevel: RiskLow, Rollback: RollbackAutomatic})
	fw.MustRegisterPhase(Phase{Name: "Integration", Order: 3, RiskLevel: RiskMedium, Rollback: RollbackManual})

	var order []string
	record := func(id string) ExecuteFunc {
		return func(ctx context.Context, mc *Context) (*Result, error) {
			order = append(order, id)
			return &Result{Success: true, AffectedEntities: 1}, nil
		}
	}
	fw.MustRegisterStep(&StepDef{StepID: "A", StepPhase: "Foundation", ExecuteFunc: record("A")})
	fw.MustRegisterStep(&StepDef{StepID: "B", StepPhase: "Integration", Dependencies: []string{"A"}, ExecuteFunc: record("B")})

	exec, err := fw.Execute(context.Background(), "two phase", RunOptions{Environment: EnvDevelopment})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(order) != 2 || order[0] != "A" || order[1] != "B" {
		t.Errorf("Expected execution order [A B], got %v", order)
	}
	if exec.Status != StatusCompleted {
		t.Errorf("Expected status completed, got %s", exec.Status)
	}
	if exec.CompletedSteps != 2 || exec.TotalSteps != 2 {
		t.Errorf("Expected 2/2 steps, got %d/%d", exec.CompletedSteps, exec.TotalSteps)
	}
	for _, res := range exec.Results {
		if !res.Success {
			t.Errorf("Expected step %s to succeed: %+v", res.StepID, res.Errors)
		}
	}
	if exec.EndedAt == nil {
		t.Error("Expected end time to be stamped")
	}
}

func TestExecute_InvalidOptions(t *testing.T) {
	fw := newTestFramework(t)
	fw.MustRegisterStep(NewTestStep("a", "foundation"))

	_, err := fw.Execute(context.Background(), "bad", RunOptions{Environment: "qa"})
	if !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("Expected ErrInvalidOptions, got %v", err)
	}
}

func TestExecute_CircularDependencyRunsNothing(t *testing.T) {
	fw := newTestFramework(t)

	ran := false
	c := NewTestStep("c", "foundation", "d")
	c.ExecuteFunc = func(ctx context.Context, mc *Context) (*Result, error) {
		ran = true
		return &Result{Success: true}, nil
	}
	fw.MustRegisterStep(c)
	fw.MustRegisterStep(NewTestStep("d", "foundation", "c"))

	exec, err := fw.Execute(context.Background(), "cyclic", RunOptions{Environment: EnvDevelopment})
	if !errors.Is(err, ErrCircularDependency) {
		t.Fatalf("Expected ErrCircularDependency, got %v", err)
	}
	if ran {
		t.Error("Expected zero step executions on a cyclic plan")
	}
	if exec.Status != StatusFailed {
		t.Errorf("Expected failed record, got %s", exec.Status)
	}
	if len(exec.Errors) == 0 || exec.Errors[0].Code != CodeMigrationExecutionFailed {
		t.Errorf("Expected MIGRATION_EXECUTION_FAILED, got %+v", exec.Errors)
	}
}

func TestExecute_DryRunNeverInvokesExecute(t *testing.T) {
	fw := newTestFramework(t)

	executed := false
	simulated := false
	withSim := NewTestStep("with-sim", "foundation")
	withSim.ExecuteFunc = func(ctx context.Context, mc *Context) (*Result, error) {
		executed = true
		return &Result{Success: true}, nil
	}
	withSim.DryRunFunc = func(ctx context.Context, mc *Context) (*Result, error) {
		simulated = true
		return &Result{Success: true, Warnings: []string{"simulated"}}, nil
	}
	fw.MustRegisterStep(withSim)

	withoutSim := NewTestStep("without-sim", "foundation")
	withoutSim.ExecuteFunc = func(ctx context.Context, mc *Context) (*Result, error) {
		executed = true
		return &Result{Success: true}, nil
	}
	withoutSim.DryRunFunc = nil
	fw.MustRegisterStep(withoutSim)

	exec, err := fw.Execute(context.Background(), "rehearsal", RunOptions{
		Environment: EnvDevelopment,
		DryRun:      true,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if executed {
		t.Error("Execute callback must never run on a dry run")
	}
	if !simulated {
		t.Error("Expected dedicated dry-run callback to be invoked")
	}
	if exec.Status != StatusCompleted {
		t.Errorf("Expected completed, got %s", exec.Status)
	}

	var canned *Result
	for i := range exec.Results {
		if exec.Results[i].StepID == "without-sim" {
			canned = &exec.Results[i]
		}
	}
	if canned == nil {
		t.Fatal("Missing result for without-sim")
	}
	if len(canned.Warnings) != 1 || canned.Warnings[0] != "Dry run mode - no changes made" {
		t.Errorf("Expected canned dry-run warning, got %v", canned.Warnings)
	}
}

func TestExecuteStep_CriticalPreCheckShortCircuits(t *testing.T) {
	fw := newTestFramework(t)

	executed := false
	step := NewTestStep("guarded", "foundation")
	step.Pre = []Check{{
		Name:     "storage reachable",
		Critical: true,
		Run: func(ctx context.Context, mc *Context) error {
			return fmt.Errorf("storage is down")
		},
	}}
	step.ExecuteFunc = func(ctx context.Context, mc *Context) (*Result, error) {
		executed = true
		return &Result{Success: true}, nil
	}
	fw.MustRegisterStep(step)

	mc := NewTestContext()
	res, err := fw.ExecuteStep(context.Background(), "guarded", mc)
	if err != nil {
		t.Fatalf("ExecuteStep failed: %v", err)
	}

	if executed {
		t.Error("Execute must not run after a failing critical pre-check")
	}
	if res.Success {
		t.Error("Expected failed result")
	}
	if len(res.Errors) != 1 || res.Errors[0].Code != CodeStepExecutionFailed {
		t.Fatalf("Expected STEP_EXECUTION_FAILED, got %+v", res.Errors)
	}
	if res.Errors[0].Severity != SeverityHigh {
		t.Errorf("Expected high severity, got %s", res.Errors[0].Severity)
	}
	if len(mc.CompletedSteps) != 0 {
		t.Errorf("Expected no completed steps, got %v", mc.CompletedSteps)
	}
}

func TestExecuteStep_NonCriticalPreCheckContinues(t *testing.T) {
	fw := newTestFramework(t)

	step := NewTestStep("tolerant", "foundation")
	step.Pre = []Check{{
		Name: "advisory",
		Run: func(ctx context.Context, mc *Context) error {
			return fmt.Errorf("index is stale")
		},
	}}
	fw.MustRegisterStep(step)

	res, err := fw.ExecuteStep(context.Background(), "tolerant", NewTestContext())
	if err != nil {
		t.Fatalf("ExecuteStep failed: %v", err)
	}
	if !res.Success {
		t.Errorf("Expected success despite advisory pre-check, got %+v", res.Errors)
	}
}

func TestExecuteStep_PostCheckSeverity(t *testing.T) {
	fw := newTestFramework(t)

	critical := NewTestStep("post-critical", "foundation")
	critical.Post = []Check{{
		Name:     "row counts match",
		Critical: true,
		Run: func(ctx context.Context, mc *Context) error {
			return fmt.Errorf("count mismatch")
		},
	}}
	fw.MustRegisterStep(critical)

	advisory := NewTestStep("post-advisory", "foundation")
	advisory.Post = []Check{{
		Name: "cache warm",
		Run: func(ctx context.Context, mc *Context) error {
			return fmt.Errorf("cache cold")
		},
	}}
	fw.MustRegisterStep(advisory)

	res, err := fw.ExecuteStep(context.Background(), "post-critical", NewTestContext())
	if err != nil {
		t.Fatalf("ExecuteStep failed: %v", err)
	}
	if res.Success {
		t.Error("Expected failure on critical post-check")
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0].Message, "row counts match") {
		t.Errorf("Expected post-check error, got %+v", res.Errors)
	}

	res, err = fw.ExecuteStep(context.Background(), "post-advisory", NewTestContext())
	if err != nil {
		t.Fatalf("ExecuteStep failed: %v", err)
	}
	if !res.Success {
		t.Errorf("Expected success, got %+v", res.Errors)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "cache warm") {
		t.Errorf("Expected post-check warning, got %v", res.Warnings)
	}
}

func TestExecuteStep_PostChecksSkippedOnDryRun(t *testing.T) {
	fw := newTestFramework(t)

	checked := false
	step := NewTestStep("checked", "foundation")
	step.Post = []Check{{
		Name:     "never on dry run",
		Critical: true,
		Run: func(ctx context.Context, mc *Context) error {
			checked = true
			return fmt.Errorf("boom")
		},
	}}
	fw.MustRegisterStep(step)

	mc := NewTestContext()
	mc.DryRun = true
	res, err := fw.ExecuteStep(context.Background(), "checked", mc)
	if err != nil {
		t.Fatalf("ExecuteStep failed: %v", err)
	}
	if checked {
		t.Error("Post-checks must not run on a dry run")
	}
	if !res.Success {
		t.Errorf("Expected success, got %+v", res.Errors)
	}
}

func TestExecuteStep_UnknownStep(t *testing.T) {
	fw := newTestFramework(t)
	_, err := fw.ExecuteStep(context.Background(), "ghost", NewTestContext())
	if !errors.Is(err, ErrUnknownStep) {
		t.Fatalf("Expected ErrUnknownStep, got %v", err)
	}
}

func TestExecuteStep_ErrorBecomesFailedResult(t *testing.T) {
	fw := newTestFramework(t)

	irreversible := NewTestStep("broken", "foundation")
	irreversible.ExecuteFunc = func(ctx context.Context, mc *Context) (*Result, error) {
		return nil, fmt.Errorf("disk full")
	}
	irreversible.RollbackFunc = nil
	fw.MustRegisterStep(irreversible)

	reversible := NewTestStep("broken-reversible", "foundation")
	reversible.ExecuteFunc = func(ctx context.Context, mc *Context) (*Result, error) {
		return nil, fmt.Errorf("disk full")
	}
	fw.MustRegisterStep(reversible)

	res, err := fw.ExecuteStep(context.Background(), "broken", NewTestContext())
	if err != nil {
		t.Fatalf("ExecuteStep failed: %v", err)
	}
	if res.Success {
		t.Error("Expected failure")
	}
	e := res.Errors[0]
	if e.Code != CodeStepExecutionFailed || e.Severity != SeverityHigh {
		t.Errorf("Expected high STEP_EXECUTION_FAILED, got %+v", e)
	}
	if e.Recoverable {
		t.Error("Irreversible step failure must not be recoverable")
	}

	res, err = fw.ExecuteStep(context.Background(), "broken-reversible", NewTestContext())
	if err != nil {
		t.Fatalf("ExecuteStep failed: %v", err)
	}
	if !res.Errors[0].Recoverable {
		t.Error("Reversible step failure must be recoverable")
	}
}

func TestExecuteStep_PanicIsCaptured(t *testing.T) {
	fw := newTestFramework(t)

	step := NewTestStep("panicky", "foundation")
	step.ExecuteFunc = func(ctx context.Context, mc *Context) (*Result, error) {
		panic("index out of range")
	}
	fw.MustRegisterStep(step)

	res, err := fw.ExecuteStep(context.Background(), "panicky", NewTestContext())
	if err != nil {
		t.Fatalf("ExecuteStep failed: %v", err)
	}
	if res.Success {
		t.Error("Expected failure from panic")
	}
	if !strings.Contains(res.Errors[0].Message, "index out of range") {
		t.Errorf("Expected panic message in error, got %q", res.Errors[0].Message)
	}
}

func TestExecute_HaltOnCriticalSeverity(t *testing.T) {
	fw := newTestFramework(t)

	ran := make(map[string]bool)
	bad := NewTestStep("bad", "foundation")
	bad.ExecuteFunc = func(ctx context.Context, mc *Context) (*Result, error) {
		ran["bad"] = true
		return &Result{
			Success: false,
			Errors: []Error{{
				Code:     CodeStepExecutionFailed,
				Message:  "corrupted source data",
				Severity: SeverityCritical,
			}},
		}, nil
	}
	fw.MustRegisterStep(bad)

	later := NewTestStep("later", "integration")
	later.ExecuteFunc = func(ctx context.Context, mc *Context) (*Result, error) {
		ran["later"] = true
		return &Result{Success: true}, nil
	}
	fw.MustRegisterStep(later)

	exec, err := fw.Execute(context.Background(), "halting", RunOptions{Environment: EnvStaging})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if exec.Status != StatusFailed {
		t.Errorf("Expected failed, got %s", exec.Status)
	}
	if !ran["bad"] || ran["later"] {
		t.Errorf("Expected halt before later phases, ran=%v", ran)
	}
}

func TestExecute_HaltOnFailureInCriticalPhase(t *testing.T) {
	fw := New()
	fw.MustRegisterPhase(Phase{Name: "cutover", Order: 1, RiskLevel: RiskCritical, Rollback: RollbackAutomatic})
	fw.MustRegisterPhase(Phase{Name: "cleanup", Order: 2, RiskLevel: RiskLow, Rollback: RollbackNone})

	ran := make(map[string]bool)
	fail := NewTestStep("fail", "cutover")
	fail.ExecuteFunc = func(ctx context.Context, mc *Context) (*Result, error) {
		ran["fail"] = true
		return nil, fmt.Errorf("switch flip failed")
	}
	fw.MustRegisterStep(fail)

	sweep := NewTestStep("sweep", "cleanup")
	sweep.ExecuteFunc = func(ctx context.Context, mc *Context) (*Result, error) {
		ran["sweep"] = true
		return &Result{Success: true}, nil
	}
	fw.MustRegisterStep(sweep)

	exec, err := fw.Execute(context.Background(), "cutover", RunOptions{Environment: EnvProduction})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if exec.Status != StatusFailed {
		t.Errorf("Expected failed, got %s", exec.Status)
	}
	if ran["sweep"] {
		t.Error("Cleanup phase must not run after a failure in a critical phase")
	}
}

func TestExecute_NonCriticalFailureContinues(t *testing.T) {
	fw := newTestFramework(t)

	ran := make(map[string]bool)
	flaky := NewTestStep("flaky", "foundation")
	flaky.ExecuteFunc = func(ctx context.Context, mc *Context) (*Result, error) {
		ran["flaky"] = true
		return nil, fmt.Errorf("transient failure")
	}
	fw.MustRegisterStep(flaky)

	independent := NewTestStep("independent", "data")
	independent.ExecuteFunc = func(ctx context.Context, mc *Context) (*Result, error) {
		ran["independent"] = true
		return &Result{Success: true}, nil
	}
	fw.MustRegisterStep(independent)

	exec, err := fw.Execute(context.Background(), "partial", RunOptions{Environment: EnvDevelopment})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !ran["flaky"] || !ran["independent"] {
		t.Errorf("Expected both steps to run, ran=%v", ran)
	}
	if exec.Status != StatusCompleted {
		t.Errorf("Expected completed (failure was not critical), got %s", exec.Status)
	}
	if exec.CompletedSteps != 1 {
		t.Errorf("Expected 1 completed step, got %d", exec.CompletedSteps)
	}
}

func TestExecute_StepIDSubset(t *testing.T) {
	fw := newTestFramework(t)

	ran := make(map[string]bool)
	for _, id := range []string{"one", "two", "three"} {
		id := id
		step := NewTestStep(id, "foundation")
		step.ExecuteFunc = func(ctx context.Context, mc *Context) (*Result, error) {
			ran[id] = true
			return &Result{Success: true}, nil
		}
		fw.MustRegisterStep(step)
	}

	exec, err := fw.Execute(context.Background(), "subset", RunOptions{
		Environment: EnvDevelopment,
		StepIDs:     []string{"one", "three"},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if exec.TotalSteps != 2 {
		t.Errorf("Expected 2 planned steps, got %d", exec.TotalSteps)
	}
	if ran["two"] {
		t.Error("Step outside the subset must not run")
	}
	if !ran["one"] || !ran["three"] {
		t.Errorf("Expected subset to run, ran=%v", ran)
	}
}

func TestExecute_AggregatesMetricsAndWarnings(t *testing.T) {
	fw := newTestFramework(t)

	first := NewTestStep("first", "foundation")
	first.ExecuteFunc = func(ctx context.Context, mc *Context) (*Result, error) {
		res := &Result{Success: true, Warnings: []string{"slow index"}}
		res.AddMetric("rows", 10)
		return res, nil
	}
	fw.MustRegisterStep(first)

	second := NewTestStep("second", "foundation")
	second.ExecuteFunc = func(ctx context.Context, mc *Context) (*Result, error) {
		res := &Result{Success: true}
		res.AddMetric("rows", 5)
		return res, nil
	}
	fw.MustRegisterStep(second)

	exec, err := fw.Execute(context.Background(), "metrics", RunOptions{Environment: EnvDevelopment})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := exec.Metrics["rows"]; got != 15 {
		t.Errorf("Expected rows metric 15, got %v", got)
	}
	if len(exec.Warnings) != 1 || exec.Warnings[0] != "slow index" {
		t.Errorf("Expected aggregated warning, got %v", exec.Warnings)
	}
}

func TestExecute_RecordsHistory(t *testing.T) {
	fw := newTestFramework(t)
	fw.MustRegisterStep(NewTestStep("a", "foundation"))

	exec, err := fw.Execute(context.Background(), "recorded", RunOptions{Environment: EnvDevelopment})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	stored, err := fw.ExecutionStatus(context.Background(), exec.ID)
	if err != nil {
		t.Fatalf("ExecutionStatus failed: %v", err)
	}
	if stored.Status != StatusCompleted {
		t.Errorf("Expected stored record to be completed, got %s", stored.Status)
	}
	if stored.Name != "recorded" {
		t.Errorf("Expected name preserved, got %q", stored.Name)
	}
}

func TestExecute_EmitsLifecycleEvents(t *testing.T) {
	bus := NewBus()
	var names []string
	bus.Subscribe(func(e Event) { names = append(names, e.Name) })

	fw := New(WithEmitter(bus))
	fw.MustRegisterPhase(Phase{Name: "foundation", Order: 1, RiskLevel: RiskLow, Rollback: RollbackNone})
	fw.MustRegisterStep(NewTestStep("a", "foundation"))

	if _, err := fw.Execute(context.Background(), "observed", RunOptions{Environment: EnvDevelopment}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	want := []string{
		EventPhaseRegistered,
		EventStepRegistered,
		EventMigrationStarted,
		EventPhaseStarted,
		EventStepStarted,
		EventStepCompleted,
		EventPhaseCompleted,
		EventMigrationCompleted,
	}
	if len(names) != len(want) {
		t.Fatalf("Expected %d events, got %d: %v", len(want), len(names), names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Event %d: expected %s, got %s", i, want[i], names[i])
		}
	}
}

func TestExecute_ContextBookkeeping(t *testing.T) {
	fw := newTestFramework(t)

	var seen []string
	step := NewTestStep("observer", "foundation")
	step.ExecuteFunc = func(ctx context.Context, mc *Context) (*Result, error) {
		if mc.CurrentStep != "observer" {
			t.Errorf("Expected CurrentStep observer, got %q", mc.CurrentStep)
		}
		seen = append(seen, mc.CurrentStep)
		return &Result{Success: true}, nil
	}
	fw.MustRegisterStep(step)

	dependent := NewTestStep("dependent", "foundation", "observer")
	dependent.ExecuteFunc = func(ctx context.Context, mc *Context) (*Result, error) {
		if !mc.Completed("observer") {
			t.Error("Expected observer in CompletedSteps before dependent runs")
		}
		return &Result{Success: true}, nil
	}
	fw.MustRegisterStep(dependent)

	if _, err := fw.Execute(context.Background(), "bookkeeping", RunOptions{Environment: EnvDevelopment}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("Expected observer to run once, ran %d times", len(seen))
	}
}
