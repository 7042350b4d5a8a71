// Package audit implements the three-stage quality audit pipeline: theater
// detection, production testing in a sandbox, and a static quality scan.
// Stages run in order with early exit on the first failure; a retry helper
// re-runs the pipeline with exponential backoff, and a circuit breaker
// protects the sandbox collaborator.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ShayCichocki/waggle/internal/analyzer"
	"github.com/ShayCichocki/waggle/internal/sandbox"
	"github.com/ShayCichocki/waggle/pkg/models"
)

const (
	// DefaultMaxRetries is the pipeline retry budget.
	DefaultMaxRetries = 3
	// DefaultRetryBackoff is the first retry delay; it doubles per retry.
	DefaultRetryBackoff = time.Second
	// DefaultSandboxTimeout bounds one production-stage execution.
	DefaultSandboxTimeout = 30 * time.Second
	// DefaultSandboxMemory caps production-stage memory.
	DefaultSandboxMemory = int64(512 * 1024 * 1024)
)

// ErrRetriesExhausted is returned when the retry budget runs out before the
// pipeline passes.
var ErrRetriesExhausted = errors.New("audit retry budget exhausted")

// ErrNoSandbox indicates the pipeline was constructed without a sandbox.
var ErrNoSandbox = errors.New("audit pipeline requires a sandbox")

// ErrNoAnalyzer indicates the pipeline was constructed without an analyzer.
var ErrNoAnalyzer = errors.New("audit pipeline requires an analyzer")

// Config holds the dependencies and tuning for a Pipeline.
type Config struct {
	// Sandbox runs production-stage code.
	Sandbox sandbox.Sandbox
	// Analyzer runs the quality stage.
	Analyzer analyzer.Analyzer
	// Breaker guards sandbox calls. Nil means a default breaker
	// (5 failures, 60s cooldown, 2 successes to close).
	Breaker *CircuitBreaker
	// TheaterThreshold is the failing score. Zero means DefaultTheaterThreshold.
	TheaterThreshold float64
	// MaxRetries is the retry budget. Zero means DefaultMaxRetries.
	MaxRetries int
	// RetryBackoff is the first retry delay. Zero means DefaultRetryBackoff.
	RetryBackoff time.Duration
	// ResumeFromFailedStage re-runs retries from the stage that failed
	// instead of from the first stage.
	ResumeFromFailedStage bool
	// SandboxTimeout bounds one sandbox execution. Zero means DefaultSandboxTimeout.
	SandboxTimeout time.Duration
	// SandboxMemory caps sandbox memory. Zero means DefaultSandboxMemory.
	SandboxMemory int64
}

// Pipeline runs the ordered audit stages for task work products.
type Pipeline struct {
	sandbox  sandbox.Sandbox
	analyzer analyzer.Analyzer
	breaker  *CircuitBreaker

	theaterThreshold float64
	maxRetries       int
	retryBackoff     time.Duration
	resumeFromFailed bool
	sandboxTimeout   time.Duration
	sandboxMemory    int64

	// sleep waits between retries; injectable so tests skip real backoff.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Pipeline from the given configuration.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Sandbox == nil {
		return nil, ErrNoSandbox
	}
	if cfg.Analyzer == nil {
		return nil, ErrNoAnalyzer
	}

	breaker := cfg.Breaker
	if breaker == nil {
		breaker = NewCircuitBreaker(5, 60*time.Second, 2)
	}

	p := &Pipeline{
		sandbox:          cfg.Sandbox,
		analyzer:         cfg.Analyzer,
		breaker:          breaker,
		theaterThreshold: cfg.TheaterThreshold,
		maxRetries:       cfg.MaxRetries,
		retryBackoff:     cfg.RetryBackoff,
		resumeFromFailed: cfg.ResumeFromFailedStage,
		sandboxTimeout:   cfg.SandboxTimeout,
		sandboxMemory:    cfg.SandboxMemory,
		sleep:            sleepContext,
	}
	if p.theaterThreshold <= 0 {
		p.theaterThreshold = DefaultTheaterThreshold
	}
	if p.maxRetries <= 0 {
		p.maxRetries = DefaultMaxRetries
	}
	if p.retryBackoff <= 0 {
		p.retryBackoff = DefaultRetryBackoff
	}
	if p.sandboxTimeout <= 0 {
		p.sandboxTimeout = DefaultSandboxTimeout
	}
	if p.sandboxMemory <= 0 {
		p.sandboxMemory = DefaultSandboxMemory
	}
	return p, nil
}

// Breaker exposes the pipeline's circuit breaker for observation.
func (p *Pipeline) Breaker() *CircuitBreaker {
	return p.breaker
}

// ExecuteAudit runs the stages in order for one task, stopping at the first
// failing stage. It returns one AuditResult per stage actually executed;
// stages after an early exit produce no record. Stage failures are reported
// in the results, not as errors; the error return is reserved for context
// cancellation.
func (p *Pipeline) ExecuteAudit(ctx context.Context, taskID, code, path string) ([]*models.AuditResult, error) {
	return p.executeFrom(ctx, taskID, code, path, models.StageTheater, 0)
}

// executeFrom runs the pipeline starting at the given stage, tagging every
// produced record with the attempt number.
func (p *Pipeline) executeFrom(ctx context.Context, taskID, code, path string, start models.AuditStage, attempt int) ([]*models.AuditResult, error) {
	stages := []models.AuditStage{models.StageTheater, models.StageProduction, models.StageQuality}

	var results []*models.AuditResult
	for _, stage := range stages {
		if stage.Order() < start.Order() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		var result *models.AuditResult
		switch stage {
		case models.StageTheater:
			result = p.runTheater(taskID, code)
		case models.StageProduction:
			result = p.runProduction(ctx, taskID, code)
		case models.StageQuality:
			result = p.runQuality(ctx, taskID, path)
		}
		result.RetryCount = attempt
		results = append(results, result)

		log.Printf("[audit] task %s stage %s: %s (score=%.1f)", taskID, stage, result.Status, result.Score)

		if result.Status == models.AuditFail {
			break
		}
	}
	return results, nil
}

// ExecuteWithRetry re-runs the pipeline until it fully passes or the retry
// budget is exhausted, backing off exponentially between attempts. By
// default every retry restarts from the first stage even when a later stage
// failed; with ResumeFromFailedStage set, retries re-run only the failed
// stage and the ones after it. It returns the final attempt's results, and
// ErrRetriesExhausted if the pipeline never passed.
func (p *Pipeline) ExecuteWithRetry(ctx context.Context, taskID, code, path string) ([]*models.AuditResult, error) {
	start := models.StageTheater

	var results []*models.AuditResult
	for attempt := 0; ; attempt++ {
		var err error
		results, err = p.executeFrom(ctx, taskID, code, path, start, attempt)
		if err != nil {
			return results, err
		}

		last := results[len(results)-1]
		if last.Status == models.AuditPass {
			return results, nil
		}

		if attempt >= p.maxRetries {
			return results, fmt.Errorf("task %s failed %s stage after %d attempts: %w",
				taskID, last.Stage, attempt+1, ErrRetriesExhausted)
		}

		if p.resumeFromFailed {
			start = last.Stage
		}

		backoff := p.retryBackoff << uint(attempt)
		log.Printf("[audit] task %s retrying in %s (attempt %d/%d)", taskID, backoff, attempt+1, p.maxRetries)
		if err := p.sleep(ctx, backoff); err != nil {
			return results, err
		}
	}
}

// sleepContext waits for the duration or until the context is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
