package cowsay

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"sync"
	"time"
)

var (
	ErrToolNotFound         = errors.New("cowsay command not found")
	ErrToolInvocationFailed = errors.New("cowsay invocation failed")
)

// Error kinds reported by Kind.
const (
	KindNotFound         = "not_found"
	KindInvocationFailed = "invocation_failed"
	KindUnexpected       = "unexpected"
)

// DefaultCandidates is where cowsay lives on Debian-based images, then PATH.
var DefaultCandidates = []string{"/usr/games/cowsay", "cowsay"}

const DefaultTimeout = 10 * time.Second

// Result is the output of the first candidate that ran successfully.
type Result struct {
	Candidate string
	Output    string
}

type ResolverConfig struct {
	Candidates       []string
	Timeout          time.Duration // per candidate invocation (default 10s)
	RememberResolved bool          // try the last working candidate first
	Runner           Runner        // default ExecRunner
}

// Resolver finds a working cowsay binary by trying candidates in order.
type Resolver struct {
	candidates []string
	timeout    time.Duration
	remember   bool
	runner     Runner

	mu       sync.RWMutex
	resolved string
}

func NewResolver(config ResolverConfig) *Resolver {
	if len(config.Candidates) == 0 {
		config.Candidates = DefaultCandidates
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Runner == nil {
		config.Runner = ExecRunner{}
	}

	return &Resolver{
		candidates: append([]string(nil), config.Candidates...),
		timeout:    config.Timeout,
		remember:   config.RememberResolved,
		runner:     config.Runner,
	}
}

// Candidates returns the configured candidates in declared order.
func (r *Resolver) Candidates() []string {
	return append([]string(nil), r.candidates...)
}

// Resolve invokes each candidate with arg as its only argument and returns the
// stdout of the first one that exits cleanly. It returns ErrToolNotFound when
// no candidate could be started at all, and an error wrapping
// ErrToolInvocationFailed when at least one candidate started but failed.
func (r *Resolver) Resolve(ctx context.Context, arg string) (*Result, error) {
	var failures []string

	for _, candidate := range r.order() {
		output, err := r.invoke(ctx, candidate, arg)
		if err == nil {
			r.setResolved(candidate)
			return &Result{Candidate: candidate, Output: string(output)}, nil
		}

		if isNotFound(err) {
			continue
		}

		failures = append(failures, fmt.Sprintf("%s: %v", candidate, err))

		// The caller gave up; later candidates would fail the same way.
		if ctx.Err() != nil {
			break
		}
	}

	r.setResolved("")

	if len(failures) == 0 {
		return nil, ErrToolNotFound
	}
	return nil, fmt.Errorf("%w: %s", ErrToolInvocationFailed, strings.Join(failures, "; "))
}

func (r *Resolver) invoke(ctx context.Context, candidate, arg string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	output, err := r.runner.Run(ctx, candidate, arg)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("timed out after %v: %w", r.timeout, err)
	}
	return output, err
}

// order puts the remembered candidate first, keeping the rest in declared order.
func (r *Resolver) order() []string {
	if !r.remember {
		return r.candidates
	}

	r.mu.RLock()
	resolved := r.resolved
	r.mu.RUnlock()

	if resolved == "" || resolved == r.candidates[0] {
		return r.candidates
	}

	order := make([]string, 0, len(r.candidates))
	order = append(order, resolved)
	for _, candidate := range r.candidates {
		if candidate != resolved {
			order = append(order, candidate)
		}
	}
	return order
}

func (r *Resolver) setResolved(candidate string) {
	if !r.remember {
		return
	}
	r.mu.Lock()
	r.resolved = candidate
	r.mu.Unlock()
}

// Resolved returns the remembered candidate, if any.
func (r *Resolver) Resolved() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolved
}

func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

// Kind classifies an error returned by Resolve.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrToolNotFound):
		return KindNotFound
	case errors.Is(err, ErrToolInvocationFailed):
		return KindInvocationFailed
	default:
		return KindUnexpected
	}
}
