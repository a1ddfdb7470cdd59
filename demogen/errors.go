package demogen

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrJobNotFound     = errors.New("generation job not found")
	ErrPatchNotFound   = errors.New("patch job not found")
	ErrTenantNotFound  = errors.New("tenant not found")
	ErrNotDemoTenant   = errors.New("tenant is not a demo tenant")
	ErrJobFailed       = errors.New("job is failed; retry it to resume")
	ErrJobNotFailed    = errors.New("only failed jobs can be retried")
	ErrJobNotStarted   = errors.New("job has not been started")
	ErrLockNotObtained = errors.New("continuation lock held elsewhere")
	ErrUnknownMode     = errors.New("unknown generation mode")
)

// Issue is one validation failure. Path points at the offending field, e.g.
// months[2].targets.leadsCreated.
type Issue struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError carries every issue found; validation never stops at the first one.
type ValidationError struct {
	Issues []Issue `json:"issues"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", is.Path, is.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func issuesErr(issues []Issue) error {
	if len(issues) == 0 {
		return nil
	}
	return &ValidationError{Issues: issues}
}

type issueList []Issue

func (l *issueList) add(path, code, format string, args ...any) {
	*l = append(*l, Issue{Path: path, Code: code, Message: fmt.Sprintf(format, args...)})
}
