package risk

import (
	"fmt"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// ViolationError carries a breached limit. It matches domain.ErrRiskViolation
// under errors.Is.
type ViolationError struct {
	Violation domain.Violation
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("risk: %s (%s): %s", e.Violation.Type, e.Violation.Severity, e.Violation.Message)
}

func (e *ViolationError) Unwrap() error { return domain.ErrRiskViolation }

// Severity returns the severity of the breached limit.
func (e *ViolationError) Severity() domain.Severity { return e.Violation.Severity }
