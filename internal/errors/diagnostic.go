package errors

import (
	"sort"
)

// Severity of a diagnostic
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one accumulated problem report of a pass. Module is empty when the
// problem is not owned by a module (for example an entry that failed to resolve).
type Diagnostic struct {
	Severity Severity  `json:"severity"`
	Code     ErrorCode `json:"code,omitempty"`
	Message  string    `json:"message"`
	Module   string    `json:"module,omitempty"`
	Err      error     `json:"-"`
}

// NewDiagnostic creates an error diagnostic from err, keeping the code of a wrapped BundleError
func NewDiagnostic(err error, module string) Diagnostic {
	return Diagnostic{
		Severity: SeverityError,
		Code:     CodeOf(err),
		Message:  err.Error(),
		Module:   module,
		Err:      err,
	}
}

// Warning creates a warning diagnostic
func Warning(message, module string) Diagnostic {
	return Diagnostic{Severity: SeverityWarning, Message: message, Module: module}
}

func (d Diagnostic) String() string {
	s := "[" + string(d.Severity) + "]"
	if d.Module != "" {
		s += " " + d.Module + ":"
	}
	return s + " " + d.Message
}

// Diagnostics is an ordered list of diagnostics
type Diagnostics []Diagnostic

// HasErrors reports whether any diagnostic is an error
func (ds Diagnostics) HasErrors() bool {
	for _, d := range ds {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns the error diagnostics
func (ds Diagnostics) Errors() Diagnostics {
	return ds.filter(SeverityError)
}

// Warnings returns the warning diagnostics
func (ds Diagnostics) Warnings() Diagnostics {
	return ds.filter(SeverityWarning)
}

func (ds Diagnostics) filter(s Severity) Diagnostics {
	var out Diagnostics
	for _, d := range ds {
		if d.Severity == s {
			out = append(out, d)
		}
	}
	return out
}

// Sorted returns a copy ordered by module then message. Arrival order of diagnostics
// depends on worker scheduling, so reporting should use this.
func (ds Diagnostics) Sorted() Diagnostics {
	out := make(Diagnostics, len(ds))
	copy(out, ds)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].Message < out[j].Message
	})
	return out
}
