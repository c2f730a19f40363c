// Package errors defines the distinguishable error kinds callers use to
// branch on failure modes, instead of matching on message text.
package errors

import "fmt"

// Kind categorizes a Error by the failure mode it represents.
type Kind int

const (
	// MissingFormula means upstream (and all taps) have no such package.
	MissingFormula Kind = iota
	// UnsupportedBottle means no archive matches the current platform.
	UnsupportedBottle
	// NetworkFailure means an HTTP/transport failure, including a parse
	// failure on a cached body.
	NetworkFailure
	// DigestMismatch means downloaded bytes did not match the expected
	// SHA-256.
	DigestMismatch
	// StoreCorruption means extraction failed, produced an invalid tree,
	// or a filesystem-setup step was impossible.
	StoreCorruption
	// NotInstalled means the operation targets a package with no row in
	// the metadata database.
	NotInstalled
	// LinkConflict means a symlink target is already occupied by a file
	// this call does not own.
	LinkConflict
	// DependencyCycle means the resolver detected a cycle in the
	// dependency graph.
	DependencyCycle
)

func (k Kind) String() string {
	switch k {
	case MissingFormula:
		return "MissingFormula"
	case UnsupportedBottle:
		return "UnsupportedBottle"
	case NetworkFailure:
		return "NetworkFailure"
	case DigestMismatch:
		return "DigestMismatch"
	case StoreCorruption:
		return "StoreCorruption"
	case NotInstalled:
		return "NotInstalled"
	case LinkConflict:
		return "LinkConflict"
	case DependencyCycle:
		return "DependencyCycle"
	default:
		return "Unknown"
	}
}

// Error is a structured error carrying one of the Kind values plus the
// context needed to format a one-line, user-visible message.
type Error struct {
	Kind     Kind
	Name     string
	Platform string
	Path     string
	Expected string
	Actual   string
	Cycle    []string
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case MissingFormula:
		return fmt.Sprintf("no formula named %q", e.Name)
	case UnsupportedBottle:
		return fmt.Sprintf("no bottle available for %s on %s", e.Name, e.Platform)
	case NetworkFailure:
		return fmt.Sprintf("network failure: %s", e.Message)
	case DigestMismatch:
		return fmt.Sprintf("digest mismatch for %s: expected %s, got %s", e.Name, e.Expected, e.Actual)
	case StoreCorruption:
		return fmt.Sprintf("store corruption: %s", e.Message)
	case NotInstalled:
		return fmt.Sprintf("%s is not installed", e.Name)
	case LinkConflict:
		return fmt.Sprintf("link conflict at %s", e.Path)
	case DependencyCycle:
		return fmt.Sprintf("dependency cycle: %v", e.Cycle)
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports Kind equality, so errors.Is(err, &Error{Kind: NotInstalled})
// matches regardless of the other fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func NewMissingFormula(name string) *Error {
	return &Error{Kind: MissingFormula, Name: name}
}

func NewUnsupportedBottle(name, platform string) *Error {
	return &Error{Kind: UnsupportedBottle, Name: name, Platform: platform}
}

func NewNetworkFailure(message string, cause error) *Error {
	return &Error{Kind: NetworkFailure, Message: message, Cause: cause}
}

func NewDigestMismatch(name, expected, actual string) *Error {
	return &Error{Kind: DigestMismatch, Name: name, Expected: expected, Actual: actual}
}

func NewStoreCorruption(message string, cause error) *Error {
	return &Error{Kind: StoreCorruption, Message: message, Cause: cause}
}

func NewNotInstalled(name string) *Error {
	return &Error{Kind: NotInstalled, Name: name}
}

func NewLinkConflict(path string) *Error {
	return &Error{Kind: LinkConflict, Path: path}
}

func NewDependencyCycle(cycle []string) *Error {
	return &Error{Kind: DependencyCycle, Cycle: cycle}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ee, ok := err.(*Error); ok {
			e = ee
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
