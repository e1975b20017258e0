package plugerr

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigCode categorizes configuration errors.
type ConfigCode string

const (
	// CodeDuplicateMarker indicates a type carries the plug marker more than once.
	CodeDuplicateMarker ConfigCode = "DUPLICATE_MARKER"

	// CodeAbstractPlug indicates the marked type cannot be instantiated.
	CodeAbstractPlug ConfigCode = "ABSTRACT_PLUG"

	// CodeNotSupertype indicates the declared socket is not implemented by the plug.
	CodeNotSupertype ConfigCode = "NOT_SUPERTYPE"

	// CodeUnknownType indicates a type name is absent from the catalog.
	CodeUnknownType ConfigCode = "UNKNOWN_TYPE"

	// CodeMetadataUnresolved indicates no metadata function exists for a socket.
	CodeMetadataUnresolved ConfigCode = "METADATA_UNRESOLVED"

	// CodeDuplicateOwner indicates a second owner for an already owned socket.
	CodeDuplicateOwner ConfigCode = "DUPLICATE_OWNER"

	// CodeMissingID indicates a descriptor lacks the "id" property.
	CodeMissingID ConfigCode = "MISSING_ID"

	// CodeNoConstructor indicates a known type has no zero-argument constructor.
	CodeNoConstructor ConfigCode = "NO_CONSTRUCTOR"

	// CodeHarnessActive indicates an overlay was installed over another one.
	CodeHarnessActive ConfigCode = "HARNESS_ACTIVE"

	// CodeHarnessMismatch indicates a pop that does not name the top overlay.
	CodeHarnessMismatch ConfigCode = "HARNESS_MISMATCH"

	// CodeNilHarness indicates a nil set passed where an overlay is installed.
	CodeNilHarness ConfigCode = "NIL_HARNESS"

	// CodeDuplicateRegistration indicates a type registered twice with conflicting data.
	CodeDuplicateRegistration ConfigCode = "DUPLICATE_REGISTRATION"

	// CodeBadKey indicates a descriptor whose owner key could not be parsed.
	CodeBadKey ConfigCode = "BAD_KEY"
)

// ConfigError is a fatal, user-actionable configuration problem.
//
// Types lists the type names involved, in the order they are referenced by
// the message. Causes carries the underlying failures, if any.
type ConfigError struct {
	Code    ConfigCode
	Message string
	Types   []string
	Causes  []error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	for _, c := range e.Causes {
		fmt.Fprintf(&b, "\n  caused by: %v", c)
	}
	return b.String()
}

// Unwrap exposes the causes to errors.Is and errors.As.
func (e *ConfigError) Unwrap() []error {
	return e.Causes
}

// NewConfigError creates a ConfigError with a formatted message.
func NewConfigError(code ConfigCode, types []string, format string, args ...any) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Types:   types,
	}
}

// ScanError reports a structurally unreadable unit or a malformed marker.
// It is scoped to a single file and never aborts the scan of other files.
type ScanError struct {
	File    string
	Line    int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	loc := e.File
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.File, e.Line)
	}
	if e.Err != nil {
		return fmt.Sprintf("scan %s: %s: %v", loc, e.Message, e.Err)
	}
	return fmt.Sprintf("scan %s: %s", loc, e.Message)
}

// Unwrap returns the underlying error.
func (e *ScanError) Unwrap() error {
	return e.Err
}

// InstantiationKind classifies a failure to construct a plug for metadata.
type InstantiationKind string

const (
	// MissingDependency means a type needed during construction is not linked.
	MissingDependency InstantiationKind = "MISSING_DEPENDENCY"

	// BadMetadata means the metadata function failed for any other reason.
	BadMetadata InstantiationKind = "BAD_METADATA"
)

// InstantiationError is raised while computing metadata for a plug.
type InstantiationError struct {
	Kind           InstantiationKind
	Implementation string
	// Missing names the unresolved type for MissingDependency.
	Missing string
	Err     error
}

// Error implements the error interface.
func (e *InstantiationError) Error() string {
	switch e.Kind {
	case MissingDependency:
		return fmt.Sprintf("%s: unable to generate metadata for %s, missing type %s; "+
			"link the package that declares it or register it in the catalog",
			e.Kind, e.Implementation, e.Missing)
	default:
		return fmt.Sprintf("%s: unable to generate metadata for %s: %v; "+
			"metadata functions must return simple constants and must not depend on runtime state",
			e.Kind, e.Implementation, e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *InstantiationError) Unwrap() error {
	return e.Err
}

// ManifestParseError reports a manifest or descriptor resource that could not
// be read, even after the uncached retry.
type ManifestParseError struct {
	Source string
	Path   string
	Err    error
}

// Error implements the error interface.
func (e *ManifestParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("manifest %s (%s): %v", e.Source, e.Path, e.Err)
	}
	return fmt.Sprintf("manifest %s: %v", e.Source, e.Err)
}

// Unwrap returns the underlying error.
func (e *ManifestParseError) Unwrap() error {
	return e.Err
}

// TypeNotFoundError reports a type name that the catalog does not know.
type TypeNotFoundError struct {
	Name string
}

// Error implements the error interface.
func (e *TypeNotFoundError) Error() string {
	return fmt.Sprintf("type not found: %s", e.Name)
}

// InternalError reports a broken invariant inside the registry.
type InternalError struct {
	Message string
}

// Error implements the error interface.
func (e *InternalError) Error() string {
	return "internal: " + e.Message
}

// IsConfigError returns true if err wraps a ConfigError with the given code.
// An empty code matches any ConfigError.
func IsConfigError(err error, code ConfigCode) bool {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return code == "" || ce.Code == code
	}
	return false
}

// IsScanError returns true if err wraps a ScanError.
func IsScanError(err error) bool {
	var se *ScanError
	return errors.As(err, &se)
}

// IsTypeNotFound returns true if err wraps a TypeNotFoundError.
func IsTypeNotFound(err error) bool {
	var nf *TypeNotFoundError
	return errors.As(err, &nf)
}

// InstantiationKindOf returns the kind of the wrapped InstantiationError, or
// the empty string if err does not wrap one.
func InstantiationKindOf(err error) InstantiationKind {
	var ie *InstantiationError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}
