package velograph

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors.
var (
	// ErrNotFound is returned when a schema item (type, property, relationship
	// or endpoint) does not exist.
	ErrNotFound = errors.New("velograph: item not found")

	// ErrTxStarted is returned when Begin is called on a transaction that was
	// already started. Transactions are not nested.
	ErrTxStarted = errors.New("velograph: cannot start a transaction within a transaction")

	// ErrTransactionFinished is returned when a committed or rolled back
	// transaction is used again.
	ErrTransactionFinished = errors.New("velograph: transaction already finished")

	// ErrBackendUnavailable is returned when no backend connection could be
	// acquired before the pool timeout elapsed.
	ErrBackendUnavailable = errors.New("velograph: backend unavailable")

	// ErrServerAlreadyRunning is returned when starting a server that is serving.
	ErrServerAlreadyRunning = errors.New("velograph: server already running")

	// ErrServerNotRunning is returned when stopping a server that is not serving.
	ErrServerNotRunning = errors.New("velograph: server not running")
)

// Configuration error kinds, matched with errors.Is against a ConfigError.
var (
	ErrConfigItemDuplicated    = errors.New("duplicated item")
	ErrConfigItemReserved      = errors.New("reserved name")
	ErrConfigVersionMismatched = errors.New("version mismatched")
	ErrConfigInvalid           = errors.New("invalid item")
)

// Environment error kinds, matched with errors.Is against an EnvError.
var (
	ErrEnvNotFound  = errors.New("environment variable not found")
	ErrEnvNotParsed = errors.New("environment variable not parsed")
)

// ConfigError reports a schema configuration that failed to parse or validate.
type ConfigError struct {
	Item string // Offending type, property, relationship or endpoint
	Err  error  // One of the ErrConfig* kinds, possibly wrapped
}

// Error returns the error string.
func (e *ConfigError) Error() string {
	if e.Item == "" {
		return fmt.Sprintf("velograph: config: %v", e.Err)
	}
	return fmt.Sprintf("velograph: config: %s: %v", e.Item, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError returns a new ConfigError for the given item.
func NewConfigError(item string, err error) *ConfigError {
	return &ConfigError{Item: item, Err: err}
}

// IsConfigError returns true if the error is a ConfigError.
func IsConfigError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConfigError
	return errors.As(err, &e)
}

// NotFoundError represents a missing schema item.
type NotFoundError struct {
	kind string
	name string
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("velograph: %s %q not found", e.kind, e.name)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Kind returns the kind of the missing item, e.g. "type" or "property".
func (e *NotFoundError) Kind() string {
	return e.kind
}

// Name returns the name that was looked up.
func (e *NotFoundError) Name() string {
	return e.name
}

// NewNotFoundError returns a new NotFoundError.
func NewNotFoundError(kind, name string) *NotFoundError {
	return &NotFoundError{kind: kind, name: name}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// ResolverNotFoundError is returned at build time when the schema references
// a resolver name that is not registered.
type ResolverNotFoundError struct {
	Name string
}

// Error returns the error string.
func (e *ResolverNotFoundError) Error() string {
	return fmt.Sprintf("velograph: resolver %q not found", e.Name)
}

// IsResolverNotFound returns true if the error is a ResolverNotFoundError.
func IsResolverNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *ResolverNotFoundError
	return errors.As(err, &e)
}

// ValidatorNotFoundError is returned at build time when the schema references
// a validator name that is not registered.
type ValidatorNotFoundError struct {
	Name string
}

// Error returns the error string.
func (e *ValidatorNotFoundError) Error() string {
	return fmt.Sprintf("velograph: validator %q not found", e.Name)
}

// IsValidatorNotFound returns true if the error is a ValidatorNotFoundError.
func IsValidatorNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidatorNotFoundError
	return errors.As(err, &e)
}

// ValidationError represents a validator rejecting operation input.
type ValidationError struct {
	Name string // Property or validator name
	Err  error  // Underlying validation error
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("velograph: validation failed for %q: %s", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError returns a new ValidationError for the given name.
func NewValidationError(name string, err error) *ValidationError {
	return &ValidationError{Name: name, Err: err}
}

// ValidationFailed returns a ValidationError carrying a plain message.
func ValidationFailed(name, msg string) *ValidationError {
	return &ValidationError{Name: name, Err: errors.New(msg)}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// InputError reports operation input that does not fit the expected shape,
// such as an unknown field or a missing MATCH clause.
type InputError struct {
	Path string
	Msg  string
}

// Error returns the error string.
func (e *InputError) Error() string {
	return fmt.Sprintf("velograph: invalid input at %s: %s", e.Path, e.Msg)
}

// NewInputError returns a new InputError.
func NewInputError(path, format string, args ...any) *InputError {
	return &InputError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

// IsInputError returns true if the error is an InputError.
func IsInputError(err error) bool {
	if err == nil {
		return false
	}
	var e *InputError
	return errors.As(err, &e)
}

// TypeConversionError is returned when a value cannot be projected into the
// requested type.
type TypeConversionError struct {
	Src string
	Dst string
}

// Error returns the error string.
func (e *TypeConversionError) Error() string {
	return fmt.Sprintf("velograph: cannot convert %s to %s", e.Src, e.Dst)
}

// NewTypeConversionError returns a new TypeConversionError.
func NewTypeConversionError(src, dst string) *TypeConversionError {
	return &TypeConversionError{Src: src, Dst: dst}
}

// IsTypeConversionError returns true if the error is a TypeConversionError.
func IsTypeConversionError(err error) bool {
	if err == nil {
		return false
	}
	var e *TypeConversionError
	return errors.As(err, &e)
}

// UnsupportedOperationError is returned when a backend cannot express the
// requested query shape or value.
type UnsupportedOperationError struct {
	Backend string
	Op      string
}

// Error returns the error string.
func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("velograph: %s backend does not support %s", e.Backend, e.Op)
}

// NewUnsupportedOperationError returns a new UnsupportedOperationError.
func NewUnsupportedOperationError(backend, op string) *UnsupportedOperationError {
	return &UnsupportedOperationError{Backend: backend, Op: op}
}

// IsUnsupportedOperation returns true if the error is an UnsupportedOperationError.
func IsUnsupportedOperation(err error) bool {
	if err == nil {
		return false
	}
	var e *UnsupportedOperationError
	return errors.As(err, &e)
}

// BackendError wraps an error returned by a backend driver.
type BackendError struct {
	Backend string // Backend name, e.g. "cypher"
	Op      string // Operation, e.g. "commit" or "read nodes"
	Err     error  // Underlying driver error
}

// Error returns the error string.
func (e *BackendError) Error() string {
	return fmt.Sprintf("velograph: %s %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// NewBackendError returns a new BackendError. It returns nil if err is nil.
func NewBackendError(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Backend: backend, Op: op, Err: err}
}

// IsBackendError returns true if the error is a BackendError.
func IsBackendError(err error) bool {
	if err == nil {
		return false
	}
	var e *BackendError
	return errors.As(err, &e)
}

// MissingIdentifierError is returned when an identifier is selected on a
// node or relationship that has none.
type MissingIdentifierError struct {
	Type string
}

// Error returns the error string.
func (e *MissingIdentifierError) Error() string {
	return fmt.Sprintf("velograph: %s has no identifier", e.Type)
}

// IsMissingIdentifier returns true if the error is a MissingIdentifierError.
func IsMissingIdentifier(err error) bool {
	if err == nil {
		return false
	}
	var e *MissingIdentifierError
	return errors.As(err, &e)
}

// EnvError reports a missing or malformed environment variable.
type EnvError struct {
	Name string
	Err  error
}

// Error returns the error string.
func (e *EnvError) Error() string {
	return fmt.Sprintf("velograph: %s: %v", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *EnvError) Unwrap() error {
	return e.Err
}

// ServerStartupError wraps a failure to start serving.
type ServerStartupError struct {
	Err error
}

// Error returns the error string.
func (e *ServerStartupError) Error() string {
	return fmt.Sprintf("velograph: server startup failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ServerStartupError) Unwrap() error {
	return e.Err
}

// ServerShutdownError wraps a failure to stop serving.
type ServerShutdownError struct {
	Err error
}

// Error returns the error string.
func (e *ServerShutdownError) Error() string {
	return fmt.Sprintf("velograph: server shutdown failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ServerShutdownError) Unwrap() error {
	return e.Err
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Error returned by the rollback itself
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("velograph: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "velograph: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("velograph: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors so errors.Is and errors.As see each one.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}

// PrivacyError represents an operation denied by a privacy rule.
type PrivacyError struct {
	Entity string // Type or relationship name
	Op     string // CRUD operation
	Err    error  // Decision returned by the rule
}

// Error returns the error string.
func (e *PrivacyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("velograph: privacy denied %s on %s: %v", e.Op, e.Entity, e.Err)
	}
	return fmt.Sprintf("velograph: privacy denied %s on %s", e.Op, e.Entity)
}

// Unwrap returns the rule decision.
func (e *PrivacyError) Unwrap() error {
	return e.Err
}

// NewPrivacyError returns a new PrivacyError.
func NewPrivacyError(entity, op string, err error) *PrivacyError {
	return &PrivacyError{Entity: entity, Op: op, Err: err}
}

// IsPrivacyError returns true if the error is a PrivacyError.
func IsPrivacyError(err error) bool {
	if err == nil {
		return false
	}
	var e *PrivacyError
	return errors.As(err, &e)
}
