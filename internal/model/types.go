package model

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ErrorKind classifies launcher failures. Every failure is terminal for
// the invocation (fail-fast, no retries), so the kind exists for error
// messages and tests rather than for recovery logic.
type ErrorKind string

const (
	// KindConfig indicates a required environment reference
	// (GHIDRA_ROOT, BKC_ROOT) is missing or the overrides file is broken.
	KindConfig ErrorKind = "config-missing"

	// KindUsage indicates a bad argument count or malformed invocation.
	KindUsage ErrorKind = "usage"

	// KindPath indicates a work directory, script, or target path that
	// does not resolve to an existing filesystem location.
	KindPath ErrorKind = "path-not-found"

	// KindFormat indicates a malformed value, currently only a base
	// address that fails hex validation.
	KindFormat ErrorKind = "format"

	// KindPrereq indicates a missing prerequisite produced by an earlier
	// pipeline stage, e.g. a work directory without a traces/ subfolder.
	KindPrereq ErrorKind = "missing-prerequisite"

	// KindDirCreate indicates the project directory could not be created.
	KindDirCreate ErrorKind = "dir-create"

	// KindExternal indicates a propagated failure from an invoked
	// external command (edge-extraction helper or analysis engine).
	KindExternal ErrorKind = "external-command"

	// KindGeneral covers everything else.
	KindGeneral ErrorKind = "general"
)

// String returns the string representation of ErrorKind.
// This method satisfies the fmt.Stringer interface.
func (k ErrorKind) String() string {
	return string(k)
}

// IsValid checks whether the ErrorKind value is one of the
// predefined kinds.
func (k ErrorKind) IsValid() bool {
	switch k {
	case KindConfig, KindUsage, KindPath, KindFormat, KindPrereq,
		KindDirCreate, KindExternal, KindGeneral:
		return true
	default:
		return false
	}
}

// ExitCode defines the CLI exit codes. The launcher deliberately exposes
// only success/failure: callers that need more detail get it from the
// error message, not the exit status.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitFailure indicates any validation or downstream failure.
	ExitFailure ExitCode = 1
)

// CLIError is a custom error type that carries an error kind.
// The CLI layer uses it to format failure messages consistently
// before terminating with ExitFailure.
type CLIError struct {
	// Kind classifies the failure (see ErrorKind).
	Kind ErrorKind

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given kind and message.
func NewCLIError(kind ErrorKind, message string) *CLIError {
	return &CLIError{Kind: kind, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(kind ErrorKind, message string, err error) *CLIError {
	return &CLIError{Kind: kind, Message: message, Err: err}
}

// DefaultBase is the image base used for debug targets when the caller
// supplies no explicit load address.
const DefaultBase BaseAddress = "0x00"

// baseAddrRegex validates base addresses: an optional 0x prefix followed
// by 1 to 16 hex digits (64-bit address space).
var baseAddrRegex = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{1,16}$`)

// BaseAddress is a validated hexadecimal load address in string form.
// The string form is preserved (rather than normalizing to an integer)
// because it is passed verbatim to the analysis engine's
// -loader-imagebase flag.
type BaseAddress string

// ParseBaseAddress validates a hexadecimal address string and returns it
// as a BaseAddress. Accepts an optional "0x" prefix and 1-16 hex digits.
func ParseBaseAddress(s string) (BaseAddress, error) {
	if !baseAddrRegex.MatchString(s) {
		return "", NewCLIError(KindFormat,
			fmt.Sprintf("invalid base address %q: expected hex value with optional 0x prefix and at most 16 digits", s))
	}
	return BaseAddress(s), nil
}

// Value returns the numeric value of the address.
// The address must have passed ParseBaseAddress validation.
func (a BaseAddress) Value() uint64 {
	v, err := strconv.ParseUint(strings.TrimPrefix(string(a), "0x"), 16, 64)
	if err != nil {
		// Unreachable for addresses constructed via ParseBaseAddress.
		return 0
	}
	return v
}

// String returns the address in its original string form.
func (a BaseAddress) String() string {
	return string(a)
}

// AddressFromValue formats a numeric address as a canonical BaseAddress
// ("0x" prefix, 16 zero-padded hex digits). Used when addresses originate
// from a module table rather than the command line.
func AddressFromValue(v uint64) BaseAddress {
	return BaseAddress("0x" + FormatAddress(v))
}

// FormatAddress renders an address value as 16 zero-padded lowercase hex
// digits without a prefix, the column format used by module table output.
func FormatAddress(v uint64) string {
	return fmt.Sprintf("%016x", v)
}

// Target is the path to a target binary handed to the analysis engine.
type Target string

// Base returns the target's base filename, which is how the engine
// addresses the imported program inside a project.
func (t Target) Base() string {
	return filepath.Base(string(t))
}

// IsDebug reports whether the target is a debug variant (a ".debug" ELF
// with symbols, as produced by firmware builds). Debug targets are
// imported with the ELF loader at an explicit image base.
func (t Target) IsDebug() bool {
	return strings.HasSuffix(t.Base(), ".debug")
}

// String returns the target path.
func (t Target) String() string {
	return string(t)
}
