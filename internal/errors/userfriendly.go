package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// UserFriendlyError is a startup error rendered with its cause, a hint and
// a command to try next.
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var details string
	if e.Err != nil {
		details = e.Err.Error()
	}
	var b strings.Builder
	b.WriteString(e.Message)
	for _, line := range [...]struct{ label, text string }{
		{"Reason", e.Reason},
		{"Hint", e.Hint},
		{"Try", e.Try},
		{"Details", details},
	} {
		if line.text != "" {
			fmt.Fprintf(&b, "\n  %s: %s", line.label, line.text)
		}
	}
	return b.String()
}

func (e UserFriendlyError) Unwrap() error { return e.Err }

// WrapConfigError wraps configuration errors with user-friendly context
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}
	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "Engine limits must be non-negative and bindings must name a registered protocol",
		Try:     fmt.Sprintf("tlvscope tables --config %s", configPath),
		Err:     err,
	}
}

// WrapCatalogError wraps protocol catalog errors with user-friendly context
func WrapCatalogError(err error, catalogPath string) error {
	if err == nil {
		return nil
	}
	return UserFriendlyError{
		Message: fmt.Sprintf("Protocol catalog error in %s", catalogPath),
		Reason:  err.Error(),
		Hint:    "Each record needs a unique tag and a known type; widths must be 1, 2 or 4",
		Try:     fmt.Sprintf("tlvscope catalog validate %s", catalogPath),
		Err:     err,
	}
}

// WrapRegistryError wraps dissector registration errors. These are
// programming or configuration errors and stop startup.
func WrapRegistryError(err error) error {
	if err == nil {
		return nil
	}
	return UserFriendlyError{
		Message: "Dissector registry could not be built",
		Reason:  registryReason(err),
		Hint:    "Two dissectors claim the same table key, or a table was declared twice with different key types",
		Try:     "tlvscope tables",
		Err:     err,
	}
}

// registryReason names the first registration failure found in err.
func registryReason(err error) string {
	switch {
	case stderrors.Is(err, ErrDuplicateRegistration):
		return "Ambiguous dispatch: a table key has more than one handler"
	case stderrors.Is(err, ErrDuplicateTable):
		return "Table key type conflict"
	case stderrors.Is(err, ErrUnknownTable):
		return "Handler added to a table that was never declared"
	case stderrors.Is(err, ErrRegistryFrozen):
		return "Registry changed after it was built"
	}
	return "Registration failed"
}
