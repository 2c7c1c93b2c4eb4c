package outcome

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the terminal classification of a stage run. Values are stored
// verbatim in the job record's result column.
type Kind string

const (
	KindSuccess         Kind = "success"
	KindCanceled        Kind = "canceled"
	KindNotFound        Kind = "not_found"
	KindNoCredential    Kind = "no_credential"
	KindNoCredentialYet Kind = "no_credential_yet"
	KindNetworkError    Kind = "network_error"
	KindConversionError Kind = "conversion_error"
	KindTimeout         Kind = "timeout"
	KindUnknownState    Kind = "unknown_state"
	KindAlreadyExists   Kind = "already_exists"
	KindUnknown         Kind = "unknown"
)

var allKinds = []Kind{
	KindSuccess,
	KindCanceled,
	KindNotFound,
	KindNoCredential,
	KindNoCredentialYet,
	KindNetworkError,
	KindConversionError,
	KindTimeout,
	KindUnknownState,
	KindAlreadyExists,
	KindUnknown,
}

// ParseKind converts a stored result string back into a Kind.
func ParseKind(value string) (Kind, bool) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	for _, kind := range allKinds {
		if kind == normalized {
			return kind, true
		}
	}
	return "", false
}

// Terminal reports whether the kind ends the job without a retry.
func (k Kind) Terminal() bool {
	switch k {
	case KindNetworkError, KindTimeout, KindNoCredentialYet:
		return false
	default:
		return true
	}
}

// Retryable reports whether the scheduler may re-queue the job after a cooldown.
func (k Kind) Retryable() bool { return !k.Terminal() }

// Sentinel errors used to tag wrapped stage failures for later classification.
var (
	ErrCanceled        = errors.New("canceled")
	ErrNotFound        = errors.New("not found")
	ErrNoCredential    = errors.New("no credential")
	ErrNoCredentialYet = errors.New("credential not yet authorized")
	ErrNetwork         = errors.New("network error")
	ErrConversion      = errors.New("conversion error")
	ErrTimeout         = errors.New("timeout")
	ErrUnknownState    = errors.New("unknown state")
	ErrAlreadyExists   = errors.New("already exists")
)

var sentinelByKind = map[Kind]error{
	KindCanceled:        ErrCanceled,
	KindNotFound:        ErrNotFound,
	KindNoCredential:    ErrNoCredential,
	KindNoCredentialYet: ErrNoCredentialYet,
	KindNetworkError:    ErrNetwork,
	KindConversionError: ErrConversion,
	KindTimeout:         ErrTimeout,
	KindUnknownState:    ErrUnknownState,
	KindAlreadyExists:   ErrAlreadyExists,
}

// Wrap builds an error carrying stage context while tagging it with the
// sentinel for the provided kind. Stage and operation are optional.
func Wrap(kind Kind, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	marker, ok := sentinelByKind[kind]
	if !ok {
		marker = ErrUnknownState
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf classifies a wrapped error back into its Kind. Unrecognized
// errors map to KindUnknown; nil maps to KindSuccess.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindSuccess
	case errors.Is(err, ErrCanceled):
		return KindCanceled
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrNoCredential):
		return KindNoCredential
	case errors.Is(err, ErrNoCredentialYet):
		return KindNoCredentialYet
	case errors.Is(err, ErrNetwork):
		return KindNetworkError
	case errors.Is(err, ErrConversion):
		return KindConversionError
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrAlreadyExists):
		return KindAlreadyExists
	case errors.Is(err, ErrUnknownState):
		return KindUnknownState
	default:
		return KindUnknown
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "stage failure"
	}
	return strings.Join(parts, ": ")
}
