package model

import (
	"fmt"
	"time"
)

// ConfigurationMissingError indicates no merchant profile exists for a tenant
type ConfigurationMissingError struct {
	TenantID string
}

func (e *ConfigurationMissingError) Error() string {
	return fmt.Sprintf("no invoicing profile configured for tenant %s", e.TenantID)
}

// NewConfigurationMissingError creates a new configuration-missing error
func NewConfigurationMissingError(tenantID string) *ConfigurationMissingError {
	return &ConfigurationMissingError{TenantID: tenantID}
}

// ValidationError indicates submitted draft data failed validation, before
// any number was reserved
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid draft: %s", e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// NumberingContentionError indicates the counter reservation exhausted
// its bounded retries on write conflicts
type NumberingContentionError struct {
	TenantID string
	Attempts int
	Cause    error
}

func (e *NumberingContentionError) Error() string {
	return fmt.Sprintf("number reservation for tenant %s failed after %d attempts (%v)", e.TenantID, e.Attempts, e.Cause)
}

func (e *NumberingContentionError) Unwrap() error {
	return e.Cause
}

// NewNumberingContentionError creates a new numbering-contention error
func NewNumberingContentionError(tenantID string, attempts int, cause error) *NumberingContentionError {
	return &NumberingContentionError{TenantID: tenantID, Attempts: attempts, Cause: cause}
}

// CredentialError indicates the signing container could not be opened:
// wrong password or malformed container
type CredentialError struct {
	Message string
	Cause   error
}

func (e *CredentialError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid signing credential: %s (%v)", e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid signing credential: %s", e.Message)
}

func (e *CredentialError) Unwrap() error {
	return e.Cause
}

// NewCredentialError creates a new credential error
func NewCredentialError(message string, cause error) *CredentialError {
	return &CredentialError{Message: message, Cause: cause}
}

// KeyUsageError indicates the loaded key material cannot be used for
// signing: missing/unsupported private key or an expired certificate
type KeyUsageError struct {
	Message  string
	NotAfter time.Time
}

func (e *KeyUsageError) Error() string {
	if !e.NotAfter.IsZero() {
		return fmt.Sprintf("signing key unusable: %s (certificate valid until %s)", e.Message, e.NotAfter.Format(time.RFC3339))
	}
	return fmt.Sprintf("signing key unusable: %s", e.Message)
}

// NewKeyUsageError creates a new key-usage error
func NewKeyUsageError(message string, notAfter time.Time) *KeyUsageError {
	return &KeyUsageError{Message: message, NotAfter: notAfter}
}

// ProtocolFaultError indicates the gateway returned a fault envelope or a
// response that matched no expected shape
type ProtocolFaultError struct {
	Operation string
	Code      string
	Message   string
}

func (e *ProtocolFaultError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway fault on %s: [%s] %s", e.Operation, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway fault on %s: %s", e.Operation, e.Message)
}

// NewProtocolFaultError creates a new protocol-fault error
func NewProtocolFaultError(operation, code, message string) *ProtocolFaultError {
	return &ProtocolFaultError{Operation: operation, Code: code, Message: message}
}

// TransportFailureError indicates a network-level failure talking to the
// gateway. Ambiguous is set when the request may have reached the gateway
// before the failure, so delivery cannot be ruled out locally.
type TransportFailureError struct {
	Operation string
	Ambiguous bool
	Cause     error
}

func (e *TransportFailureError) Error() string {
	if e.Ambiguous {
		return fmt.Sprintf("gateway transport failure on %s (delivery ambiguous): %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("gateway transport failure on %s: %v", e.Operation, e.Cause)
}

func (e *TransportFailureError) Unwrap() error {
	return e.Cause
}

// NewTransportFailureError creates a new transport-failure error
func NewTransportFailureError(operation string, ambiguous bool, cause error) *TransportFailureError {
	return &TransportFailureError{Operation: operation, Ambiguous: ambiguous, Cause: cause}
}

// StateTransitionError indicates a lifecycle operation was attempted on an
// invoice whose status does not allow it
type StateTransitionError struct {
	InvoiceID string
	From      Status
	To        Status
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("invoice %s: illegal transition %s -> %s", e.InvoiceID, e.From, e.To)
}

// NewStateTransitionError creates a new state-transition error
func NewStateTransitionError(invoiceID string, from, to Status) *StateTransitionError {
	return &StateTransitionError{InvoiceID: invoiceID, From: from, To: to}
}
