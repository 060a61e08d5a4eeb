package errors

import "fmt"

// ConfigurationError reports a misconfiguration that prevents an operation,
// such as a signing algorithm left unset for an application that should
// receive backchannel logout tokens.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// DeliveryFailure reports a failed backchannel logout delivery: a transport
// error or a non-2xx response from the relying party. It is reported and
// isolated per application, never propagated to the logout caller.
type DeliveryFailure struct {
	URI    string
	Status int // 0 when the request never completed
	Err    error
}

func (e *DeliveryFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("logout token delivery to %s failed: %v", e.URI, e.Err)
	}
	return fmt.Sprintf("logout token delivery to %s failed with status %d", e.URI, e.Status)
}

func (e *DeliveryFailure) Unwrap() error { return e.Err }
