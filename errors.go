package main

import (
	"fmt"
	"strings"
)

// NoModemConfiguredError is returned when zero modem connections exist.
type NoModemConfiguredError struct{}

func (e *NoModemConfiguredError) Error() string {
	return "no Netgear LTE modem is configured; set up at least one modem connection"
}

// AmbiguousModemTargetError is returned when several modems are configured
// and no host disambiguator was given.
type AmbiguousModemTargetError struct {
	Hosts []string
}

func (e *AmbiguousModemTargetError) Error() string {
	return fmt.Sprintf(
		"multiple Netgear LTE modems configured, host parameter is required; available hosts: %s",
		strings.Join(e.Hosts, ", "),
	)
}

// ModemNotFoundError is returned when a host was given but matches no
// configured modem connection.
type ModemNotFoundError struct {
	Host  string
	Hosts []string
}

func (e *ModemNotFoundError) Error() string {
	return fmt.Sprintf(
		"no Netgear LTE modem found at %s; available hosts: %s",
		e.Host, strings.Join(e.Hosts, ", "),
	)
}

// ModemCommunicationError wraps a transport or auth failure from the modem
// client. The original error text is preserved for diagnostics.
type ModemCommunicationError struct {
	Host string
	Op   string
	Err  error
}

func (e *ModemCommunicationError) Error() string {
	return fmt.Sprintf("failed to %s on modem %s: %v", e.Op, e.Host, e.Err)
}

func (e *ModemCommunicationError) Unwrap() error { return e.Err }

// APICompatibilityError signals that the modem client's response shape did
// not match expectations, i.e. a version skew between this gateway and the
// modem firmware or client library.
type APICompatibilityError struct {
	Host   string
	Detail string
}

func (e *APICompatibilityError) Error() string {
	return fmt.Sprintf(
		"modem API mismatch on %s: %s; check that the modem firmware and this gateway's versions are compatible",
		e.Host, e.Detail,
	)
}
