package main

import (
	"os"
	"strings"
)

// CarrierHandler relays an SMS body out through an upstream carrier. Used by
// the forward_sms service.
type CarrierHandler interface {
	SendSMS(to, body string) (string, error)
	Name() string
}

// BaseCarrierHandler provides common functionality for carriers.
type BaseCarrierHandler struct {
	name string
}

func (h *BaseCarrierHandler) Name() string {
	return h.name
}

// loadCarrier enables the relay carrier selected by the environment. nil
// means forwarding is disabled.
func loadCarrier() (CarrierHandler, error) {
	if strings.ToLower(os.Getenv("CARRIER_TWILIO")) == "true" {
		return NewTwilioHandler(), nil
	}
	return nil, nil
}
