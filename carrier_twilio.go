package main

import (
	"fmt"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioHandler implements CarrierHandler for Twilio.
type TwilioHandler struct {
	BaseCarrierHandler
	client *twilio.RestClient
	from   string
}

func NewTwilioHandler() *TwilioHandler {
	return &TwilioHandler{
		BaseCarrierHandler: BaseCarrierHandler{name: "twilio"},
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: os.Getenv("TWILIO_ACCOUNT_SID"),
			Password: os.Getenv("TWILIO_AUTH_TOKEN"),
		}),
		from: os.Getenv("TWILIO_FROM_NUMBER"),
	}
}

// SendSMS relays one message body and returns the carrier's message SID.
func (h *TwilioHandler) SendSMS(to, body string) (string, error) {
	if h.from == "" {
		return "", fmt.Errorf("TWILIO_FROM_NUMBER is not set")
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(h.from)
	params.SetBody(body)

	resp, err := h.client.Api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("twilio send failed: %w", err)
	}
	if resp.Sid == nil {
		return "", fmt.Errorf("twilio returned no message SID")
	}
	return *resp.Sid, nil
}
