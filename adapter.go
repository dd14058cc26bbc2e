package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"netgear-sms-gw/netgear"
)

// ModemClient is the narrow surface this gateway needs from the modem API
// library. The real implementation is netgear.Client; tests supply doubles.
type ModemClient interface {
	SMSList(ctx context.Context) ([]netgear.SMS, error)
	DeleteSMS(ctx context.Context, id int) error
}

// ModemConnection is the single choke point between the gateway and a modem
// client. It translates client failures into the typed error set and never
// lets a raw client error cross to callers.
type ModemConnection struct {
	host   string
	client ModemClient
}

// NewModemConnection wraps a resolved modem.
func NewModemConnection(modem *Modem) (*ModemConnection, error) {
	if modem == nil || modem.Client == nil {
		return nil, fmt.Errorf("modem connection requires a client")
	}
	return &ModemConnection{host: modem.Host, client: modem.Client}, nil
}

// ListMessages fetches the inbox and coerces each raw record into the
// canonical message shape. A malformed record is skipped with a warning and
// never aborts the rest of the listing.
func (conn *ModemConnection) ListMessages(ctx context.Context) ([]SMSMessage, error) {
	raw, err := conn.client.SMSList(ctx)
	if err != nil {
		return nil, conn.translate("list SMS inbox", err)
	}

	messages := make([]SMSMessage, 0, len(raw))
	for _, rec := range raw {
		if rec.ID < 0 {
			logf := LoggingFormat{
				Type:    LogType.Modem,
				Level:   logrus.WarnLevel,
				Message: "skipping SMS record without a usable id",
			}
			logf.AddField("host", conn.host)
			logf.Print()
			continue
		}
		messages = append(messages, newSMSMessage(rec))
	}
	return messages, nil
}

// DeleteMessages deletes the given ids best-effort: one failing id never
// prevents attempting the rest. It returns an error only when every id
// failed.
func (conn *ModemConnection) DeleteMessages(ctx context.Context, ids []int) (*DeleteResult, error) {
	result := &DeleteResult{}

	for _, id := range ids {
		if err := conn.client.DeleteSMS(ctx, id); err != nil {
			result.Failed = append(result.Failed, DeleteFailure{ID: id, Reason: err.Error()})
			logf := LoggingFormat{
				Type:    LogType.Modem,
				Level:   logrus.WarnLevel,
				Message: fmt.Sprintf("failed to delete SMS %d", id),
				Error:   err,
			}
			logf.AddField("host", conn.host)
			logf.Print()
			continue
		}
		result.Deleted++
	}

	if len(ids) > 0 && result.Deleted == 0 {
		return result, conn.translate(
			"delete SMS batch",
			fmt.Errorf("all %d deletion(s) failed, first failure: %s", len(ids), result.Failed[0].Reason),
		)
	}
	return result, nil
}

// translate maps a client error onto the typed error set, preserving the
// original text for diagnostics.
func (conn *ModemConnection) translate(op string, err error) error {
	var compat *netgear.CompatibilityError
	if errors.As(err, &compat) {
		return &APICompatibilityError{Host: conn.host, Detail: compat.Detail}
	}
	return &ModemCommunicationError{Host: conn.host, Op: op, Err: err}
}

// newSMSMessage coerces one raw modem record, defaulting absent fields to
// null rather than failing.
func newSMSMessage(rec netgear.SMS) SMSMessage {
	msg := SMSMessage{ID: rec.ID}
	if rec.Sender != "" {
		sender := rec.Sender
		msg.Sender = &sender
	}
	if rec.Message != "" {
		body := rec.Message
		msg.Message = &body
	}
	if ts := parseTimestamp(rec.Timestamp); ts != nil {
		msg.Timestamp = ts
	}
	return msg
}

// timestampFormats covers the shapes observed across modem firmwares: ISO
// variants and the modem's own "02/01/06 3:04:05 PM" rxTime format.
var timestampFormats = []string{
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05-07:00",
	"2006-01-02T15:04:05",
	"02/01/06 3:04:05 PM",
	"02/01/06 15:04:05",
}

func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, format := range timestampFormats {
		if ts, err := time.Parse(format, s); err == nil {
			ts = ts.UTC()
			return &ts
		}
	}
	return nil
}
