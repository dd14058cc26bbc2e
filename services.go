package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Cleanup defaults applied when a request omits the fields.
const (
	DefaultRetainCount = 24
	DefaultRetainDays  = 0 // 0 means ignore age
	DefaultDryRun      = true
)

// ListInbox fetches the inbox of the target modem and emits an
// inbox_listed event. Returns the resolved host and the messages.
func (gateway *Gateway) ListInbox(ctx context.Context, host string) (string, []SMSMessage, error) {
	gateway.Metrics.ServiceInvoked("list_inbox")

	modem, err := gateway.resolveModem(host)
	if err != nil {
		return "", nil, err
	}
	conn, err := NewModemConnection(modem)
	if err != nil {
		return "", nil, err
	}

	messages, err := conn.ListMessages(ctx)
	if err != nil {
		gateway.Metrics.ModemError(modem.Host)
		return "", nil, err
	}
	gateway.Metrics.InboxObserved(modem.Host, len(messages))

	logf := LoggingFormat{
		Type:    LogType.Service,
		Level:   logrus.InfoLevel,
		Message: fmt.Sprintf("found %d SMS messages in inbox", len(messages)),
	}
	logf.AddField("host", modem.Host)
	logf.Print()

	gateway.publishEvent(ctx, EventInboxListed, map[string]interface{}{
		"host":     modem.Host,
		"messages": messages,
	})

	return modem.Host, messages, nil
}

// GetInboxJSON fetches the inbox as a plain payload without emitting an
// event, for template-driven read-only consumers.
func (gateway *Gateway) GetInboxJSON(ctx context.Context, host string) (string, []SMSMessage, error) {
	gateway.Metrics.ServiceInvoked("get_inbox_json")

	modem, err := gateway.resolveModem(host)
	if err != nil {
		return "", nil, err
	}
	conn, err := NewModemConnection(modem)
	if err != nil {
		return "", nil, err
	}

	messages, err := conn.ListMessages(ctx)
	if err != nil {
		gateway.Metrics.ModemError(modem.Host)
		return "", nil, err
	}
	gateway.Metrics.InboxObserved(modem.Host, len(messages))

	return modem.Host, messages, nil
}

// DeleteSMS deletes the given ids best-effort and reports the per-id
// outcome. No event is emitted.
func (gateway *Gateway) DeleteSMS(ctx context.Context, host string, ids []int) (string, *DeleteResult, error) {
	gateway.Metrics.ServiceInvoked("delete_sms")

	modem, err := gateway.resolveModem(host)
	if err != nil {
		return "", nil, err
	}
	conn, err := NewModemConnection(modem)
	if err != nil {
		return "", nil, err
	}

	result, err := conn.DeleteMessages(ctx, ids)
	if err != nil {
		gateway.Metrics.ModemError(modem.Host)
		return modem.Host, result, err
	}
	gateway.Metrics.MessagesDeleted(result.Deleted)

	logf := LoggingFormat{
		Type:    LogType.Service,
		Level:   logrus.InfoLevel,
		Message: fmt.Sprintf("deleted %d of %d SMS", result.Deleted, len(ids)),
	}
	logf.AddField("host", modem.Host)
	logf.Print()

	return modem.Host, result, nil
}

// CleanupInbox lists the inbox, evaluates the retention policy against the
// stored whitelist merged with the request's, deletes the selected messages
// unless the policy is a dry run, and emits a cleanup_complete event.
func (gateway *Gateway) CleanupInbox(ctx context.Context, host string, policy CleanupPolicy) (string, *CleanupResult, error) {
	gateway.Metrics.ServiceInvoked("cleanup_inbox")

	modem, err := gateway.resolveModem(host)
	if err != nil {
		return "", nil, err
	}
	conn, err := NewModemConnection(modem)
	if err != nil {
		return "", nil, err
	}

	whitelist, err := gateway.mergedWhitelist(policy.Whitelist)
	if err != nil {
		return "", nil, err
	}
	policy.Whitelist = whitelist

	messages, err := conn.ListMessages(ctx)
	if err != nil {
		gateway.Metrics.ModemError(modem.Host)
		return "", nil, err
	}
	gateway.Metrics.InboxObserved(modem.Host, len(messages))

	selected := SelectForDeletion(messages, policy, time.Now().UTC())

	result := &CleanupResult{
		DeletedIDs:   selected,
		CountDeleted: len(selected),
		DryRun:       policy.DryRun,
	}

	failedCount := 0
	if !policy.DryRun && len(selected) > 0 {
		deleteResult, err := conn.DeleteMessages(ctx, selected)
		if err != nil {
			gateway.Metrics.ModemError(modem.Host)
			return modem.Host, nil, err
		}
		result.CountDeleted = deleteResult.Deleted
		failedCount = len(deleteResult.Failed)
		gateway.Metrics.MessagesDeleted(deleteResult.Deleted)
	}

	gateway.recordCleanup(modem.Host, len(selected), result.CountDeleted, failedCount, policy.DryRun)

	logf := LoggingFormat{
		Type:    LogType.Service,
		Level:   logrus.InfoLevel,
		Message: fmt.Sprintf("cleanup selected %d message(s), deleted %d", len(selected), result.CountDeleted),
	}
	logf.AddField("host", modem.Host)
	logf.AddField("dry_run", policy.DryRun)
	logf.Print()

	gateway.publishEvent(ctx, EventCleanupComplete, map[string]interface{}{
		"host":          modem.Host,
		"count_deleted": result.CountDeleted,
		"deleted_ids":   result.DeletedIDs,
		"dry_run":       policy.DryRun,
	})

	return modem.Host, result, nil
}

// ForwardSMS relays one inbox message's body to a phone number via the
// configured carrier.
func (gateway *Gateway) ForwardSMS(ctx context.Context, host string, smsID int, to string) (string, string, error) {
	gateway.Metrics.ServiceInvoked("forward_sms")

	if gateway.Carrier == nil {
		return "", "", fmt.Errorf("no relay carrier is configured")
	}

	modem, err := gateway.resolveModem(host)
	if err != nil {
		return "", "", err
	}
	conn, err := NewModemConnection(modem)
	if err != nil {
		return "", "", err
	}

	messages, err := conn.ListMessages(ctx)
	if err != nil {
		gateway.Metrics.ModemError(modem.Host)
		return "", "", err
	}

	for _, msg := range messages {
		if msg.ID != smsID {
			continue
		}
		body := ""
		if msg.Message != nil {
			body = *msg.Message
		}
		if msg.Sender != nil {
			body = fmt.Sprintf("From %s: %s", *msg.Sender, body)
		}

		sid, err := gateway.Carrier.SendSMS(to, body)
		if err != nil {
			return modem.Host, "", err
		}

		logf := LoggingFormat{
			Type:    LogType.Carrier,
			Level:   logrus.InfoLevel,
			Message: fmt.Sprintf("forwarded SMS %d", smsID),
		}
		logf.AddField("host", modem.Host)
		logf.AddField("carrier", gateway.Carrier.Name())
		logf.Print()

		return modem.Host, sid, nil
	}

	return modem.Host, "", fmt.Errorf("SMS %d not found in inbox of %s", smsID, modem.Host)
}

// mergedWhitelist combines the stored whitelist (contact names, contact
// numbers and bare numbers) with entries supplied on the call.
func (gateway *Gateway) mergedWhitelist(callWhitelist []string) ([]string, error) {
	seen := make(map[string]struct{})
	var merged []string
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		merged = append(merged, s)
	}

	if gateway.Store != nil {
		stored, err := gateway.Store.WhitelistSet()
		if err != nil {
			return nil, fmt.Errorf("failed to load stored whitelist: %w", err)
		}
		for _, s := range stored {
			add(s)
		}
	}
	for _, s := range callWhitelist {
		add(s)
	}
	return merged, nil
}
