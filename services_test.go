package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netgear-sms-gw/netgear"
)

// recordingEventBus captures published events for assertions.
type recordingEventBus struct {
	events []publishedEvent
}

type publishedEvent struct {
	Type string
	Data map[string]interface{}
}

func (b *recordingEventBus) Publish(ctx context.Context, eventType string, data map[string]interface{}) error {
	b.events = append(b.events, publishedEvent{Type: eventType, Data: data})
	return nil
}

// fakeCarrier records relayed messages.
type fakeCarrier struct {
	to   string
	body string
}

func (f *fakeCarrier) SendSMS(to, body string) (string, error) {
	f.to = to
	f.body = body
	return "SM123", nil
}

func (f *fakeCarrier) Name() string { return "fake" }

func newTestGateway(clients map[string]ModemClient) (*Gateway, *recordingEventBus) {
	bus := &recordingEventBus{}
	gateway := &Gateway{
		Modems:  make(map[string]*Modem),
		Metrics: NewMetrics(),
		Events:  bus,
	}
	for host, client := range clients {
		gateway.Modems[host] = &Modem{Host: host, Client: client}
	}
	return gateway, bus
}

func inboxFixture() []netgear.SMS {
	return []netgear.SMS{
		{ID: 1, Sender: "+15550001", Message: "newest", Timestamp: "2025-08-25T10:00:00Z"},
		{ID: 2, Sender: "Dad", Message: "middle", Timestamp: "2025-08-24T10:00:00Z"},
		{ID: 3, Sender: "+15550003", Message: "oldest", Timestamp: "2025-08-23T10:00:00Z"},
	}
}

func TestListInboxNoModemConfigured(t *testing.T) {
	gateway, bus := newTestGateway(nil)

	_, _, err := gateway.ListInbox(context.Background(), "")

	var noModem *NoModemConfiguredError
	require.ErrorAs(t, err, &noModem)
	assert.Empty(t, bus.events, "no event on failure")
}

func TestListInboxAmbiguousTarget(t *testing.T) {
	gateway, bus := newTestGateway(map[string]ModemClient{
		"192.168.5.1": &fakeModemClient{},
		"192.168.6.1": &fakeModemClient{},
	})

	_, _, err := gateway.ListInbox(context.Background(), "")

	var ambig *AmbiguousModemTargetError
	require.ErrorAs(t, err, &ambig)
	assert.Contains(t, err.Error(), "192.168.5.1")
	assert.Contains(t, err.Error(), "192.168.6.1")
	assert.Empty(t, bus.events)
}

func TestListInboxUnknownHost(t *testing.T) {
	gateway, _ := newTestGateway(map[string]ModemClient{
		"192.168.5.1": &fakeModemClient{},
	})

	_, _, err := gateway.ListInbox(context.Background(), "10.0.0.1")

	var missing *ModemNotFoundError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, err.Error(), "10.0.0.1")
	assert.Contains(t, err.Error(), "192.168.5.1")
}

func TestListInboxSingleModemAutoSelects(t *testing.T) {
	gateway, bus := newTestGateway(map[string]ModemClient{
		"192.168.5.1": &fakeModemClient{msgs: inboxFixture()},
	})

	host, messages, err := gateway.ListInbox(context.Background(), "")

	require.NoError(t, err)
	assert.Equal(t, "192.168.5.1", host)
	assert.Len(t, messages, 3)

	require.Len(t, bus.events, 1)
	event := bus.events[0]
	assert.Equal(t, EventInboxListed, event.Type)
	assert.Equal(t, "192.168.5.1", event.Data["host"])
	assert.Len(t, event.Data["messages"], 3)
}

func TestGetInboxJSONEmitsNoEvent(t *testing.T) {
	gateway, bus := newTestGateway(map[string]ModemClient{
		"192.168.5.1": &fakeModemClient{msgs: inboxFixture()},
	})

	host, messages, err := gateway.GetInboxJSON(context.Background(), "192.168.5.1")

	require.NoError(t, err)
	assert.Equal(t, "192.168.5.1", host)
	assert.Len(t, messages, 3)
	assert.Empty(t, bus.events)
}

func TestDeleteSMSReportsPartialResult(t *testing.T) {
	client := &fakeModemClient{
		msgs:       inboxFixture(),
		deleteErrs: map[int]error{2: assert.AnError},
	}
	gateway, bus := newTestGateway(map[string]ModemClient{"192.168.5.1": client})

	_, result, err := gateway.DeleteSMS(context.Background(), "", []int{1, 2})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 2, result.Failed[0].ID)
	assert.Empty(t, bus.events, "delete_sms emits no event")
}

func TestCleanupDryRunIssuesNoDeletes(t *testing.T) {
	client := &fakeModemClient{msgs: inboxFixture()}
	gateway, bus := newTestGateway(map[string]ModemClient{"192.168.5.1": client})

	_, result, err := gateway.CleanupInbox(context.Background(), "", CleanupPolicy{
		RetainCount: 2,
		DryRun:      true,
	})

	require.NoError(t, err)
	assert.Equal(t, []int{3}, result.DeletedIDs)
	assert.Equal(t, 1, result.CountDeleted)
	assert.True(t, result.DryRun)
	assert.Empty(t, client.deleted, "dry run must not delete")

	require.Len(t, bus.events, 1)
	assert.Equal(t, EventCleanupComplete, bus.events[0].Type)
}

func TestCleanupDryRunLaw(t *testing.T) {
	dryClient := &fakeModemClient{msgs: inboxFixture()}
	gateway, _ := newTestGateway(map[string]ModemClient{"192.168.5.1": dryClient})
	_, dryResult, err := gateway.CleanupInbox(context.Background(), "", CleanupPolicy{
		RetainCount: 1,
		DryRun:      true,
	})
	require.NoError(t, err)

	realClient := &fakeModemClient{msgs: inboxFixture()}
	gateway, _ = newTestGateway(map[string]ModemClient{"192.168.5.1": realClient})
	_, realResult, err := gateway.CleanupInbox(context.Background(), "", CleanupPolicy{
		RetainCount: 1,
		DryRun:      false,
	})
	require.NoError(t, err)

	assert.Equal(t, dryResult.DeletedIDs, realResult.DeletedIDs)
	assert.Empty(t, dryClient.deleted)
	assert.Equal(t, realResult.DeletedIDs, realClient.deleted)
}

func TestCleanupAppliesCallWhitelist(t *testing.T) {
	client := &fakeModemClient{msgs: inboxFixture()}
	gateway, _ := newTestGateway(map[string]ModemClient{"192.168.5.1": client})

	_, result, err := gateway.CleanupInbox(context.Background(), "", CleanupPolicy{
		Whitelist: []string{"Dad"},
		DryRun:    false,
	})

	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 3}, result.DeletedIDs)
	assert.NotContains(t, result.DeletedIDs, 2)
}

func TestCleanupEventPayload(t *testing.T) {
	client := &fakeModemClient{msgs: inboxFixture()}
	gateway, bus := newTestGateway(map[string]ModemClient{"192.168.5.1": client})

	_, _, err := gateway.CleanupInbox(context.Background(), "", CleanupPolicy{
		RetainCount: 2,
		DryRun:      false,
	})
	require.NoError(t, err)

	require.Len(t, bus.events, 1)
	data := bus.events[0].Data
	assert.Equal(t, "192.168.5.1", data["host"])
	assert.Equal(t, 1, data["count_deleted"])
	assert.Equal(t, []int{3}, data["deleted_ids"])
	assert.Equal(t, false, data["dry_run"])
}

func TestCleanupFullPurgeSelectsEverything(t *testing.T) {
	client := &fakeModemClient{msgs: inboxFixture()}
	gateway, _ := newTestGateway(map[string]ModemClient{"192.168.5.1": client})

	_, result, err := gateway.CleanupInbox(context.Background(), "", CleanupPolicy{DryRun: true})

	require.NoError(t, err)
	assert.Len(t, result.DeletedIDs, 3)
	assert.Empty(t, client.deleted)
}

func TestForwardSMSRelaysBody(t *testing.T) {
	carrier := &fakeCarrier{}
	gateway, _ := newTestGateway(map[string]ModemClient{
		"192.168.5.1": &fakeModemClient{msgs: inboxFixture()},
	})
	gateway.Carrier = carrier

	host, sid, err := gateway.ForwardSMS(context.Background(), "", 2, "+15559999")

	require.NoError(t, err)
	assert.Equal(t, "192.168.5.1", host)
	assert.Equal(t, "SM123", sid)
	assert.Equal(t, "+15559999", carrier.to)
	assert.Equal(t, "From Dad: middle", carrier.body)
}

func TestForwardSMSUnknownID(t *testing.T) {
	gateway, _ := newTestGateway(map[string]ModemClient{
		"192.168.5.1": &fakeModemClient{msgs: inboxFixture()},
	})
	gateway.Carrier = &fakeCarrier{}

	_, _, err := gateway.ForwardSMS(context.Background(), "", 99, "+15559999")
	assert.ErrorContains(t, err, "not found")
}

func TestForwardSMSRequiresCarrier(t *testing.T) {
	gateway, _ := newTestGateway(map[string]ModemClient{
		"192.168.5.1": &fakeModemClient{msgs: inboxFixture()},
	})

	_, _, err := gateway.ForwardSMS(context.Background(), "", 1, "+15559999")
	assert.ErrorContains(t, err, "no relay carrier")
}

func TestResolveModemPrefersExplicitHost(t *testing.T) {
	gateway, _ := newTestGateway(map[string]ModemClient{
		"192.168.5.1": &fakeModemClient{},
		"192.168.6.1": &fakeModemClient{},
	})

	modem, err := gateway.resolveModem("192.168.6.1")
	require.NoError(t, err)
	assert.Equal(t, "192.168.6.1", modem.Host)
}

func TestMergedWhitelistDeduplicates(t *testing.T) {
	gateway, _ := newTestGateway(nil)

	merged, err := gateway.mergedWhitelist([]string{"Dad", "", "Dad", "+15550001"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Dad", "+15550001"}, merged)
}

func TestCleanupMetricsObserved(t *testing.T) {
	client := &fakeModemClient{msgs: inboxFixture()}
	gateway, _ := newTestGateway(map[string]ModemClient{"192.168.5.1": client})

	_, _, err := gateway.CleanupInbox(context.Background(), "", CleanupPolicy{DryRun: false})
	require.NoError(t, err)

	gateway.Metrics.mu.Lock()
	defer gateway.Metrics.mu.Unlock()
	assert.Equal(t, float64(1), gateway.Metrics.serviceInvocations["cleanup_inbox"])
	assert.Equal(t, float64(3), gateway.Metrics.inboxSize["192.168.5.1"])
	assert.Equal(t, float64(3), gateway.Metrics.messagesDeleted)
}

// The evaluator consumes what the adapter produced; this pins the two
// layers together end to end.
func TestCleanupUsesParsedTimestampsForAgeRule(t *testing.T) {
	now := time.Now().UTC()
	client := &fakeModemClient{msgs: []netgear.SMS{
		{ID: 1, Sender: "a", Message: "young", Timestamp: now.Add(-2 * time.Hour).Format("2006-01-02T15:04:05Z")},
		{ID: 2, Sender: "b", Message: "old", Timestamp: now.Add(-96 * time.Hour).Format("2006-01-02T15:04:05Z")},
	}}
	gateway, _ := newTestGateway(map[string]ModemClient{"192.168.5.1": client})

	_, result, err := gateway.CleanupInbox(context.Background(), "", CleanupPolicy{
		RetainDays: 1,
		DryRun:     true,
	})

	require.NoError(t, err)
	assert.Equal(t, []int{2}, result.DeletedIDs)
}
