package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netgear-sms-gw/netgear"
)

// fakeModemClient is the test double behind the ModemClient interface.
type fakeModemClient struct {
	msgs       []netgear.SMS
	listErr    error
	deleteErrs map[int]error
	deleted    []int
}

func (f *fakeModemClient) SMSList(ctx context.Context) ([]netgear.SMS, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.msgs, nil
}

func (f *fakeModemClient) DeleteSMS(ctx context.Context, id int) error {
	if err, ok := f.deleteErrs[id]; ok {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func testConnection(t *testing.T, client ModemClient) *ModemConnection {
	t.Helper()
	conn, err := NewModemConnection(&Modem{Host: "192.168.5.1", Client: client})
	require.NoError(t, err)
	return conn
}

func TestListMessagesTranslatesCommunicationError(t *testing.T) {
	conn := testConnection(t, &fakeModemClient{listErr: errors.New("connection refused")})

	_, err := conn.ListMessages(context.Background())

	var commErr *ModemCommunicationError
	require.ErrorAs(t, err, &commErr)
	assert.Equal(t, "192.168.5.1", commErr.Host)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestListMessagesTranslatesCompatibilityError(t *testing.T) {
	conn := testConnection(t, &fakeModemClient{
		listErr: &netgear.CompatibilityError{Detail: "model.json has no sms object"},
	})

	_, err := conn.ListMessages(context.Background())

	var compatErr *APICompatibilityError
	require.ErrorAs(t, err, &compatErr)
	assert.Contains(t, err.Error(), "model.json has no sms object")
	assert.Contains(t, err.Error(), "versions are compatible")
}

func TestListMessagesSkipsMalformedRecords(t *testing.T) {
	conn := testConnection(t, &fakeModemClient{msgs: []netgear.SMS{
		{ID: 1, Sender: "+15550001", Message: "first", Timestamp: "2025-08-20T10:00:00Z"},
		{ID: -1}, // garbled record, no usable id
		{ID: 3, Sender: "+15550003", Message: "third", Timestamp: "2025-08-21T10:00:00Z"},
	}})

	messages, err := conn.ListMessages(context.Background())

	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, 1, messages[0].ID)
	assert.Equal(t, 3, messages[1].ID)
}

func TestListMessagesDefaultsAbsentFieldsToNull(t *testing.T) {
	conn := testConnection(t, &fakeModemClient{msgs: []netgear.SMS{
		{ID: 7},
		{ID: 8, Sender: "Dad", Message: "hi", Timestamp: "not a timestamp"},
		{ID: 9, Timestamp: "21/08/25 1:15:30 PM"},
	}})

	messages, err := conn.ListMessages(context.Background())
	require.NoError(t, err)
	require.Len(t, messages, 3)

	assert.Nil(t, messages[0].Sender)
	assert.Nil(t, messages[0].Message)
	assert.Nil(t, messages[0].Timestamp)

	require.NotNil(t, messages[1].Sender)
	assert.Equal(t, "Dad", *messages[1].Sender)
	assert.Nil(t, messages[1].Timestamp, "unparseable timestamps become null, the message survives")

	require.NotNil(t, messages[2].Timestamp, "modem rxTime format is understood")
}

func TestListMessagesParsesISOTimestamps(t *testing.T) {
	conn := testConnection(t, &fakeModemClient{msgs: []netgear.SMS{
		{ID: 1, Timestamp: "2025-08-21T13:15:30Z"},
		{ID: 2, Timestamp: "2025-08-21T13:15:30+02:00"},
		{ID: 3, Timestamp: "2025-08-21T13:15:30"},
	}})

	messages, err := conn.ListMessages(context.Background())
	require.NoError(t, err)
	for _, msg := range messages {
		assert.NotNil(t, msg.Timestamp, "message %d", msg.ID)
	}
	assert.Equal(t, 11, messages[1].Timestamp.UTC().Hour())
}

func TestDeleteMessagesBestEffortPartialFailure(t *testing.T) {
	client := &fakeModemClient{
		deleteErrs: map[int]error{2: fmt.Errorf("no such message")},
	}
	conn := testConnection(t, client)

	result, err := conn.DeleteMessages(context.Background(), []int{1, 2})

	require.NoError(t, err, "one bad id never aborts the batch")
	assert.Equal(t, 1, result.Deleted)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 2, result.Failed[0].ID)
	assert.Contains(t, result.Failed[0].Reason, "no such message")
	assert.Equal(t, []int{1}, client.deleted)
}

func TestDeleteMessagesAllFailed(t *testing.T) {
	client := &fakeModemClient{
		deleteErrs: map[int]error{
			1: fmt.Errorf("timeout"),
			2: fmt.Errorf("timeout"),
		},
	}
	conn := testConnection(t, client)

	result, err := conn.DeleteMessages(context.Background(), []int{1, 2})

	var commErr *ModemCommunicationError
	require.ErrorAs(t, err, &commErr)
	assert.Equal(t, 0, result.Deleted)
	assert.Len(t, result.Failed, 2)
}

func TestDeleteMessagesEmptyBatch(t *testing.T) {
	conn := testConnection(t, &fakeModemClient{})

	result, err := conn.DeleteMessages(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, 0, result.Deleted)
	assert.Empty(t, result.Failed)
}

func TestNewModemConnectionRequiresClient(t *testing.T) {
	_, err := NewModemConnection(&Modem{Host: "192.168.5.1"})
	assert.Error(t, err)
}
