package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// LogType holds the log categories used across the gateway.
var LogType = struct {
	Startup string
	Modem   string
	Service string
	Event   string
	Store   string
	Carrier string
}{
	Startup: "startup",
	Modem:   "modem",
	Service: "service",
	Event:   "event",
	Store:   "store",
	Carrier: "carrier",
}

var appLogger = newAppLogger()

func newAppLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(logrus.InfoLevel)
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

// lokiClient is set at startup when LOKI_URL is configured.
var lokiClient *LokiClient

// LoggingFormat is a one-shot structured log builder. Fill the fields,
// optionally AddField extras, then Print.
type LoggingFormat struct {
	Type    string
	Level   logrus.Level
	Message string
	Error   error
	fields  map[string]interface{}
}

// AddField attaches an extra structured field to the log entry.
func (logf *LoggingFormat) AddField(key string, value interface{}) {
	if logf.fields == nil {
		logf.fields = map[string]interface{}{}
	}
	logf.fields[key] = value
}

// Print emits the entry to stdout and, when configured, to Loki.
func (logf *LoggingFormat) Print() {
	entry := appLogger.WithField("type", logf.Type)
	for k, v := range logf.fields {
		entry = entry.WithField(k, v)
	}
	if logf.Error != nil {
		entry = entry.WithField("error", logf.Error.Error())
	}

	level := logf.Level
	if level == 0 {
		level = logrus.InfoLevel
	}
	entry.Log(level, logf.Message)

	if lokiClient != nil {
		line := fmt.Sprintf("type=%s level=%s msg=%q", logf.Type, level, logf.Message)
		if logf.Error != nil {
			line += fmt.Sprintf(" error=%q", logf.Error)
		}
		err := lokiClient.PushLog(
			map[string]string{"job": "netgear-sms-gw", "type": logf.Type},
			LogEntry{Timestamp: time.Now(), Line: line},
		)
		if err != nil {
			appLogger.WithField("type", "loki").Warnf("error sending log to Loki: %v", err)
		}
	}
}

// LokiClient holds the configuration for the Loki push client.
type LokiClient struct {
	PushURL  string
	Username string
	Password string
}

// LogEntry is a single line destined for Loki.
type LogEntry struct {
	Timestamp time.Time
	Line      string
}

// LokiPushData represents the data structure required by Loki's push API.
type LokiPushData struct {
	Streams []LokiStream `json:"streams"`
}

// LokiStream represents a stream of logs with the same labels in Loki.
type LokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"` // [timestamp, line] tuples
}

// NewLokiClient creates a new client to interact with Loki.
func NewLokiClient(pushURL, username, password string) *LokiClient {
	return &LokiClient{PushURL: pushURL, Username: username, Password: password}
}

// PushLog sends a log entry to Loki.
func (c *LokiClient) PushLog(labels map[string]string, entry LogEntry) error {
	timestampStr := strconv.FormatInt(entry.Timestamp.UnixNano(), 10)

	payload := LokiPushData{
		Streams: []LokiStream{
			{
				Stream: labels,
				Values: [][2]string{{timestampStr, entry.Line}},
			},
		},
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshaling json: %w", err)
	}

	req, err := http.NewRequest("POST", c.PushURL, bytes.NewBuffer(jsonPayload))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.Username != "" && c.Password != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request to Loki: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received unexpected response status: %d", resp.StatusCode)
	}

	return nil
}
