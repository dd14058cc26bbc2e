// smsctl is a small operator CLI for the SMS gateway's HTTP API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Command holds CLI configuration.
type Command struct {
	API  string // gateway base URL
	Auth string // "username:apikey" for basic auth
	Host string // target modem host, optional
	JSON bool
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd, args := parseArgs(os.Args[2:])
	ctx := context.Background()

	var err error
	switch os.Args[1] {
	case "list":
		err = cmd.ListInbox(ctx)
	case "cleanup":
		err = cmd.Cleanup(ctx, args)
	case "delete":
		err = cmd.Delete(ctx, args)
	case "forward":
		err = cmd.Forward(ctx, args)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: smsctl <command> [options]

commands:
  list                           list the modem inbox
  cleanup [--count=N] [--days=N] [--run]   apply retention policy (dry run unless --run)
  delete <id> [id...]            delete messages by id
  forward <id> <to-number>       relay one message via the carrier

options:
  --api=URL      gateway base URL (default http://127.0.0.1:3000)
  --auth=U:KEY   basic auth credentials (default admin:$SMSGW_API_KEY)
  --host=IP      target modem host when several are configured
  --json         raw JSON output
`)
}

// parseArgs splits flags from positional arguments.
func parseArgs(args []string) (*Command, []string) {
	cmd := &Command{
		API:  "http://127.0.0.1:3000",
		Auth: "admin:" + os.Getenv("SMSGW_API_KEY"),
	}

	var rest []string
	for _, arg := range args {
		switch {
		case arg == "--json":
			cmd.JSON = true
		case strings.HasPrefix(arg, "--api="):
			cmd.API = strings.TrimSuffix(arg[len("--api="):], "/")
		case strings.HasPrefix(arg, "--auth="):
			cmd.Auth = arg[len("--auth="):]
		case strings.HasPrefix(arg, "--host="):
			cmd.Host = arg[len("--host="):]
		default:
			rest = append(rest, arg)
		}
	}
	return cmd, rest
}

// call performs one authenticated request and decodes the JSON response.
func (c *Command) call(ctx context.Context, method, path string, payload interface{}) (map[string]json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.API+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	parts := strings.SplitN(c.Auth, ":", 2)
	if len(parts) == 2 {
		req.SetBasicAuth(parts[0], parts[1])
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(data))
	}
	if resp.StatusCode >= 400 {
		var errMsg string
		json.Unmarshal(decoded["error"], &errMsg)
		if errMsg == "" {
			errMsg = string(data)
		}
		return nil, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, errMsg)
	}
	return decoded, nil
}

type message struct {
	ID        int     `json:"id"`
	Sender    *string `json:"sender"`
	Message   *string `json:"message"`
	Timestamp *string `json:"timestamp"`
}

// ListInbox prints the inbox as a table or raw JSON.
func (c *Command) ListInbox(ctx context.Context) error {
	resp, err := c.call(ctx, "POST", "/services/list_inbox", map[string]string{"host": c.Host})
	if err != nil {
		return err
	}

	if c.JSON {
		return printJSON(resp)
	}

	var messages []message
	if err := json.Unmarshal(resp["messages"], &messages); err != nil {
		return fmt.Errorf("unexpected messages payload: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"ID", "Sender", "Message", "Timestamp"})
	for _, msg := range messages {
		table.Append([]string{
			strconv.Itoa(msg.ID),
			deref(msg.Sender),
			truncate(deref(msg.Message), 50),
			deref(msg.Timestamp),
		})
	}
	table.Render()
	return nil
}

// Cleanup runs the retention policy; dry run unless --run is given.
func (c *Command) Cleanup(ctx context.Context, args []string) error {
	payload := map[string]interface{}{"host": c.Host, "dry_run": true}
	for _, arg := range args {
		switch {
		case arg == "--run":
			payload["dry_run"] = false
		case strings.HasPrefix(arg, "--count="):
			n, err := strconv.Atoi(arg[len("--count="):])
			if err != nil {
				return fmt.Errorf("invalid --count: %w", err)
			}
			payload["retain_count"] = n
		case strings.HasPrefix(arg, "--days="):
			n, err := strconv.ParseFloat(arg[len("--days="):], 64)
			if err != nil {
				return fmt.Errorf("invalid --days: %w", err)
			}
			payload["retain_days"] = n
		default:
			return fmt.Errorf("unknown cleanup option: %s", arg)
		}
	}

	resp, err := c.call(ctx, "POST", "/services/cleanup_inbox", payload)
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(resp)
	}

	var count int
	var ids []int
	var dryRun bool
	json.Unmarshal(resp["count_deleted"], &count)
	json.Unmarshal(resp["deleted_ids"], &ids)
	json.Unmarshal(resp["dry_run"], &dryRun)

	if dryRun {
		fmt.Printf("dry run: would delete %d message(s): %v\n", count, ids)
	} else {
		fmt.Printf("deleted %d message(s): %v\n", count, ids)
	}
	return nil
}

// Delete removes the given message ids.
func (c *Command) Delete(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("delete requires at least one message id")
	}
	ids := make([]int, 0, len(args))
	for _, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("invalid message id %q", arg)
		}
		ids = append(ids, id)
	}

	resp, err := c.call(ctx, "POST", "/services/delete_sms", map[string]interface{}{
		"host":   c.Host,
		"sms_id": ids,
	})
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(resp)
	}

	var deleted int
	json.Unmarshal(resp["deleted"], &deleted)
	fmt.Printf("deleted %d of %d message(s)\n", deleted, len(ids))
	if failed, ok := resp["failed"]; ok && string(failed) != "null" {
		fmt.Printf("failed: %s\n", string(failed))
	}
	return nil
}

// Forward relays one message to a phone number.
func (c *Command) Forward(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("forward requires <id> <to-number>")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid message id %q", args[0])
	}

	resp, err := c.call(ctx, "POST", "/services/forward_sms", map[string]interface{}{
		"host":   c.Host,
		"sms_id": id,
		"to":     args[1],
	})
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(resp)
	}

	var sid string
	json.Unmarshal(resp["sid"], &sid)
	fmt.Printf("forwarded message %d to %s (sid %s)\n", id, args[1], sid)
	return nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
