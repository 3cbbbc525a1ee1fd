// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package notify dispatches short out-of-band messages announcing
// job-terminal-state transitions (spec.md §6.5), to stdout, Slack, or a
// WeCom ("work_wechat") webhook depending on NOTIFICATION_CHANNEL.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/kadirpekel/docflow/pkg/logger"
)

const (
	ChannelStdout     = "stdout"
	ChannelSlack      = "slack"
	ChannelWorkWeChat = "work_wechat"
)

// Notifier sends a message via the channel named by NOTIFICATION_CHANNEL
// (default stdout), falling back to stdout whenever the configured channel
// is unavailable or fails.
type Notifier struct {
	// HTTPClient is used for the webhook-based channels; defaults to
	// http.DefaultClient's timeout behavior via a 5s-bounded client.
	HTTPClient *http.Client
	// Out is where the stdout channel (and every fallback) writes; defaults
	// to os.Stdout.
	Out *os.File
}

// New constructs a Notifier with a 5-second webhook timeout and stdout
// output, matching the original's urllib timeout=5.
func New() *Notifier {
	return &Notifier{
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		Out:        os.Stdout,
	}
}

// Notify sends message via the channel named by NOTIFICATION_CHANNEL.
func (n *Notifier) Notify(message string) bool {
	switch channel := Channel(); channel {
	case ChannelStdout:
		return n.stdout(message)
	case ChannelSlack:
		return n.slack(message)
	case ChannelWorkWeChat:
		return n.workWeChat(message)
	default:
		logger.GetLogger().Warn("notify: unknown notification channel, falling back to stdout", "channel", channel)
		return n.stdout(message)
	}
}

// Channel returns the configured notification channel, defaulting to
// stdout.
func Channel() string {
	if c := os.Getenv("NOTIFICATION_CHANNEL"); c != "" {
		return c
	}
	return ChannelStdout
}

func (n *Notifier) stdout(message string) bool {
	out := n.out()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "============================================================")
	fmt.Fprintf(out, "[USER_NOTIFICATION] %s\n", message)
	fmt.Fprintln(out, "============================================================")
	fmt.Fprintln(out)
	return true
}

// slack is not yet implemented upstream either; it falls back to stdout.
func (n *Notifier) slack(message string) bool {
	logger.GetLogger().Info("notify: slack channel not implemented yet, falling back to stdout")
	return n.stdout(message)
}

func (n *Notifier) workWeChat(message string) bool {
	webhook := os.Getenv("WORK_WECHAT_WEBHOOK_URL")
	if webhook == "" {
		logger.GetLogger().Warn("notify: WORK_WECHAT_WEBHOOK_URL not set, falling back to stdout")
		return n.stdout(message)
	}

	truncated := message
	if len(truncated) > 2048 {
		truncated = truncated[:2048]
	}
	payload, err := json.Marshal(map[string]any{
		"msgtype": "text",
		"text":    map[string]string{"content": truncated},
	})
	if err != nil {
		logger.GetLogger().Warn("notify: failed to marshal work_wechat payload, falling back to stdout", "error", err)
		return n.stdout(message)
	}

	req, err := http.NewRequest(http.MethodPost, webhook, bytes.NewReader(payload))
	if err != nil {
		logger.GetLogger().Warn("notify: failed to build work_wechat request, falling back to stdout", "error", err)
		return n.stdout(message)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client().Do(req)
	if err != nil {
		logger.GetLogger().Warn("notify: work_wechat webhook error, falling back to stdout", "error", err)
		return n.stdout(message)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.GetLogger().Warn("notify: work_wechat webhook non-2xx status, falling back to stdout", "status", resp.StatusCode)
		return n.stdout(message)
	}
	return true
}

func (n *Notifier) client() *http.Client {
	if n.HTTPClient != nil {
		return n.HTTPClient
	}
	return &http.Client{Timeout: 5 * time.Second}
}

func (n *Notifier) out() *os.File {
	if n.Out != nil {
		return n.Out
	}
	return os.Stdout
}

// AvailableChannels lists the notification channels Notify understands.
func AvailableChannels() []string {
	return []string{ChannelStdout, ChannelSlack, ChannelWorkWeChat}
}
