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

package notify_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/docflow/pkg/notify"
)

func TestNotifyDefaultsToStdout(t *testing.T) {
	t.Setenv("NOTIFICATION_CHANNEL", "")
	require.Equal(t, notify.ChannelStdout, notify.Channel())

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()

	n := &notify.Notifier{Out: f}
	require.True(t, n.Notify("hello"))

	contents, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	require.Contains(t, string(contents), "hello")
}

func TestNotifyWorkWeChatFallsBackWithoutWebhook(t *testing.T) {
	t.Setenv("NOTIFICATION_CHANNEL", notify.ChannelWorkWeChat)
	t.Setenv("WORK_WECHAT_WEBHOOK_URL", "")

	out := filepath.Join(t.TempDir(), "out")
	f, err := os.Create(out)
	require.NoError(t, err)
	defer f.Close()

	n := &notify.Notifier{Out: f}
	require.True(t, n.Notify("fallback message"))

	contents, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(contents), "fallback message")
}

func TestNotifyWorkWeChatPostsPayload(t *testing.T) {
	var receivedContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	t.Setenv("NOTIFICATION_CHANNEL", notify.ChannelWorkWeChat)
	t.Setenv("WORK_WECHAT_WEBHOOK_URL", srv.URL)

	n := notify.New()
	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()
	n.Out = f

	require.True(t, n.Notify("webhook message"))
	require.Equal(t, "application/json", receivedContentType)
}
