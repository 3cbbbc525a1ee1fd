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

// Package usertool implements the interactive user-communicate tool: it
// prints a message and blocks for a multi-line reply, terminated by EOF or
// an "###END###" sentinel line (spec.md §8 scenario 3, recoverable missing
// input).
package usertool

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kadirpekel/docflow/pkg/logger"
	"github.com/kadirpekel/docflow/pkg/tool"
)

const ToolID = "USER_COMMUNICATE"

const endMarker = "###END###"

// Tool prompts on Out and reads the reply from In. Both default to the
// process's stdout/stdin via New; tests inject buffers instead.
type Tool struct {
	In  io.Reader
	Out io.Writer
}

// New constructs a Tool wired to the process's real stdin/stdout.
func New() *Tool {
	return &Tool{In: os.Stdin, Out: os.Stdout}
}

func (*Tool) ID() string { return ToolID }

func (t *Tool) Execute(ctx tool.Context) (*tool.Result, error) {
	message, _ := ctx.Params["message"].(string)
	if message == "" {
		return nil, fmt.Errorf("usertool: message parameter is required")
	}

	in, out := t.In, t.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}

	fmt.Fprintln(out, "[USER_COMMUNICATE] Sending message to user:")
	fmt.Fprintln(out, message)
	fmt.Fprintln(out, "\n"+strings.Repeat("=", 50))
	fmt.Fprintln(out, "Please enter your reply (EOF or '###END###' on a new line when finished):")

	reply := readMultiline(in)
	if reply == "" {
		fmt.Fprintln(out, "No input received from user.")
	} else {
		logger.GetLogger().Debug("usertool: received reply", "task_id", ctx.TaskID, "reply_len", len(reply))
	}

	return &tool.Result{Output: map[string]any{"user_reply": reply}}, nil
}

// GetResultValidationHint implements tool.ValidationHinter.
func (*Tool) GetResultValidationHint(*tool.Result, error) string {
	return "The result is a JSON object with key: user_reply (string). Ensure user_reply contains the user's complete response to the message."
}

func readMultiline(r io.Reader) string {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == endMarker {
			break
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
