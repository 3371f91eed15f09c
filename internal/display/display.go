// Package display renders a line-delimited conversation archive directly to
// human-readable text, bypassing the Store (spec.md §4.12, §9: the stored
// canonical exchange record drops formatting detail, so show_conversation
// reads the source archive itself).
package display

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type record struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Client    string `json:"client_version"`
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
	Name      string `json:"name"`
	Tool      string `json:"tool"`
	ToolCalls []struct {
		Name string `json:"name"`
		Tool string `json:"tool"`
	} `json:"tool_calls"`
}

type exchange struct {
	userText      string
	assistantText string
	tools         []string
}

// Render parses path as a line-delimited conversation archive and renders
// session metadata followed by per-exchange sections, restricted to the
// inclusive 1-indexed [startExchange, endExchange] range when given. A
// missing file returns a one-line error string as its result, not an error,
// per spec.md §4.12.
func Render(path string, startExchange, endExchange *int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Sprintf("could not open %q: %v", path, err), nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 16*1024*1024)

	var sessionStart *record
	var exchanges []exchange
	var inProgress *exchange

	flush := func() {
		if inProgress != nil && inProgress.userText != "" && inProgress.assistantText != "" {
			exchanges = append(exchanges, *inProgress)
		}
		inProgress = nil
	}

	for scanner.Scan() {
		var rec record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}

		switch rec.Type {
		case "session.start":
			r := rec
			sessionStart = &r

		case "user.message":
			flush()
			inProgress = &exchange{userText: rec.Content}

		case "assistant.message":
			if inProgress == nil {
				continue
			}
			if inProgress.assistantText == "" {
				inProgress.assistantText = rec.Content
			} else {
				inProgress.assistantText += "\n" + rec.Content
			}
			for _, tc := range rec.ToolCalls {
				name := tc.Name
				if name == "" {
					name = tc.Tool
				}
				if name != "" {
					inProgress.tools = append(inProgress.tools, name)
				}
			}

		case "tool.call", "tool.invoke":
			if inProgress == nil {
				continue
			}
			name := rec.Name
			if name == "" {
				name = rec.Tool
			}
			if name != "" {
				inProgress.tools = append(inProgress.tools, name)
			}
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return fmt.Sprintf("could not read %q: %v", path, err), nil
	}
	if sessionStart == nil {
		return fmt.Sprintf("%q has no session.start record", path), nil
	}

	from, to := 1, len(exchanges)
	if startExchange != nil {
		from = *startExchange
	}
	if endExchange != nil {
		to = *endExchange
	}
	if from < 1 {
		from = 1
	}
	if to > len(exchanges) {
		to = len(exchanges)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "session:    %s\n", sessionStart.SessionID)
	fmt.Fprintf(&b, "client:     %s\n", sessionStart.Client)
	fmt.Fprintf(&b, "started:    %s\n", sessionStart.Timestamp)
	fmt.Fprintf(&b, "exchanges:  %d\n", len(exchanges))

	for i := from; i <= to; i++ {
		ex := exchanges[i-1]
		fmt.Fprintf(&b, "\n--- exchange %s ---\n", strconv.Itoa(i))
		fmt.Fprintf(&b, "user: %s\n", ex.userText)
		fmt.Fprintf(&b, "assistant: %s\n", ex.assistantText)
		if len(ex.tools) > 0 {
			fmt.Fprintf(&b, "tools: %s\n", strings.Join(ex.tools, ", "))
		}
	}

	return b.String(), nil
}
