// Copyright 2025 Alan Matykiewicz
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the
// Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alan-mat/vectra/internal/transport"
)

const maxStreamReadFails = 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to encode response body", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type streamMessage struct {
	MsgID   int    `json:"msg_id"`
	TraceID string `json:"trace_id"`
	Status  string `json:"status"`

	Content  string              `json:"content,omitempty"`
	Document *transport.Document `json:"document,omitempty"`
	Progress *transport.Progress `json:"progress,omitempty"`
}

func newStreamMessage(msg *transport.MessageStreamPayload, traceID string) streamMessage {
	sm := streamMessage{
		MsgID:   msg.ID,
		TraceID: traceID,
		Status:  msg.Status,
	}

	switch msg.Type {
	case transport.MessageTypeContent:
		sm.Content = msg.Content
	case transport.MessageTypeDocument:
		doc := msg.Document
		sm.Document = &doc
	case transport.MessageTypeProgress:
		progress := msg.Progress
		sm.Progress = &progress
	}

	return sm
}

// relayMessageStream copies task messages onto the response as newline
// delimited JSON, flushing after every line, until the task reports
// DONE or ERR.
func relayMessageStream(ctx context.Context, w http.ResponseWriter, traceID string, tstream transport.MessageStream) error {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	readFails := 0
	for {
		msg, err := tstream.Recv(ctx)

		if err != nil {
			if ctx.Err() != nil {
				slog.Debug("client disconnected from stream", "trace", traceID)
				return nil
			}

			slog.Warn("failed to read from stream", "stream", traceID)
			readFails += 1
			if readFails >= maxStreamReadFails {
				slog.Error("exceeded stream read attempts, failed", "id", traceID)
				return fmt.Errorf("exceeded stream read attempts")
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		readFails = 0

		if err := enc.Encode(newStreamMessage(msg, traceID)); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}

		switch msg.Status {
		case "ERR":
			return fmt.Errorf("message stream failed")
		case "DONE":
			slog.Debug("message stream done", "trace", traceID)
			return nil
		}
	}
}
