package assistant

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Run statuses.
const (
	RunStatusQueued         = "queued"
	RunStatusInProgress     = "in_progress"
	RunStatusRequiresAction = "requires_action"
	RunStatusCancelling     = "cancelling"
	RunStatusCancelled      = "cancelled"
	RunStatusFailed         = "failed"
	RunStatusCompleted      = "completed"
	RunStatusIncomplete     = "incomplete"
	RunStatusExpired        = "expired"
)

// Thread is a conversation with the assistant.
type Thread struct {
	ID        string            `json:"id"`
	CreatedAt int64             `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Messages  []Message         `json:"messages"`
}

// Message is one message on a thread.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	CreatedAt int64     `json:"created_at"`
	RunID     string    `json:"run_id,omitempty"`
	Content   []Content `json:"content"`
}

// Content is one part of a message. Only text parts carry Text.
type Content struct {
	Type string `json:"type"`
	Text *Text  `json:"text,omitempty"`
}

// Text is the body of a text content part.
type Text struct {
	Value string `json:"value"`
}

// Text returns the concatenated text parts of the message.
func (m Message) Text() string {
	var parts []string
	for _, c := range m.Content {
		if c.Type == "text" && c.Text != nil {
			parts = append(parts, c.Text.Value)
		}
	}
	return strings.Join(parts, "\n")
}

// Run is an execution of the assistant on a thread.
type Run struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Status    string    `json:"status"`
	LastError *RunError `json:"last_error,omitempty"`
}

// RunError describes why a run failed.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Reply is the assistant's answer to a message.
type Reply struct {
	ThreadID string `json:"thread_id"`
	RunID    string `json:"run_id"`
	Message  string `json:"message"`
}

type messageList struct {
	Data []Message `json:"data"`
}

// CreateThread starts a new, empty thread.
func (c *Client) CreateThread(ctx context.Context, metadata map[string]string) (*Thread, error) {
	body := map[string]any{}
	if len(metadata) > 0 {
		body["metadata"] = metadata
	}

	var thread Thread
	if err := c.doRequest(ctx, http.MethodPost, "/threads", nil, body, &thread); err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}

	c.logger.Debug("created thread", "thread_id", thread.ID)
	return &thread, nil
}

// Thread returns a thread and its messages, oldest first.
func (c *Client) Thread(ctx context.Context, threadID string) (*Thread, error) {
	var thread Thread
	if err := c.doRequest(
		ctx, http.MethodGet, "/threads/"+url.PathEscape(threadID), nil, nil, &thread,
	); err != nil {
		return nil, fmt.Errorf("failed to get thread %q: %w", threadID, err)
	}

	messages, err := c.listMessages(ctx, threadID, url.Values{"order": {"asc"}, "limit": {"100"}})
	if err != nil {
		return nil, err
	}
	thread.Messages = messages
	return &thread, nil
}

// Send appends message to threadID, runs the assistant, and returns its
// reply. A new thread carrying metadata is created when threadID is empty.
func (c *Client) Send(
	ctx context.Context,
	threadID, message string,
	metadata map[string]string,
) (*Reply, error) {
	if threadID == "" {
		thread, err := c.CreateThread(ctx, metadata)
		if err != nil {
			return nil, err
		}
		threadID = thread.ID
	}

	if err := c.addMessage(ctx, threadID, message, metadata); err != nil {
		return nil, err
	}

	run, err := c.createRun(ctx, threadID)
	if err != nil {
		return nil, err
	}

	run, err = c.waitForRun(ctx, threadID, run)
	if err != nil {
		return nil, err
	}

	messages, err := c.listMessages(ctx, threadID, url.Values{
		"order":  {"desc"},
		"limit":  {"20"},
		"run_id": {run.ID},
	})
	if err != nil {
		return nil, err
	}

	for _, m := range messages {
		if m.Role == "assistant" {
			c.logger.Info("assistant replied", "thread_id", threadID, "run_id", run.ID)
			return &Reply{ThreadID: threadID, RunID: run.ID, Message: m.Text()}, nil
		}
	}
	return nil, fmt.Errorf("run %s completed without an assistant message", run.ID)
}

func (c *Client) addMessage(ctx context.Context, threadID, message string, metadata map[string]string) error {
	body := map[string]any{
		"role":    "user",
		"content": message,
	}
	if len(metadata) > 0 {
		body["metadata"] = metadata
	}

	if err := c.doRequest(
		ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/messages", nil, body, nil,
	); err != nil {
		return fmt.Errorf("failed to add message to thread %q: %w", threadID, err)
	}
	return nil
}

func (c *Client) createRun(ctx context.Context, threadID string) (*Run, error) {
	var run Run
	if err := c.doRequest(
		ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/runs", nil,
		map[string]any{"assistant_id": c.assistantID}, &run,
	); err != nil {
		return nil, fmt.Errorf("failed to start run on thread %q: %w", threadID, err)
	}
	return &run, nil
}

func (c *Client) getRun(ctx context.Context, threadID, runID string) (*Run, error) {
	var run Run
	if err := c.doRequest(
		ctx, http.MethodGet,
		"/threads/"+url.PathEscape(threadID)+"/runs/"+url.PathEscape(runID), nil, nil, &run,
	); err != nil {
		return nil, fmt.Errorf("failed to get run %q: %w", runID, err)
	}
	return &run, nil
}

// waitForRun polls run until it reaches a terminal status or ctx is done.
func (c *Client) waitForRun(ctx context.Context, threadID string, run *Run) (*Run, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		switch run.Status {
		case RunStatusCompleted:
			return run, nil
		case RunStatusQueued, RunStatusInProgress, RunStatusCancelling:
		default:
			if run.LastError != nil {
				return nil, fmt.Errorf("run %s ended with status %q: %s",
					run.ID, run.Status, run.LastError.Message)
			}
			return nil, fmt.Errorf("run %s ended with status %q", run.ID, run.Status)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for run %s: %w", run.ID, ctx.Err())
		case <-ticker.C:
		}

		var err error
		if run, err = c.getRun(ctx, threadID, run.ID); err != nil {
			return nil, err
		}
	}
}

func (c *Client) listMessages(ctx context.Context, threadID string, params url.Values) ([]Message, error) {
	var list messageList
	if err := c.doRequest(
		ctx, http.MethodGet, "/threads/"+url.PathEscape(threadID)+"/messages", params, nil, &list,
	); err != nil {
		return nil, fmt.Errorf("failed to list messages on thread %q: %w", threadID, err)
	}
	return list.Data, nil
}
