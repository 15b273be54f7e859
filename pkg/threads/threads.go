// Package threads drives the provider's stateful conversation protocol:
// create a thread, post the conversation as one message, start a run
// against an agent, poll it until it settles and read back the reply.
package threads

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/llm"
	"github.com/papercomputeco/relay/pkg/normalize"
	"github.com/papercomputeco/relay/pkg/upstream"
)

const (
	// MaxContentLength caps the flattened conversation, in characters.
	MaxContentLength = 6000

	// PollInterval is the fixed delay between run status checks.
	PollInterval = 900 * time.Millisecond

	// PollTimeout is the soft ceiling on polling, measured from run creation.
	// Reaching it is not an error; the reply is read as-is.
	PollTimeout = 60 * time.Second

	// MessagePageSize bounds the message fetch.
	MessagePageSize = 10

	betaHeader = "assistants=v2"
)

// Protocol stage names, reported in upstream.StageFailure.
const (
	StageCreateThread  = "create_thread"
	StagePostMessage   = "post_message"
	StageCreateRun     = "create_run"
	StagePollRun       = "poll_run"
	StageFetchMessages = "fetch_messages"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options tune the driver. Zero values take the package defaults.
type Options struct {
	Now          func() time.Time
	Sleep        SleepFunc
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Driver runs the thread protocol for one agent.
type Driver struct {
	client  upstream.Caller
	agentID string
	logger  *zap.Logger

	now          func() time.Time
	sleep        SleepFunc
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// New creates a Driver that runs agentID through client.
func New(client upstream.Caller, agentID string, logger *zap.Logger, opts Options) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Driver{
		client:       client,
		agentID:      agentID,
		logger:       logger,
		now:          opts.Now,
		sleep:        opts.Sleep,
		pollInterval: opts.PollInterval,
		pollTimeout:  opts.PollTimeout,
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.sleep == nil {
		d.sleep = Sleep
	}
	if d.pollInterval <= 0 {
		d.pollInterval = PollInterval
	}
	if d.pollTimeout <= 0 {
		d.pollTimeout = PollTimeout
	}
	return d
}

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type thread struct {
	ID string `json:"id"`
}

// Run is the upstream execution attached to a thread.
type Run struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type threadMessage struct {
	Role    string                 `json:"role"`
	Content []normalize.ThreadPart `json:"content"`
}

type messageList struct {
	Data []threadMessage `json:"data"`
}

// Converse relays messages through a fresh thread and returns the payload
// of the agent's latest reply. Any non-2xx step aborts with an
// *upstream.StageFailure and no further calls are made.
func (d *Driver) Converse(ctx context.Context, messages []llm.Message) (normalize.Payload, error) {
	th, err := d.createThread(ctx)
	if err != nil {
		return nil, err
	}
	log := d.logger.With(zap.String("thread_id", th.ID))

	if err := d.postMessage(ctx, th.ID, Flatten(messages)); err != nil {
		return nil, err
	}

	run, err := d.createRun(ctx, th.ID)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Debug("run created", zap.String("status", run.Status))

	run, state, err := d.poll(ctx, th.ID, run)
	if err != nil {
		return nil, err
	}
	switch state {
	case stateTimedOut:
		log.Warn("run still pending after poll ceiling, reading current messages",
			zap.String("status", run.Status),
			zap.Duration("ceiling", d.pollTimeout),
		)
	default:
		log.Debug("run settled", zap.String("status", run.Status))
	}

	return d.latestReply(ctx, th.ID)
}

// Flatten joins message contents with blank lines and caps the result at
// MaxContentLength characters.
func Flatten(messages []llm.Message) string {
	contents := make([]string, len(messages))
	for i, m := range messages {
		contents[i] = m.Content
	}
	return truncate(strings.Join(contents, "\n\n"), MaxContentLength)
}

func truncate(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxChars])
}

func (d *Driver) call(ctx context.Context, stage, method, path string, body any) (*upstream.Response, error) {
	resp, err := d.client.Call(ctx, upstream.Request{
		Method: method,
		Path:   path,
		Body:   body,
		Header: map[string]string{"OpenAI-Beta": betaHeader},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stage, err)
	}
	if err := upstream.Check(stage, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (d *Driver) createThread(ctx context.Context) (*thread, error) {
	resp, err := d.call(ctx, StageCreateThread, http.MethodPost, "/threads", map[string]any{})
	if err != nil {
		return nil, err
	}
	var th thread
	if err := resp.Decode(&th); err != nil {
		return nil, fmt.Errorf("%s: %w", StageCreateThread, err)
	}
	if th.ID == "" {
		return nil, fmt.Errorf("%s: response has no thread id", StageCreateThread)
	}
	return &th, nil
}

func (d *Driver) postMessage(ctx context.Context, threadID, content string) error {
	_, err := d.call(ctx, StagePostMessage, http.MethodPost, threadPath(threadID, "messages"), map[string]string{
		"role":    llm.DefaultRole,
		"content": content,
	})
	return err
}

func (d *Driver) createRun(ctx context.Context, threadID string) (*Run, error) {
	resp, err := d.call(ctx, StageCreateRun, http.MethodPost, threadPath(threadID, "runs"), map[string]string{
		"assistant_id": d.agentID,
	})
	if err != nil {
		return nil, err
	}
	return decodeRun(StageCreateRun, resp)
}

func (d *Driver) fetchRun(ctx context.Context, threadID, runID string) (*Run, error) {
	resp, err := d.call(ctx, StagePollRun, http.MethodGet, threadPath(threadID, "runs", runID), nil)
	if err != nil {
		return nil, err
	}
	return decodeRun(StagePollRun, resp)
}

func decodeRun(stage string, resp *upstream.Response) (*Run, error) {
	var run Run
	if err := resp.Decode(&run); err != nil {
		return nil, fmt.Errorf("%s: %w", stage, err)
	}
	return &run, nil
}

func (d *Driver) latestReply(ctx context.Context, threadID string) (normalize.Payload, error) {
	path := threadPath(threadID, "messages") + fmt.Sprintf("?limit=%d", MessagePageSize)
	resp, err := d.call(ctx, StageFetchMessages, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var list messageList
	if err := resp.Decode(&list); err != nil {
		return nil, fmt.Errorf("%s: %w", StageFetchMessages, err)
	}

	// The provider lists newest first.
	for _, m := range list.Data {
		if m.Role == "assistant" {
			return normalize.ThreadContent{Parts: m.Content}, nil
		}
	}
	return normalize.Unknown{}, nil
}

func threadPath(threadID string, parts ...string) string {
	segs := append([]string{"/threads", url.PathEscape(threadID)}, parts...)
	return strings.Join(segs, "/")
}
