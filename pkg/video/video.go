// Package video submits image-to-video tasks to Volcengine Ark and reads
// them back.
package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/go-resty/resty/v2"

	"atelier/pkg/utils"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Terminal reports whether the task can no longer change.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

var (
	ErrNotConfigured = errors.New("video: API key, URL or model not configured")
	// ErrMalformed is returned when the vendor reply lacks the task id or status.
	ErrMalformed = errors.New("video: malformed vendor response")
	// ErrTimeout is returned by Wait when the task is still running once the
	// polling policy is exhausted.
	ErrTimeout = errors.New("video: task did not finish in time")

	errNotFinished = errors.New("video: task not finished")
)

// APIError is a non-2xx reply from the task endpoint.
type APIError struct {
	StatusCode int
	// Details is the vendor's error (or message) field, when it sent one.
	Details any
}

func (e *APIError) Error() string {
	if e.Details == nil {
		return fmt.Sprintf("video: vendor returned %d", e.StatusCode)
	}
	return fmt.Sprintf("video: vendor returned %d: %v", e.StatusCode, e.Details)
}

type Task struct {
	ID       string `json:"id"`
	Status   Status `json:"status"`
	VideoURL string `json:"videoUrl,omitempty"`
	// Error is the vendor's failure reason for failed tasks.
	Error any `json:"error,omitempty"`
}

// Policy bounds Wait: capped exponential backoff between polls, a total
// time budget and a maximum number of polls.
type Policy struct {
	Interval    time.Duration
	MaxInterval time.Duration
	MaxWait     time.Duration
	MaxAttempts uint64
}

var DefaultPolicy = Policy{
	Interval:    2 * time.Second,
	MaxInterval: 15 * time.Second,
	MaxWait:     10 * time.Minute,
	MaxAttempts: 120,
}

type Client struct {
	client *resty.Client
	url    string
	apiKey string
	model  string
	policy Policy
}

// NewClient creates a task client. url is the task collection endpoint;
// individual tasks are read from url/{id}.
func NewClient(url, apiKey, model string, timeout time.Duration) *Client {
	client := resty.New().
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &Client{
		client: client,
		url:    strings.TrimRight(url, "/"),
		apiKey: apiKey,
		model:  model,
		policy: DefaultPolicy,
	}
}

func (c *Client) WithPolicy(p Policy) *Client {
	c.policy = p
	return c
}

func (c *Client) Configured() bool {
	return c.apiKey != "" && c.url != "" && c.model != ""
}

type contentItem struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
	Role     string    `json:"role,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// Submit creates a task animating firstFrame (an image URL) and returns the
// task id.
func (c *Client) Submit(ctx context.Context, prompt, firstFrame string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	body := map[string]any{
		"model": c.model,
		"content": []contentItem{
			{Type: "text", Text: prompt + " --ratio adaptive --dur 5"},
			{Type: "image_url", ImageURL: &imageURL{URL: firstFrame}, Role: "first_frame"},
		},
	}
	log.Info("submitting video task", "model", c.model, "prompt", utils.LimitStr(prompt, 40))

	res, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(c.url)
	if err != nil {
		return "", fmt.Errorf("video: submitting task: %w", err)
	}
	if err := apiError(res); err != nil {
		return "", err
	}

	var created struct {
		ID     string `json:"id"`
		TaskID string `json:"task_id"`
		Data   struct {
			TaskID string `json:"task_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(res.Body(), &created); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	id := created.Data.TaskID
	if id == "" {
		id = created.ID
	}
	if id == "" {
		id = created.TaskID
	}
	if id == "" {
		log.Error("video task reply has no id", "body", utils.LimitStr(res.String(), 500))
		return "", fmt.Errorf("%w: no task id", ErrMalformed)
	}

	log.Info("video task submitted", "task", id)
	return id, nil
}

// Status reads the task once.
func (c *Client) Status(ctx context.Context, id string) (*Task, error) {
	if c.apiKey == "" || c.url == "" {
		return nil, ErrNotConfigured
	}

	res, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		Get(c.url + "/{id}")
	if err != nil {
		return nil, fmt.Errorf("video: reading task: %w", err)
	}
	if err := apiError(res); err != nil {
		return nil, err
	}

	var reply struct {
		Status  Status `json:"status"`
		Content struct {
			VideoURL string `json:"video_url"`
		} `json:"content"`
		Error any `json:"error"`
	}
	if err := json.Unmarshal(res.Body(), &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if reply.Status == "" {
		return nil, fmt.Errorf("%w: no status", ErrMalformed)
	}

	task := &Task{ID: id, Status: reply.Status}
	switch reply.Status {
	case StatusSucceeded:
		task.VideoURL = reply.Content.VideoURL
	case StatusFailed:
		task.Error = reply.Error
	}
	log.Debug("video task status", "task", id, "status", task.Status)
	return task, nil
}

// Wait polls the task until it reaches a terminal status. When the policy
// runs out first it returns the last task seen together with ErrTimeout.
func (c *Client) Wait(ctx context.Context, id string) (*Task, error) {
	var last *Task
	poll := func() error {
		task, err := c.Status(ctx, id)
		if err != nil {
			if permanent(err) {
				return backoff.Permanent(err)
			}
			log.Warn("video status poll failed", "task", id, "error", err)
			return err
		}
		last = task
		if !task.Status.Terminal() {
			return errNotFinished
		}
		return nil
	}

	err := backoff.Retry(poll, c.backoff(ctx))
	switch {
	case err == nil:
		return last, nil
	case errors.Is(err, errNotFinished):
		return last, fmt.Errorf("%w: last status %s", ErrTimeout, last.Status)
	case ctx.Err() != nil:
		return last, err
	case last != nil:
		return last, fmt.Errorf("%w: %w", ErrTimeout, err)
	default:
		return nil, err
	}
}

func (c *Client) backoff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.policy.Interval
	b.MaxInterval = c.policy.MaxInterval
	b.MaxElapsedTime = c.policy.MaxWait
	b.Reset()

	var policy backoff.BackOff = b
	if c.policy.MaxAttempts > 0 {
		policy = backoff.WithMaxRetries(b, c.policy.MaxAttempts)
	}
	return backoff.WithContext(policy, ctx)
}

// permanent errors are not retried: client errors and malformed replies.
func permanent(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode < 500 && apiErr.StatusCode != 429
	}
	return errors.Is(err, ErrMalformed) || errors.Is(err, ErrNotConfigured)
}

func apiError(res *resty.Response) error {
	if res.IsSuccess() {
		return nil
	}

	apiErr := &APIError{StatusCode: res.StatusCode()}
	var body struct {
		Error   any `json:"error"`
		Message any `json:"message"`
	}
	if err := json.Unmarshal(res.Body(), &body); err != nil {
		if text := strings.TrimSpace(res.String()); text != "" {
			apiErr.Details = utils.LimitStr(text, 500)
		}
	} else {
		apiErr.Details = firstPresent(body.Error, body.Message)
	}
	log.Error("video vendor error", "status", apiErr.StatusCode, "details", apiErr.Details)
	return apiErr
}

func firstPresent(values ...any) any {
	for _, v := range values {
		switch v := v.(type) {
		case nil:
		case string:
			if v != "" {
				return v
			}
		default:
			return v
		}
	}
	return nil
}

// StatusMessage is the user-facing description of a task status.
func StatusMessage(s Status) string {
	switch s {
	case StatusQueued, StatusPending:
		return "任务排队中..."
	case StatusRunning:
		return "视频生成中..."
	case StatusSucceeded:
		return "视频生成完成"
	case StatusFailed:
		return "视频生成失败"
	case StatusCancelled:
		return "任务已取消"
	case StatusExpired:
		return "任务已过期"
	default:
		return "未知状态"
	}
}
