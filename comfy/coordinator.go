// Package comfy drives a ComfyUI server through admission, submission and
// completion for one prompt at a time.
package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mhpenta/imagerelay"
	"github.com/mhpenta/imagerelay/metrics"
)

// Default polling bounds.
const (
	DefaultPollInterval       = time.Second
	DefaultAdmissionAttempts  = 30
	DefaultCompletionAttempts = 300

	maxResponseSize = 32 << 20
)

// engineName labels errors reported by the engine.
const engineName = "comfyui"

// JobError is returned when the engine reports that a job failed to execute.
type JobError struct {
	JobID   string
	Message string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

// Public omits the engine's exception text.
func (e *JobError) Public() string {
	return fmt.Sprintf("generation job %s failed", e.JobID)
}

// IsJobError checks if an error is a JobError.
func IsJobError(err error) bool {
	var jErr *JobError
	return errors.As(err, &jErr)
}

// Coordinator submits prompts to a ComfyUI server and waits for the output.
// It holds no per-job state; concurrent calls each run their own polling
// loop.
type Coordinator struct {
	baseURL  string
	client   *http.Client
	clientID string
	template Workflow

	promptSuffix   string
	negativePrompt string

	interval           time.Duration
	admissionAttempts  int
	completionAttempts int

	logger *slog.Logger
}

// Ensure Coordinator implements imagerelay.ImageGenerator.
var _ imagerelay.ImageGenerator = (*Coordinator)(nil)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithHTTPClient sets the HTTP client used for all engine calls.
func WithHTTPClient(c *http.Client) Option {
	return func(co *Coordinator) {
		co.client = c
	}
}

// WithClientID sets the client id attached to submissions.
func WithClientID(id string) Option {
	return func(co *Coordinator) {
		co.clientID = id
	}
}

// WithWorkflow sets the workflow template.
func WithWorkflow(w Workflow) Option {
	return func(co *Coordinator) {
		co.template = w
	}
}

// WithPromptDecoration overrides the positive suffix and negative prompt.
func WithPromptDecoration(suffix, negative string) Option {
	return func(co *Coordinator) {
		co.promptSuffix = suffix
		co.negativePrompt = negative
	}
}

// WithPollInterval sets the delay between admission and completion polls.
func WithPollInterval(d time.Duration) Option {
	return func(co *Coordinator) {
		co.interval = d
	}
}

// WithAttempts sets the admission and completion polling ceilings.
func WithAttempts(admission, completion int) Option {
	return func(co *Coordinator) {
		co.admissionAttempts = admission
		co.completionAttempts = completion
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(co *Coordinator) {
		co.logger = logger
	}
}

// New creates a coordinator for the engine at baseURL.
func New(baseURL string, opts ...Option) *Coordinator {
	co := &Coordinator{
		baseURL:            strings.TrimRight(baseURL, "/"),
		client:             http.DefaultClient,
		clientID:           "imagerelay-" + uuid.NewString(),
		template:           DefaultWorkflow(),
		promptSuffix:       DefaultPromptSuffix,
		negativePrompt:     DefaultNegativePrompt,
		interval:           DefaultPollInterval,
		admissionAttempts:  DefaultAdmissionAttempts,
		completionAttempts: DefaultCompletionAttempts,
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(co)
	}
	return co
}

// ClientID returns the id attached to every submission.
func (co *Coordinator) ClientID() string { return co.clientID }

// PreparePayload returns a copy of the template with the prompt substituted.
// The template itself is never modified.
func (co *Coordinator) PreparePayload(prompt string) (Workflow, error) {
	w := co.template.Clone()
	if err := w.setText(PositiveNode, prompt+co.promptSuffix); err != nil {
		return nil, err
	}
	if err := w.setText(NegativeNode, co.negativePrompt); err != nil {
		return nil, err
	}
	return w, nil
}

// Run drives a new job through submission and completion. The returned job
// is always non-nil and reflects the final status, even on error.
func (co *Coordinator) Run(ctx context.Context, prompt string) (*Job, error) {
	job := NewJob(prompt)
	start := time.Now()
	defer func() {
		metrics.Jobs.WithLabelValues(string(job.Status)).Inc()
		metrics.JobDuration.Observe(time.Since(start).Seconds())
	}()

	id, err := co.Submit(ctx, prompt)
	if err != nil {
		job.fail(StatusFailed, err)
		return job, err
	}
	job.ID = id
	if err := job.Advance(StatusQueued); err != nil {
		return job, err
	}
	if err := job.Advance(StatusRunning); err != nil {
		return job, err
	}

	ref, err := co.AwaitCompletion(ctx, id)
	if err != nil {
		if imagerelay.IsTimeoutError(err) {
			job.fail(StatusTimedOut, err)
		} else {
			job.fail(StatusFailed, err)
		}
		return job, err
	}

	job.ImageRef = ref
	if err := job.Advance(StatusComplete); err != nil {
		return job, err
	}

	co.logger.Info("generation job completed",
		"job_id", id,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return job, nil
}

// Submit waits for the engine to be idle, then queues the prepared workflow
// and returns the engine's job id. The admission wait is advisory: after the
// last attempt the job is submitted regardless.
func (co *Coordinator) Submit(ctx context.Context, prompt string) (string, error) {
	if err := imagerelay.ValidatePrompt(prompt); err != nil {
		return "", err
	}
	payload, err := co.PreparePayload(prompt)
	if err != nil {
		return "", fmt.Errorf("preparing workflow: %w", err)
	}

	if err := co.awaitAdmission(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(submitRequest{Prompt: payload, ClientID: co.clientID})
	if err != nil {
		return "", fmt.Errorf("encoding submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, co.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating submission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := co.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", imagerelay.NewSubmissionError(0, nil, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", imagerelay.NewSubmissionError(resp.StatusCode, nil, fmt.Errorf("reading response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", imagerelay.NewSubmissionError(resp.StatusCode, respBody, nil)
	}

	var out submitResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", imagerelay.NewSubmissionError(resp.StatusCode, respBody, fmt.Errorf("decoding response: %w", err))
	}
	if out.PromptID == "" {
		return "", imagerelay.NewSubmissionError(resp.StatusCode, respBody, errors.New("response has no prompt_id"))
	}

	co.logger.Info("generation job submitted",
		"job_id", out.PromptID,
		"queue_number", out.Number,
	)
	return out.PromptID, nil
}

// awaitAdmission polls the queue until nothing is running or the attempts
// run out. Only context cancellation is reported.
func (co *Coordinator) awaitAdmission(ctx context.Context) error {
	for attempt := 1; attempt <= co.admissionAttempts; attempt++ {
		idle, err := co.queueIdle(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.EnginePolls.WithLabelValues(string(imagerelay.StageAdmission), "error").Inc()
			co.logger.Debug("queue status check failed", "attempt", attempt, "error", err.Error())
		case idle:
			metrics.EnginePolls.WithLabelValues(string(imagerelay.StageAdmission), "idle").Inc()
			return nil
		default:
			metrics.EnginePolls.WithLabelValues(string(imagerelay.StageAdmission), "busy").Inc()
		}

		if attempt < co.admissionAttempts {
			if err := sleep(ctx, co.interval); err != nil {
				return err
			}
		}
	}

	co.logger.Warn("engine still busy, submitting anyway",
		"attempts", co.admissionAttempts,
	)
	return nil
}

func (co *Coordinator) queueIdle(ctx context.Context) (bool, error) {
	var q queueStatus
	status, err := co.getJSON(ctx, co.baseURL+"/queue", &q)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, fmt.Errorf("queue status %d", status)
	}
	return len(q.Running) == 0, nil
}

// AwaitCompletion polls the job's history until an output image appears.
// Individual poll failures are logged and absorbed; running out of attempts
// fails with a *imagerelay.TimeoutError.
func (co *Coordinator) AwaitCompletion(ctx context.Context, jobID string) (string, error) {
	historyURL := co.baseURL + "/history/" + url.PathEscape(jobID)

	for attempt := 1; attempt <= co.completionAttempts; attempt++ {
		ref, done, err := co.checkHistory(ctx, historyURL, jobID)
		switch {
		case done:
			metrics.EnginePolls.WithLabelValues(string(imagerelay.StageCompletion), "ready").Inc()
			return ref, nil
		case IsJobError(err):
			metrics.EnginePolls.WithLabelValues(string(imagerelay.StageCompletion), "failed").Inc()
			return "", err
		case err != nil:
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			metrics.EnginePolls.WithLabelValues(string(imagerelay.StageCompletion), "error").Inc()
			co.logger.Warn("history check failed",
				"job_id", jobID,
				"attempt", attempt,
				"error", err.Error(),
			)
		default:
			metrics.EnginePolls.WithLabelValues(string(imagerelay.StageCompletion), "pending").Inc()
		}

		if attempt < co.completionAttempts {
			if err := sleep(ctx, co.interval); err != nil {
				return "", err
			}
		}
	}

	co.logger.Error("generation job timed out",
		"job_id", jobID,
		"attempts", co.completionAttempts,
	)
	return "", &imagerelay.TimeoutError{
		Stage:    imagerelay.StageCompletion,
		Attempts: co.completionAttempts,
	}
}

// checkHistory reports whether the job has an output image yet.
func (co *Coordinator) checkHistory(ctx context.Context, historyURL, jobID string) (string, bool, error) {
	var history map[string]historyEntry
	status, err := co.getJSON(ctx, historyURL, &history)
	if err != nil {
		return "", false, err
	}
	if status != http.StatusOK {
		return "", false, fmt.Errorf("history status %d", status)
	}

	entry, ok := history[jobID]
	if !ok {
		return "", false, nil
	}

	// Visit output nodes in a stable order
	nodes := make([]string, 0, len(entry.Outputs))
	for id := range entry.Outputs {
		nodes = append(nodes, id)
	}
	slices.Sort(nodes)

	for _, id := range nodes {
		var out nodeOutput
		if err := json.Unmarshal(entry.Outputs[id], &out); err != nil {
			continue
		}
		for _, img := range out.Images {
			if img.Filename != "" {
				return co.viewURL(img), true, nil
			}
		}
	}

	if entry.Status != nil && entry.Status.StatusStr == "error" {
		return "", false, &JobError{JobID: jobID, Message: entry.Status.message()}
	}
	return "", false, nil
}

func (co *Coordinator) viewURL(img outputImage) string {
	q := url.Values{}
	q.Set("filename", img.Filename)
	if img.Subfolder != "" {
		q.Set("subfolder", img.Subfolder)
	}
	if img.Type != "" {
		q.Set("type", img.Type)
	}
	return co.baseURL + "/view?" + q.Encode()
}

// FetchImage downloads an output referenced by AwaitCompletion.
func (co *Coordinator) FetchImage(ctx context.Context, ref string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating fetch request: %w", err)
	}

	resp, err := co.client.Do(req)
	if err != nil {
		return nil, "", imagerelay.NewProviderError(engineName, 0, nil, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", &imagerelay.NotFoundError{Resource: ref}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, "", imagerelay.NewProviderError(engineName, resp.StatusCode, nil, fmt.Errorf("reading image: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", imagerelay.NewProviderError(engineName, resp.StatusCode, data, nil)
	}
	if len(data) == 0 {
		return nil, "", &imagerelay.NotFoundError{Resource: ref}
	}

	mimeType, _, _ := strings.Cut(resp.Header.Get("Content-Type"), ";")
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = imagerelay.DetectMIMEType(data)
	}
	return data, mimeType, nil
}

func (co *Coordinator) getJSON(ctx context.Context, rawURL string, v any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := co.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("decoding %s: %w", rawURL, err)
	}
	return resp.StatusCode, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
