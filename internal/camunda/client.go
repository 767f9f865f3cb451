package camunda

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// BpmnError is a business error raised by a task handler. The engine routes
// it to the matching error boundary in the process definition.
type BpmnError struct {
	Code    string
	Message string
}

func (e *BpmnError) Error() string {
	return fmt.Sprintf("bpmn error %s: %s", e.Code, e.Message)
}

// Task is one locked external task returned by fetchAndLock.
type Task struct {
	ID                string    `json:"id"`
	TopicName         string    `json:"topicName"`
	ProcessInstanceID string    `json:"processInstanceId"`
	Variables         Variables `json:"variables"`
}

// Client talks to the engine's REST API.
type Client struct {
	baseURL  string
	workerID string
	http     *http.Client
}

// NewClient creates a client for the engine at baseURL (e.g.
// http://camunda:8080/engine-rest). workerID identifies this process in
// fetchAndLock requests.
func NewClient(baseURL, workerID string) *Client {
	return &Client{
		baseURL:  baseURL,
		workerID: workerID,
		http:     &http.Client{Timeout: 65 * time.Second},
	}
}

type topicSubscription struct {
	TopicName    string `json:"topicName"`
	LockDuration int64  `json:"lockDuration"`
}

type fetchAndLockRequest struct {
	WorkerID             string              `json:"workerId"`
	MaxTasks             int                 `json:"maxTasks"`
	AsyncResponseTimeout int64               `json:"asyncResponseTimeout"`
	Topics               []topicSubscription `json:"topics"`
}

// FetchAndLock long-polls the engine for up to maxTasks tasks across the
// given topics, each locked for lockDuration.
func (c *Client) FetchAndLock(ctx context.Context, topics []string, maxTasks int, lockDuration, asyncResponseTimeout time.Duration) ([]Task, error) {
	subs := make([]topicSubscription, len(topics))
	for i, t := range topics {
		subs[i] = topicSubscription{TopicName: t, LockDuration: lockDuration.Milliseconds()}
	}
	req := fetchAndLockRequest{
		WorkerID:             c.workerID,
		MaxTasks:             maxTasks,
		AsyncResponseTimeout: asyncResponseTimeout.Milliseconds(),
		Topics:               subs,
	}

	var tasks []Task
	if err := c.post(ctx, "/external-task/fetchAndLock", req, &tasks); err != nil {
		return nil, fmt.Errorf("fetch and lock: %w", err)
	}
	return tasks, nil
}

// Complete finishes a task, handing output variables back to the process.
func (c *Client) Complete(ctx context.Context, taskID string, vars Variables) error {
	body := map[string]interface{}{"workerId": c.workerID, "variables": vars}
	if err := c.post(ctx, "/external-task/"+taskID+"/complete", body, nil); err != nil {
		return fmt.Errorf("complete task %s: %w", taskID, err)
	}
	return nil
}

// ReportBpmnError raises a business error on a task so the process follows
// the matching error boundary.
func (c *Client) ReportBpmnError(ctx context.Context, taskID string, berr *BpmnError) error {
	body := map[string]interface{}{
		"workerId":     c.workerID,
		"errorCode":    berr.Code,
		"errorMessage": berr.Message,
	}
	if err := c.post(ctx, "/external-task/"+taskID+"/bpmnError", body, nil); err != nil {
		return fmt.Errorf("report bpmn error on task %s: %w", taskID, err)
	}
	return nil
}

// ReportFailure reports a technical failure with zero retries; the process
// definition's own policy decides what happens next.
func (c *Client) ReportFailure(ctx context.Context, taskID, message string) error {
	body := map[string]interface{}{
		"workerId":     c.workerID,
		"errorMessage": message,
		"retries":      0,
	}
	if err := c.post(ctx, "/external-task/"+taskID+"/failure", body, nil); err != nil {
		return fmt.Errorf("report failure on task %s: %w", taskID, err)
	}
	return nil
}

// StartProcessResponse identifies a started process instance.
type StartProcessResponse struct {
	ID string `json:"id"`
}

// StartProcess starts a process instance by definition key with the given
// variables and returns the process instance id.
func (c *Client) StartProcess(ctx context.Context, definitionKey string, vars Variables) (string, error) {
	body := map[string]interface{}{"variables": vars}
	var resp StartProcessResponse
	if err := c.post(ctx, "/process-definition/key/"+definitionKey+"/start", body, &resp); err != nil {
		return "", fmt.Errorf("start process %s: %w", definitionKey, err)
	}
	return resp.ID, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("engine returned %d: %s", resp.StatusCode, detail)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode engine response: %w", err)
		}
	}
	return nil
}
