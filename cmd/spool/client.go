package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// apiClient is a thin wrapper over the daemon's HTTP control API.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

type jobView struct {
	ID                int64      `json:"id"`
	ItemID            string     `json:"itemId"`
	Stage             string     `json:"stage"`
	FetchProgress     float64    `json:"fetchProgress"`
	TranscodeProgress float64    `json:"transcodeProgress"`
	DownloadedBytes   int64      `json:"downloadedBytes"`
	TotalBytes        int64      `json:"totalBytes"`
	Speed             float64    `json:"speed"`
	TryAfter          *time.Time `json:"tryAfter"`
	Result            string     `json:"result"`
	ErrorMessage      string     `json:"errorMessage"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

type healthView struct {
	Total    int `json:"Total"`
	Planned  int `json:"Planned"`
	Running  int `json:"Running"`
	Cooldown int `json:"Cooldown"`
	Done     int `json:"Done"`
	Failed   int `json:"Failed"`
}

type statusView struct {
	Paused   bool       `json:"paused"`
	AuthBusy bool       `json:"authBusy"`
	Queue    healthView `json:"queue"`
	Jobs     []jobView  `json:"jobs"`
}

type accountView struct {
	ID                string    `json:"id"`
	Country           string    `json:"country"`
	CredentialPresent bool      `json:"credentialPresent"`
	CreatedAt         time.Time `json:"createdAt"`
}

type enqueuePayload struct {
	ItemID     string `json:"itemId"`
	Title      string `json:"title"`
	AccountID  string `json:"accountId"`
	RuntimeSec int    `json:"runtimeSec"`
}

func (c *apiClient) Status() (*statusView, error) {
	var out statusView
	if err := c.do(http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Enqueue(req enqueuePayload) (*jobView, error) {
	var out jobView
	if err := c.do(http.MethodPost, "/api/queue", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) ListJobs() ([]jobView, error) {
	var out []jobView
	if err := c.do(http.MethodGet, "/api/queue", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) Dismiss(jobID int64) error {
	return c.do(http.MethodDelete, fmt.Sprintf("/api/queue/%d", jobID), nil, nil)
}

func (c *apiClient) Retry(jobID int64) error {
	return c.do(http.MethodPost, fmt.Sprintf("/api/queue/%d/retry", jobID), nil, nil)
}

func (c *apiClient) CancelItem(itemID string) (bool, error) {
	var out struct {
		Canceled bool `json:"canceled"`
	}
	err := c.do(http.MethodPost, "/api/items/"+itemID+"/cancel", nil, &out)
	return out.Canceled, err
}

func (c *apiClient) Pause() error {
	return c.do(http.MethodPost, "/api/scheduler/pause", nil, nil)
}

func (c *apiClient) Resume() error {
	return c.do(http.MethodPost, "/api/scheduler/resume", nil, nil)
}

func (c *apiClient) AuthBegin(account string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	err := c.do(http.MethodPost, "/api/auth", map[string]string{"account": account}, &out)
	return out.URL, err
}

func (c *apiClient) AuthComplete(url string) (string, error) {
	var out struct {
		AccountID string `json:"accountId"`
	}
	err := c.do(http.MethodPost, "/api/auth/response", map[string]string{"url": url}, &out)
	return out.AccountID, err
}

func (c *apiClient) AuthCancel() (bool, error) {
	var out struct {
		Canceled bool `json:"canceled"`
	}
	err := c.do(http.MethodDelete, "/api/auth", nil, &out)
	return out.Canceled, err
}

func (c *apiClient) Accounts() ([]accountView, error) {
	var out []accountView
	if err := c.do(http.MethodGet, "/api/accounts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect to daemon at %s: %w (is spoold running?)", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("%s", apiErr.Error)
	}
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = resp.Status
	}
	return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, msg)
}
