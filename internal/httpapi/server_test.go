package httpapi_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"spool/internal/authflow"
	"spool/internal/bus"
	"spool/internal/httpapi"
	"spool/internal/logging"
	"spool/internal/outcome"
	"spool/internal/testsupport"
)

type fakeQueueCtl struct {
	mu       sync.Mutex
	paused   bool
	runs     int
	canceled []string
}

func (f *fakeQueueCtl) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = true
}

func (f *fakeQueueCtl) Resume(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = false
}

func (f *fakeQueueCtl) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakeQueueCtl) Cancel(itemID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, itemID)
	return true
}

func (f *fakeQueueCtl) RunOnce(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
}

func (f *fakeQueueCtl) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

type fakeAuthCtl struct {
	beginURL    string
	beginErr    error
	completeID  string
	completeErr error
	locked      bool
	cancels     int
}

func (f *fakeAuthCtl) Begin(context.Context, string) (string, error) {
	return f.beginURL, f.beginErr
}

func (f *fakeAuthCtl) Complete(context.Context, string) (string, error) {
	return f.completeID, f.completeErr
}

func (f *fakeAuthCtl) Cancel() bool {
	f.cancels++
	return true
}

func (f *fakeAuthCtl) Locked() bool { return f.locked }

func newFixture(t *testing.T, authCtl *fakeAuthCtl) (*httptest.Server, *fakeQueueCtl, *bus.Bus, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	eventBus := bus.New(logging.NewNop())
	queueCtl := &fakeQueueCtl{}
	if authCtl == nil {
		authCtl = &fakeAuthCtl{}
	}

	account := testsupport.SeedAccount(t, store, "primary")
	testsupport.SeedItem(t, store, account.ID, "B00ITEM01")

	api := httpapi.New(cfg, store, eventBus, queueCtl, authCtl, logging.NewNop())
	server := httptest.NewServer(api.Routes())
	t.Cleanup(server.Close)
	return server, queueCtl, eventBus, account.ID
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func TestEnqueueCreatesJobThenConflicts(t *testing.T) {
	server, queueCtl, _, accountID := newFixture(t, nil)

	req := map[string]any{
		"itemId":     "B00ITEM01",
		"title":      "Test Title",
		"accountId":  accountID,
		"runtimeSec": 7200,
	}
	resp := postJSON(t, server.URL+"/api/queue/", req)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var job struct {
		ID     int64  `json:"id"`
		ItemID string `json:"itemId"`
		Stage  string `json:"stage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.ItemID != "B00ITEM01" || job.Stage != "planned" {
		t.Errorf("job = %+v", job)
	}
	if queueCtl.runCount() != 1 {
		t.Errorf("RunOnce calls = %d, want 1", queueCtl.runCount())
	}

	dup := postJSON(t, server.URL+"/api/queue/", req)
	defer dup.Body.Close()
	if dup.StatusCode != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", dup.StatusCode)
	}
}

func TestEnqueueUnknownAccount(t *testing.T) {
	server, _, _, _ := newFixture(t, nil)

	resp := postJSON(t, server.URL+"/api/queue/", map[string]any{
		"itemId":    "B00OTHER",
		"accountId": "ghost",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDismissAndRetryLifecycle(t *testing.T) {
	server, _, _, accountID := newFixture(t, nil)

	resp := postJSON(t, server.URL+"/api/queue/", map[string]any{
		"itemId":    "B00ITEM01",
		"accountId": accountID,
	})
	var job struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	resp.Body.Close()

	retry := postJSON(t, fmt.Sprintf("%s/api/queue/%d/retry", server.URL, job.ID), nil)
	retry.Body.Close()
	if retry.StatusCode != http.StatusNotFound {
		t.Errorf("retry of active job = %d, want 404", retry.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/queue/%d/", server.URL, job.ID), nil)
	del, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	del.Body.Close()
	if del.StatusCode != http.StatusNoContent {
		t.Errorf("dismiss = %d, want 204", del.StatusCode)
	}

	again, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete again: %v", err)
	}
	again.Body.Close()
	if again.StatusCode != http.StatusNotFound {
		t.Errorf("second dismiss = %d, want 404", again.StatusCode)
	}
}

func TestPauseResumeAndStatus(t *testing.T) {
	server, queueCtl, _, _ := newFixture(t, nil)

	resp := postJSON(t, server.URL+"/api/scheduler/pause", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("pause = %d", resp.StatusCode)
	}
	if !queueCtl.Paused() {
		t.Fatal("controller not paused")
	}

	status, err := http.Get(server.URL + "/api/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	defer status.Body.Close()
	var body struct {
		Paused bool `json:"paused"`
	}
	if err := json.NewDecoder(status.Body).Decode(&body); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !body.Paused {
		t.Error("status does not report paused")
	}

	resume := postJSON(t, server.URL+"/api/scheduler/resume", nil)
	resume.Body.Close()
	if queueCtl.Paused() {
		t.Error("controller still paused after resume")
	}
}

func TestCancelItemDelegates(t *testing.T) {
	server, queueCtl, _, _ := newFixture(t, nil)

	resp := postJSON(t, server.URL+"/api/items/B00ITEM01/cancel", nil)
	defer resp.Body.Close()
	var body struct {
		Canceled bool `json:"canceled"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Canceled {
		t.Error("cancel not acknowledged")
	}
	queueCtl.mu.Lock()
	defer queueCtl.mu.Unlock()
	if len(queueCtl.canceled) != 1 || queueCtl.canceled[0] != "B00ITEM01" {
		t.Errorf("canceled = %v", queueCtl.canceled)
	}
}

func TestAuthBeginReturnsURLAndBusyConflicts(t *testing.T) {
	authCtl := &fakeAuthCtl{beginURL: "https://example.com/login"}
	server, _, _, _ := newFixture(t, authCtl)

	resp := postJSON(t, server.URL+"/api/auth/", map[string]string{"account": "primary"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["url"] != "https://example.com/login" {
		t.Errorf("url = %q", body["url"])
	}

	authCtl.beginErr = authflow.ErrBusy
	busy := postJSON(t, server.URL+"/api/auth/", map[string]string{"account": "second"})
	busy.Body.Close()
	if busy.StatusCode != http.StatusConflict {
		t.Errorf("busy status = %d, want 409", busy.StatusCode)
	}
}

func TestAuthCompleteErrorMapping(t *testing.T) {
	authCtl := &fakeAuthCtl{
		completeErr: outcome.Wrap(outcome.KindAlreadyExists, "auth", "verify", "primary", nil),
	}
	server, _, _, _ := newFixture(t, authCtl)

	resp := postJSON(t, server.URL+"/api/auth/response", map[string]string{"url": "https://example.com/cb"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("already-exists status = %d, want 409", resp.StatusCode)
	}

	authCtl.completeErr = authflow.ErrNotPending
	pending := postJSON(t, server.URL+"/api/auth/response", map[string]string{"url": "https://example.com/cb"})
	pending.Body.Close()
	if pending.StatusCode != http.StatusConflict {
		t.Errorf("not-pending status = %d, want 409", pending.StatusCode)
	}
}

func TestEventStreamDeliversFrames(t *testing.T) {
	server, _, eventBus, _ := newFixture(t, nil)

	resp, err := http.Get(server.URL + "/api/events?channel=queue")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for eventBus.SubscriberCount("queue") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	corr := bus.NewCorrelationID()
	eventBus.Publish(bus.ChannelQueue, corr, bus.EventJobState, map[string]any{"jobId": 7, "state": "running"})

	reader := bufio.NewReader(resp.Body)
	var frame []string
	for len(frame) < 3 {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if line != "" {
			frame = append(frame, line)
		}
	}
	if frame[0] != "id: "+corr {
		t.Errorf("id line = %q", frame[0])
	}
	if frame[1] != "event: "+bus.EventJobState {
		t.Errorf("event line = %q", frame[1])
	}
	if !strings.HasPrefix(frame[2], "data: ") || !strings.Contains(frame[2], `"state":"running"`) {
		t.Errorf("data line = %q", frame[2])
	}
}

func TestEventStreamRejectsUnknownChannel(t *testing.T) {
	server, _, _, _ := newFixture(t, nil)

	resp, err := http.Get(server.URL + "/api/events?channel=sideband")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
