package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"spool/internal/authflow"
	"spool/internal/logging"
	"spool/internal/outcome"
	"spool/internal/queue"
)

type errorResponse struct {
	Error string `json:"error"`
}

type jobResponse struct {
	ID                int64      `json:"id"`
	ItemID            string     `json:"itemId"`
	Stage             string     `json:"stage"`
	FetchProgress     float64    `json:"fetchProgress"`
	TranscodeProgress float64    `json:"transcodeProgress"`
	DownloadedBytes   int64      `json:"downloadedBytes,omitempty"`
	TotalBytes        int64      `json:"totalBytes,omitempty"`
	Speed             float64    `json:"speed,omitempty"`
	TryAfter          *time.Time `json:"tryAfter,omitempty"`
	Result            string     `json:"result,omitempty"`
	ErrorMessage      string     `json:"errorMessage,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func renderJob(job *queue.Job) jobResponse {
	resp := jobResponse{
		ID:                job.ID,
		ItemID:            job.ItemID,
		Stage:             job.StageKey(),
		FetchProgress:     job.FetchProgress,
		TranscodeProgress: job.TranscodeProgress,
		DownloadedBytes:   job.DownloadedBytes,
		TotalBytes:        job.TotalBytes,
		Speed:             job.Speed,
		TryAfter:          job.TryAfter,
		ErrorMessage:      job.ErrorMessage,
		CreatedAt:         job.CreatedAt,
		UpdatedAt:         job.UpdatedAt,
	}
	if job.Done {
		resp.Result = string(job.Result)
	}
	return resp
}

type accountResponse struct {
	ID                string    `json:"id"`
	Country           string    `json:"country"`
	CredentialPresent bool      `json:"credentialPresent"`
	CreatedAt         time.Time `json:"createdAt"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

func (s *Server) jobIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "jobID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return 0, false
	}
	return id, true
}

type enqueueRequest struct {
	ItemID     string `json:"itemId"`
	Title      string `json:"title"`
	AccountID  string `json:"accountId"`
	RuntimeSec int    `json:"runtimeSec"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.ItemID = strings.TrimSpace(req.ItemID)
	req.AccountID = strings.TrimSpace(req.AccountID)
	if req.ItemID == "" || req.AccountID == "" {
		s.writeError(w, http.StatusBadRequest, "itemId and accountId are required")
		return
	}

	ctx := r.Context()
	account, err := s.store.GetAccount(ctx, req.AccountID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if account == nil {
		s.writeError(w, http.StatusNotFound, "unknown account")
		return
	}

	item := &queue.Item{
		ID:         req.ItemID,
		Title:      req.Title,
		AccountID:  req.AccountID,
		RuntimeSec: req.RuntimeSec,
	}
	if err := s.store.UpsertItem(ctx, item); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	job, err := s.store.Enqueue(ctx, req.ItemID)
	switch {
	case errors.Is(err, queue.ErrAlreadyQueued):
		s.writeError(w, http.StatusConflict, "item already queued")
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.queue.RunOnce(ctx)
	s.writeJSON(w, http.StatusCreated, renderJob(job))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.ListJobs(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]jobResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, renderJob(job))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobIDParam(w, r)
	if !ok {
		return
	}
	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, renderJob(job))
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobIDParam(w, r)
	if !ok {
		return
	}
	removed, err := s.store.Dismiss(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		s.writeError(w, http.StatusNotFound, "no dismissable job")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobIDParam(w, r)
	if !ok {
		return
	}
	retried, err := s.store.Retry(r.Context(), id)
	switch {
	case errors.Is(err, queue.ErrAlreadyQueued):
		s.writeError(w, http.StatusConflict, "item already queued")
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	case !retried:
		s.writeError(w, http.StatusNotFound, "no finished job to retry")
		return
	}

	s.queue.RunOnce(r.Context())
	job, err := s.store.GetJob(r.Context(), id)
	if err != nil || job == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, renderJob(job))
}

func (s *Server) handleCancelItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	canceled := s.queue.Cancel(itemID)
	s.writeJSON(w, http.StatusOK, map[string]bool{"canceled": canceled})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.queue.Pause()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.queue.Resume(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

type statusResponse struct {
	Paused   bool                `json:"paused"`
	AuthBusy bool                `json:"authBusy"`
	Queue    queue.HealthSummary `json:"queue"`
	Jobs     []jobResponse       `json:"jobs"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	health, err := s.store.Health(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jobs, err := s.store.ListJobs(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := statusResponse{
		Paused:   s.queue.Paused(),
		AuthBusy: s.auth.Locked(),
		Queue:    health,
		Jobs:     make([]jobResponse, 0, len(jobs)),
	}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, renderJob(job))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListAccounts(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, account := range accounts {
		out = append(out, accountResponse{
			ID:                account.ID,
			Country:           account.Country,
			CredentialPresent: account.CredentialPresent,
			CreatedAt:         account.CreatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

type authBeginRequest struct {
	Account string `json:"account"`
}

func (s *Server) handleAuthBegin(w http.ResponseWriter, r *http.Request) {
	var req authBeginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Account = strings.TrimSpace(req.Account)
	if req.Account == "" {
		s.writeError(w, http.StatusBadRequest, "account is required")
		return
	}

	url, err := s.auth.Begin(r.Context(), req.Account)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

type authResponseRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleAuthComplete(w http.ResponseWriter, r *http.Request) {
	var req authResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	accountID, err := s.auth.Complete(r.Context(), req.URL)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"accountId": accountID})
}

func (s *Server) handleAuthCancel(w http.ResponseWriter, r *http.Request) {
	canceled := s.auth.Cancel()
	s.writeJSON(w, http.StatusOK, map[string]bool{"canceled": canceled})
}

func (s *Server) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authflow.ErrBusy):
		s.writeError(w, http.StatusConflict, "authorization already in progress")
	case errors.Is(err, authflow.ErrNotPending):
		s.writeError(w, http.StatusConflict, "no authorization awaiting a response")
	case errors.Is(err, authflow.ErrInvalidURL):
		s.writeError(w, http.StatusBadRequest, "invalid login url")
	case outcome.KindOf(err) == outcome.KindAlreadyExists:
		s.writeError(w, http.StatusConflict, "account already exists")
	case outcome.KindOf(err) == outcome.KindTimeout:
		s.writeError(w, http.StatusGatewayTimeout, "authorization timed out")
	default:
		s.writeError(w, http.StatusBadGateway, err.Error())
	}
}
