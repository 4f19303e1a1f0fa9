// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/dumpvault/internal/backup"
	"github.com/tomtom215/dumpvault/internal/delivery"
	"github.com/tomtom215/dumpvault/internal/logging"
	"github.com/tomtom215/dumpvault/internal/store"
	"github.com/tomtom215/dumpvault/internal/validation"
)

// TriggerAPI names HTTP callers in logs and lifecycle events.
const TriggerAPI = "api"

// CreateBackupResponse is returned by POST /backups.
type CreateBackupResponse struct {
	Message  string               `json:"message"`
	File     string               `json:"file"`
	JobID    string               `json:"jobId"`
	Artifact *store.Artifact      `json:"artifact"`
	Stages   []backup.StageResult `json:"stages"`
	Delivery *delivery.Report     `json:"delivery,omitempty"`
}

// VerifyResponse is returned by GET /backups/{file}/verify.
type VerifyResponse struct {
	File    string             `json:"file"`
	IsValid bool               `json:"isValid"`
	Message string             `json:"message"`
	Status  store.VerifyStatus `json:"status"`
	SHA256  string             `json:"sha256,omitempty"`
	Entries int                `json:"entries"`
}

// CleanupResponse is returned by DELETE /backups/cleanup.
type CleanupResponse struct {
	Message string `json:"message"`
	*backup.CleanupResult
}

// DeliverResponse is returned by POST /backups/{file}/deliver.
type DeliverResponse struct {
	Message  string           `json:"message"`
	Delivery *delivery.Report `json:"delivery"`
}

// fileParam returns the validated {file} path parameter. On failure the
// error response has already been written.
func fileParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := chi.URLParam(r, "file")
	if verr := validation.ValidateVar("file", name, "required,artifact"); verr != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidFilename, verr.Error(), verr.Fields)
		return "", false
	}
	return name, true
}

// ListBackups handles GET /backups.
func (h *Handler) ListBackups(w http.ResponseWriter, r *http.Request) {
	artifacts, err := h.backups.List(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if artifacts == nil {
		artifacts = []*store.Artifact{}
	}
	respondJSON(w, http.StatusOK, artifacts)
}

// CreateBackup handles POST /backups. The pipeline runs synchronously; a
// concurrent job yields 409 without waiting.
func (h *Handler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	var req CreateBackupRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	opts := backup.PublishOptions{
		Compress: h.compressByDefault,
		Verify:   true,
		Trigger:  TriggerAPI,
	}
	if req.Compress != nil {
		opts.Compress = *req.Compress
	}
	if req.Verify != nil {
		opts.Verify = *req.Verify
	}
	opts.Recipients = req.Recipients
	if req.SendEmail && len(opts.Recipients) == 0 {
		if len(h.defaultRecipients) == 0 {
			respondErr(w, r, fmt.Errorf("sendEmail requested: %w", backup.ErrNoRecipients))
			return
		}
		opts.Recipients = h.defaultRecipients
	}

	res, err := h.backups.CreateAndPublish(r.Context(), opts)
	if err != nil {
		h.respondPipelineErr(w, r, res, err)
		return
	}

	respondJSON(w, http.StatusCreated, &CreateBackupResponse{
		Message:  "Backup created successfully",
		File:     res.Artifact.Filename,
		JobID:    res.JobID,
		Artifact: res.Artifact,
		Stages:   res.Stages,
		Delivery: res.Delivery,
	})
}

// respondPipelineErr reports a failed pipeline with its per-stage results so
// callers can see which stages completed before the failure. Only request
// errors and a busy job lock keep their own status; every other failure is a
// 500 whose code names the failing stage.
func (h *Handler) respondPipelineErr(w http.ResponseWriter, r *http.Request, res *backup.PublishResult, err error) {
	status, code := pipelineStatus(err)
	if status >= http.StatusInternalServerError {
		ev := logging.Ctx(r.Context()).Error().Err(err).Str("code", code)
		if res != nil {
			ev = ev.Str("job_id", res.JobID)
		}
		ev.Msg("Backup pipeline request failed")
	}
	if res == nil {
		respondError(w, r, status, code, err.Error(), errorDetails(err))
		return
	}
	respondError(w, r, status, code, err.Error(), res)
}

func pipelineStatus(err error) (int, string) {
	status, code := errorCode(err)
	switch status {
	case http.StatusBadRequest, http.StatusConflict:
		return status, code
	}
	return http.StatusInternalServerError, code
}

// GetBackup handles GET /backups/{file}.
func (h *Handler) GetBackup(w http.ResponseWriter, r *http.Request) {
	name, ok := fileParam(w, r)
	if !ok {
		return
	}
	a, err := h.backups.Get(r.Context(), name)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

// DeleteBackup handles DELETE /backups/{file}.
func (h *Handler) DeleteBackup(w http.ResponseWriter, r *http.Request) {
	name, ok := fileParam(w, r)
	if !ok {
		return
	}
	if err := h.backups.Delete(r.Context(), name); err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, &MessageResponse{Message: "Backup deleted: " + name})
}

// VerifyBackup handles GET /backups/{file}/verify. The outcome is recorded,
// so a later restore can rely on it.
func (h *Handler) VerifyBackup(w http.ResponseWriter, r *http.Request) {
	name, ok := fileParam(w, r)
	if !ok {
		return
	}
	a, err := h.backups.Get(r.Context(), name)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	res, err := h.backups.Verify(r.Context(), a)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, &VerifyResponse{
		File:    a.Filename,
		IsValid: res.Valid(),
		Message: res.Message,
		Status:  res.Status,
		SHA256:  res.SHA256,
		Entries: res.Entries,
	})
}

// RestoreBackup handles POST /backups/{file}/restore. An artifact that was
// never verified is verified first; only a valid one is restored.
func (h *Handler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	name, ok := fileParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	a, err := h.backups.Get(ctx, name)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	if a.Verified == store.VerifyUnknown {
		if _, err := h.backups.Verify(ctx, a); err != nil {
			respondErr(w, r, err)
			return
		}
	}

	if err := h.backups.RestoreFrom(ctx, a); err != nil {
		respondErr(w, r, err)
		return
	}

	h.logger.Info().
		Str("file", name).
		Str("request_id", logging.RequestIDFromContext(ctx)).
		Msg("Restore requested over HTTP completed")
	respondJSON(w, http.StatusOK, &MessageResponse{Message: "Database restored from " + name})
}

// DeliverBackup handles POST /backups/{file}/deliver.
func (h *Handler) DeliverBackup(w http.ResponseWriter, r *http.Request) {
	name, ok := fileParam(w, r)
	if !ok {
		return
	}
	var req DeliverRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	recipients := req.Recipients
	if len(recipients) == 0 {
		recipients = h.defaultRecipients
	}

	a, err := h.backups.Get(r.Context(), name)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	report, err := h.backups.Deliver(r.Context(), a, recipients)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, &DeliverResponse{
		Message:  fmt.Sprintf("Delivered %s to %d recipients", name, report.Successful),
		Delivery: report,
	})
}

// CleanupBackups handles DELETE /backups/cleanup.
func (h *Handler) CleanupBackups(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	maxAge := h.backups.DefaultMaxAgeDays()
	if req.MaxAge != nil {
		maxAge = *req.MaxAge
	}

	res, err := h.backups.Cleanup(r.Context(), maxAge)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, &CleanupResponse{
		Message:       fmt.Sprintf("Removed %d backups older than %d days", res.Removed, maxAge),
		CleanupResult: res,
	})
}

// RetentionPreview handles GET /backups/retention/preview?maxAge=N.
func (h *Handler) RetentionPreview(w http.ResponseWriter, r *http.Request) {
	maxAge, err := queryMaxAge(r, h.backups.DefaultMaxAgeDays())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	preview, err := h.backups.RetentionPreview(r.Context(), maxAge)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, preview)
}

// DownloadBackup handles GET /backups/{file}/download. The artifact stays
// pinned against cleanup until the response has been written.
func (h *Handler) DownloadBackup(w http.ResponseWriter, r *http.Request) {
	// A name the store could never hold is simply not there.
	name := chi.URLParam(r, "file")
	if !store.ValidFilename(name) {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "backup not found", nil)
		return
	}
	f, a, release, err := h.backups.Open(r.Context(), name)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	defer release()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Filename))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, a.Filename, a.CreatedAt, f)
}
