package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"birthdaysite/internal/content/model"
	"birthdaysite/internal/content/service"
	"birthdaysite/internal/quiz"
	"birthdaysite/pkg/logger"
)

const maxBodyBytes = 10 << 20

// CacheController is the part of the offline proxy the API drives.
type CacheController interface {
	CacheURLs(ctx context.Context, urls []string) error
	SyncOfflineActions(ctx context.Context) error
}

type ContentHandler struct {
	Session *service.Session
	Cache   CacheController
}

func NewContentHandler(session *service.Session, cache CacheController) *ContentHandler {
	return &ContentHandler{Session: session, Cache: cache}
}

// GetContent returns the working copy, refreshing it first when stale.
func (h *ContentHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	doc := h.Session.Current(r.Context())
	_, source := h.Session.Document()
	w.Header().Set("X-Content-Source", string(source))
	writeJSON(w, http.StatusOK, doc)
}

func (h *ContentHandler) SaveContent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	doc, err := model.Parse(body)
	if err != nil {
		writeStatus(w, http.StatusBadRequest, model.SeverityError, "Invalid content: "+err.Error())
		return
	}
	if err := h.Session.Commit(r.Context(), doc); err != nil {
		h.commitFailed(w, err)
		return
	}
	writeStatus(w, http.StatusOK, model.SeveritySuccess, "All changes saved successfully!")
}

// EditItem adds, updates or removes one entry of a content list.
func (h *ContentHandler) EditItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req model.ItemEditRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	err := h.Session.Edit(r.Context(), func(doc *model.ContentDocument) error {
		return doc.ApplyItemEdit(req)
	})
	if errors.Is(err, model.ErrInvalidDocument) {
		writeStatus(w, http.StatusBadRequest, model.SeverityError, err.Error())
		return
	}
	if err != nil {
		h.commitFailed(w, err)
		return
	}
	writeStatus(w, http.StatusOK, model.SeveritySuccess, "All changes saved successfully!")
}

func (h *ContentHandler) ExportContent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	data, err := h.Session.Export()
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to export content: %v", err)
		http.Error(w, "Failed to export content", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+model.ExportFilename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *ContentHandler) ImportContent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err = h.Session.Import(r.Context(), body)
	var importErr *service.ImportError
	if errors.As(err, &importErr) {
		logger.Sugar.Warnf("Handler: Rejected import: %v", err)
		writeStatus(w, http.StatusBadRequest, model.SeverityError, "Error importing data. Please check the file format.")
		return
	}
	if err != nil {
		h.commitFailed(w, err)
		return
	}
	writeStatus(w, http.StatusOK, model.SeveritySuccess, "Data imported successfully!")
}

func (h *ContentHandler) RefreshContent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	changed, err := h.Session.Refresh(r.Context())
	switch {
	case errors.Is(err, service.ErrNoRemote):
		writeStatus(w, http.StatusServiceUnavailable, model.SeverityInfo, "No remote store configured")
	case err != nil:
		writeStatus(w, http.StatusBadGateway, model.SeverityError, "Error loading data from remote store: "+err.Error())
	case changed:
		writeStatus(w, http.StatusOK, model.SeveritySuccess, "Data loaded from remote store successfully!")
	default:
		writeStatus(w, http.StatusOK, model.SeverityInfo, "Content is already up to date")
	}
}

func (h *ContentHandler) SubmitQuiz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req model.QuizSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.Session.RecordQuizAttempt(r.Context(), req.Answers)
	if err != nil {
		if errors.Is(err, quiz.ErrInvalidAnswers) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Sugar.Errorf("Handler: Failed to record quiz attempt: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	doc, _ := h.Session.Document()
	writeJSON(w, http.StatusOK, model.QuizSubmitResponse{
		Score:      res.Score,
		Total:      res.Total,
		Percentage: res.Percentage,
		Title:      doc.Quiz.CompletionMessage.Title,
		Message:    doc.Quiz.CompletionMessage.Message,
	})
}

// QuizResults lists recorded quiz attempts, most recent first.
func (h *ContentHandler) QuizResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	results, err := h.Session.QuizResults(r.Context())
	if errors.Is(err, service.ErrNoRemote) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to read quiz results: %v", err)
		http.Error(w, "Quiz results unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *ContentHandler) RecordGalleryView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req model.GalleryViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	h.interactionRecorded(w, h.Session.RecordGalleryView(r.Context(), req.ImageIndex))
}

func (h *ContentHandler) RecordSurpriseReveal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req model.SurpriseRevealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	h.interactionRecorded(w, h.Session.RecordSurpriseReveal(r.Context(), req.SurpriseIndex))
}

func (h *ContentHandler) interactionRecorded(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrIndexOutOfRange) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to record interaction: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Visitors counts a visit on POST and reads the counter on GET.
func (h *ContentHandler) Visitors(w http.ResponseWriter, r *http.Request) {
	var (
		n   int64
		err error
	)
	switch r.Method {
	case http.MethodGet:
		n, err = h.Session.VisitorCount(r.Context())
	case http.MethodPost:
		n, err = h.Session.IncrementVisitors(r.Context())
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if errors.Is(err, service.ErrNoRemote) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		logger.Sugar.Errorf("Handler: Visitor counter failed: %v", err)
		http.Error(w, "Visitor counter unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, model.VisitorResponse{Count: n})
}

func (h *ContentHandler) CacheURLs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req model.CacheURLsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.URLs) == 0 {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.Cache.CacheURLs(r.Context(), req.URLs); err != nil {
		logger.Sugar.Warnf("Handler: Some URLs were not cached: %v", err)
		writeStatus(w, http.StatusBadGateway, model.SeverityError, err.Error())
		return
	}
	writeStatus(w, http.StatusOK, model.SeveritySuccess, "URLs cached for offline use")
}

func (h *ContentHandler) SyncOffline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.Cache.SyncOfflineActions(r.Context()); err != nil {
		writeStatus(w, http.StatusBadGateway, model.SeverityError, err.Error())
		return
	}
	writeStatus(w, http.StatusOK, model.SeveritySuccess, "Offline actions synced")
}

// commitFailed reports a write that reached memory but not every tier.
func (h *ContentHandler) commitFailed(w http.ResponseWriter, err error) {
	var commitErr *service.CommitError
	if !errors.As(err, &commitErr) {
		if errors.Is(err, model.ErrInvalidDocument) {
			writeStatus(w, http.StatusBadRequest, model.SeverityError, "Invalid content: "+err.Error())
			return
		}
		logger.Sugar.Errorf("Handler: Failed to save content: %v", err)
		writeStatus(w, http.StatusInternalServerError, model.SeverityError, err.Error())
		return
	}
	if commitErr.RemoteErr != nil {
		writeStatus(w, http.StatusBadGateway, model.SeverityError, "Error saving to remote store: "+commitErr.RemoteErr.Error())
		return
	}
	writeStatus(w, http.StatusInternalServerError, model.SeverityError, "Error saving data to local storage.")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Sugar.Errorf("Handler: Failed to encode response: %v", err)
	}
}

func writeStatus(w http.ResponseWriter, code int, severity, message string) {
	writeJSON(w, code, model.NewStatus(severity, message))
}
