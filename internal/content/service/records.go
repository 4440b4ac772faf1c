package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"birthdaysite/internal/content/repository"
	"birthdaysite/internal/offline"
	"birthdaysite/internal/quiz"
	"birthdaysite/pkg/logger"
)

var ErrIndexOutOfRange = errors.New("index out of range")

// QuizAttempt is one entry of the quiz log. ID is the key the remote store
// generated for it and is only set when reading the log back.
type QuizAttempt struct {
	ID             string `json:"id,omitempty"`
	Score          int    `json:"score"`
	TotalQuestions int    `json:"totalQuestions"`
	Percentage     int    `json:"percentage"`
	Timestamp      int64  `json:"timestamp"`
}

type galleryView struct {
	ImageIndex int    `json:"imageIndex"`
	Caption    string `json:"caption"`
	Timestamp  int64  `json:"timestamp"`
}

type surpriseReveal struct {
	SurpriseIndex int    `json:"surpriseIndex"`
	Title         string `json:"title"`
	Timestamp     int64  `json:"timestamp"`
}

// RecordQuizAttempt scores answers against the current quiz and appends the
// result to the quiz log. The attempt never touches the working copy.
func (s *Session) RecordQuizAttempt(ctx context.Context, answers []int) (quiz.Result, error) {
	doc, _ := s.Document()
	res, err := quiz.Score(doc.Quiz.Questions, answers)
	if err != nil {
		return quiz.Result{}, err
	}
	s.appendLog(ctx, repository.PathQuizResults, QuizAttempt{
		Score:          res.Score,
		TotalQuestions: res.Total,
		Percentage:     res.Percentage,
		Timestamp:      s.now().UnixMilli(),
	})
	return res, nil
}

// QuizResults lists the recorded quiz attempts, most recent first. It reads
// the log only; the working copy is never touched.
func (s *Session) QuizResults(ctx context.Context) ([]QuizAttempt, error) {
	if s.remote == nil {
		return nil, ErrNoRemote
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.RemoteTimeout)
	defer cancel()

	children, err := s.remote.Children(ctx, repository.PathQuizResults)
	s.markRemote(ctx, err)
	if err != nil {
		return nil, err
	}
	attempts := make([]QuizAttempt, 0, len(children))
	for key, raw := range children {
		var a QuizAttempt
		if err := json.Unmarshal(raw, &a); err != nil {
			logger.Sugar.Warnf("Skipping unreadable quiz result %s: %v", key, err)
			continue
		}
		a.ID = key
		attempts = append(attempts, a)
	}
	sort.Slice(attempts, func(i, j int) bool {
		if attempts[i].Timestamp != attempts[j].Timestamp {
			return attempts[i].Timestamp > attempts[j].Timestamp
		}
		return attempts[i].ID < attempts[j].ID
	})
	return attempts, nil
}

func (s *Session) RecordGalleryView(ctx context.Context, index int) error {
	doc, _ := s.Document()
	if index < 0 || index >= len(doc.Gallery) {
		return fmt.Errorf("gallery item %d: %w", index, ErrIndexOutOfRange)
	}
	s.appendLog(ctx, repository.PathGalleryInteractions, galleryView{
		ImageIndex: index,
		Caption:    doc.Gallery[index].Caption,
		Timestamp:  s.now().UnixMilli(),
	})
	return nil
}

func (s *Session) RecordSurpriseReveal(ctx context.Context, index int) error {
	doc, _ := s.Document()
	if index < 0 || index >= len(doc.Surprises) {
		return fmt.Errorf("surprise %d: %w", index, ErrIndexOutOfRange)
	}
	s.appendLog(ctx, repository.PathSurpriseInteractions, surpriseReveal{
		SurpriseIndex: index,
		Title:         doc.Surprises[index].Title,
		Timestamp:     s.now().UnixMilli(),
	})
	return nil
}

// appendLog pushes value to an append-only log, queueing it for the next
// offline sync when the remote store cannot take it.
func (s *Session) appendLog(ctx context.Context, path string, value any) {
	if s.remote != nil {
		rctx, cancel := context.WithTimeout(ctx, s.opts.RemoteTimeout)
		_, err := s.remote.Push(rctx, path, value)
		s.markRemote(rctx, err)
		cancel()
		if err == nil {
			return
		}
		logger.Sugar.Warnf("Push to %s failed, queueing offline: %v", path, err)
	}
	s.queueAction(ctx, offline.KindPush, path, value)
}

func (s *Session) queueAction(ctx context.Context, kind, path string, value any) {
	if s.queue == nil {
		logger.Sugar.Warnf("No offline queue, dropping write to %s", path)
		return
	}
	if err := s.queue.Record(ctx, kind, path, value); err != nil {
		logger.Sugar.Errorf("Failed to queue offline action for %s: %v", path, err)
	}
}

// IncrementVisitors atomically bumps the visitor counter.
func (s *Session) IncrementVisitors(ctx context.Context) (int64, error) {
	if s.remote == nil {
		return 0, ErrNoRemote
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.RemoteTimeout)
	defer cancel()

	raw, err := s.remote.Transaction(ctx, repository.PathVisitorCount, func(current json.RawMessage) (any, error) {
		var n int64
		if current != nil {
			if err := json.Unmarshal(current, &n); err != nil {
				return nil, fmt.Errorf("visitor count: %w", err)
			}
		}
		return n + 1, nil
	})
	s.markRemote(ctx, err)
	if err != nil {
		return 0, err
	}
	var n int64
	err = json.Unmarshal(raw, &n)
	return n, err
}

func (s *Session) VisitorCount(ctx context.Context) (int64, error) {
	if s.remote == nil {
		return 0, ErrNoRemote
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.RemoteTimeout)
	defer cancel()

	raw, _, err := s.remote.Get(ctx, repository.PathVisitorCount)
	s.markRemote(ctx, err)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n int64
	err = json.Unmarshal(raw, &n)
	return n, err
}
