package service

import (
	"context"
	"time"

	"birthdaysite/pkg/logger"
)

// SetVisible records whether any page showing the site is visible. Periodic
// refresh only runs while visible; a refresh skipped while hidden runs as
// soon as a page becomes visible again.
func (s *Session) SetVisible(visible bool) {
	s.visibleMu.Lock()
	becameVisible := visible && !s.visible
	s.visible = visible
	s.visibleMu.Unlock()

	if becameVisible {
		select {
		case s.resumed <- struct{}{}:
		default:
		}
	}
}

func (s *Session) Visible() bool {
	s.visibleMu.Lock()
	defer s.visibleMu.Unlock()
	return s.visible
}

// Run refreshes the working copy from the remote store every refresh
// interval until ctx is done.
func (s *Session) Run(ctx context.Context) {
	if s.remote == nil {
		return
	}
	ticker := time.NewTicker(s.opts.RefreshInterval)
	defer ticker.Stop()

	logger.Sugar.Infof("Content refresh every %s while visible", s.opts.RefreshInterval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.visibleMu.Lock()
			visible := s.visible
			if !visible {
				s.missed = true
			}
			s.visibleMu.Unlock()
			if visible {
				s.refreshLogged(ctx)
			}
		case <-s.resumed:
			s.visibleMu.Lock()
			missed := s.missed
			s.missed = false
			s.visibleMu.Unlock()
			if missed {
				s.refreshLogged(ctx)
			}
		}
	}
}

func (s *Session) refreshLogged(ctx context.Context) {
	if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
		logger.Sugar.Errorf("Error refreshing data: %v", err)
	}
}
