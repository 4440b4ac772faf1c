package model

import "time"

const (
	SeveritySuccess = "success"
	SeverityInfo    = "info"
	SeverityError   = "error"

	// StatusDismissAfter is how long the page shows a status banner.
	StatusDismissAfter = 3 * time.Second
)

// Status is the transient banner returned by API mutations.
type Status struct {
	Severity       string `json:"severity"`
	Message        string `json:"message"`
	DismissAfterMs int64  `json:"dismissAfterMs"`
}

func NewStatus(severity, message string) Status {
	return Status{Severity: severity, Message: message, DismissAfterMs: StatusDismissAfter.Milliseconds()}
}

type QuizSubmitRequest struct {
	Answers []int `json:"answers"`
}

type QuizSubmitResponse struct {
	Score      int    `json:"score"`
	Total      int    `json:"totalQuestions"`
	Percentage int    `json:"percentage"`
	Title      string `json:"title"`
	Message    string `json:"message"`
}

type GalleryViewRequest struct {
	ImageIndex int `json:"imageIndex"`
}

type SurpriseRevealRequest struct {
	SurpriseIndex int `json:"surpriseIndex"`
}

type VisitorResponse struct {
	Count int64 `json:"visitorCount"`
}

type CacheURLsRequest struct {
	URLs []string `json:"urls"`
}
