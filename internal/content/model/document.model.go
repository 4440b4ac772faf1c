package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ExportFilename is the download name used for exported documents.
const ExportFilename = "birthday-website-data.json"

var ErrInvalidDocument = errors.New("invalid content document")

// requiredSections must be present in any parsed document.
var requiredSections = []string{"personal", "hero", "message", "quiz"}

type Personal struct {
	RecipientName     string `json:"girlfriendName"`
	AuthorName        string `json:"yourName"`
	RelationshipStart string `json:"relationshipStart"`
	SpecialEventDate  string `json:"specialEventDate"`
	WebsiteTitle      string `json:"websiteTitle"`
}

type Hero struct {
	Greeting            string `json:"greeting"`
	Subtitle            string `json:"subtitle"`
	PrimaryButtonText   string `json:"primaryButtonText"`
	SecondaryButtonText string `json:"secondaryButtonText"`
}

type Message struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type GalleryItem struct {
	Image   string `json:"image"`
	Caption string `json:"caption"`
	Date    string `json:"date"`
}

type TimelineEntry struct {
	Date        string `json:"date"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type Countdown struct {
	Title     string `json:"title"`
	Subtitle  string `json:"subtitle"`
	EventName string `json:"eventName,omitempty"`
}

type Surprise struct {
	Icon    string `json:"icon"`
	Title   string `json:"title"`
	Hint    string `json:"hint"`
	Content string `json:"content"`
}

type Question struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Correct  int      `json:"correct"`
}

type CompletionMessage struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

type Quiz struct {
	Title             string            `json:"title"`
	Subtitle          string            `json:"subtitle"`
	Questions         []Question        `json:"questions"`
	CompletionMessage CompletionMessage `json:"completionMessage"`
}

type Theme struct {
	PrimaryColor   string `json:"primaryColor"`
	SecondaryColor string `json:"secondaryColor"`
	AccentColor    string `json:"accentColor"`
}

// ContentDocument is the whole editable content of the site.
type ContentDocument struct {
	Personal  Personal        `json:"personal"`
	Hero      Hero            `json:"hero"`
	Message   Message         `json:"message"`
	Gallery   []GalleryItem   `json:"gallery"`
	Timeline  []TimelineEntry `json:"timeline"`
	Countdown Countdown       `json:"countdown"`
	Surprises []Surprise      `json:"surprises"`
	Quiz      Quiz            `json:"quiz"`
	Theme     Theme           `json:"theme"`
}

// Clone returns a deep copy. Lists are copied even when empty so the copy never
// shares a backing array with the receiver.
func (d *ContentDocument) Clone() *ContentDocument {
	c := *d
	c.Gallery = append([]GalleryItem{}, d.Gallery...)
	c.Timeline = append([]TimelineEntry{}, d.Timeline...)
	c.Surprises = append([]Surprise{}, d.Surprises...)
	c.Quiz.Questions = make([]Question, len(d.Quiz.Questions))
	for i, q := range d.Quiz.Questions {
		q.Options = append([]string{}, q.Options...)
		c.Quiz.Questions[i] = q
	}
	return &c
}

// Validate checks the quiz answer indexes.
func (d *ContentDocument) Validate() error {
	for i, q := range d.Quiz.Questions {
		if err := q.validate(); err != nil {
			return fmt.Errorf("%w: question %d: %v", ErrInvalidDocument, i, err)
		}
	}
	return nil
}

func (q Question) validate() error {
	if len(q.Options) == 0 {
		return errors.New("no options")
	}
	if q.Correct < 0 || q.Correct >= len(q.Options) {
		return fmt.Errorf("correct index %d out of range [0,%d)", q.Correct, len(q.Options))
	}
	return nil
}

// Parse decodes a serialized document. It fails, without returning a partial
// document, when the input is not JSON, misses a required section or breaks
// the quiz invariant.
func Parse(data []byte) (*ContentDocument, error) {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	for _, name := range requiredSections {
		raw, ok := sections[name]
		if !ok || string(raw) == "null" {
			return nil, fmt.Errorf("%w: missing %q section", ErrInvalidDocument, name)
		}
	}

	var doc ContentDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	normalize(&doc)
	return &doc, nil
}

// Export serializes the document pretty-printed with two-space indentation.
func (d *ContentDocument) Export() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// normalize replaces nil lists with empty ones so documents that went through
// a JSON null compare equal to ones that did not.
func normalize(d *ContentDocument) {
	if d.Gallery == nil {
		d.Gallery = []GalleryItem{}
	}
	if d.Timeline == nil {
		d.Timeline = []TimelineEntry{}
	}
	if d.Surprises == nil {
		d.Surprises = []Surprise{}
	}
	if d.Quiz.Questions == nil {
		d.Quiz.Questions = []Question{}
	}
	for i := range d.Quiz.Questions {
		if d.Quiz.Questions[i].Options == nil {
			d.Quiz.Questions[i].Options = []string{}
		}
	}
}
