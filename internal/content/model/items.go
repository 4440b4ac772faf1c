package model

import (
	"encoding/json"
	"fmt"
)

const (
	SectionGallery   = "gallery"
	SectionTimeline  = "timeline"
	SectionSurprises = "surprises"
	SectionQuestions = "questions"

	ActionAdd    = "add"
	ActionUpdate = "update"
	ActionRemove = "remove"
)

// ItemEditRequest addresses one list item by position.
type ItemEditRequest struct {
	Section string          `json:"section"`
	Action  string          `json:"action"`
	Index   int             `json:"index"`
	Item    json.RawMessage `json:"item,omitempty"`
}

// ApplyItemEdit adds, updates or removes a list item in place. Add appends
// to the end of the list; update and remove need an existing index.
func (d *ContentDocument) ApplyItemEdit(req ItemEditRequest) error {
	var err error
	switch req.Section {
	case SectionGallery:
		d.Gallery, err = editList(d.Gallery, req)
	case SectionTimeline:
		d.Timeline, err = editList(d.Timeline, req)
	case SectionSurprises:
		d.Surprises, err = editList(d.Surprises, req)
	case SectionQuestions:
		d.Quiz.Questions, err = editList(d.Quiz.Questions, req)
		if err == nil {
			err = d.Validate()
		}
	default:
		return fmt.Errorf("%w: unknown section %q", ErrInvalidDocument, req.Section)
	}
	return err
}

func editList[T any](items []T, req ItemEditRequest) ([]T, error) {
	switch req.Action {
	case ActionAdd:
		item, err := decodeItem[T](req.Item)
		if err != nil {
			return items, err
		}
		return append(items, item), nil
	case ActionUpdate:
		if err := checkIndex(req.Index, len(items)); err != nil {
			return items, err
		}
		item, err := decodeItem[T](req.Item)
		if err != nil {
			return items, err
		}
		items[req.Index] = item
		return items, nil
	case ActionRemove:
		if err := checkIndex(req.Index, len(items)); err != nil {
			return items, err
		}
		return append(items[:req.Index], items[req.Index+1:]...), nil
	default:
		return items, fmt.Errorf("%w: unknown action %q", ErrInvalidDocument, req.Action)
	}
}

func decodeItem[T any](raw json.RawMessage) (T, error) {
	var item T
	if len(raw) == 0 || string(raw) == "null" {
		return item, fmt.Errorf("%w: item is required", ErrInvalidDocument)
	}
	if err := json.Unmarshal(raw, &item); err != nil {
		return item, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return item, nil
}

func checkIndex(i, n int) error {
	if i < 0 || i >= n {
		return fmt.Errorf("%w: index %d out of range [0,%d)", ErrInvalidDocument, i, n)
	}
	return nil
}
