package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"birthdaysite/pkg/logger"
)

// FirebaseStore talks to a Firebase Realtime Database through its REST API.
type FirebaseStore struct {
	BaseURL string // e.g. https://project-default-rtdb.firebaseio.com
	Auth    string // database secret or ID token, sent as the auth query parameter
	Client  *http.Client
}

func NewFirebaseStore(baseURL, auth string) *FirebaseStore {
	return &FirebaseStore{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Auth:    auth,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type firebaseStatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *firebaseStatusError) Error() string {
	return fmt.Sprintf("firebase %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

func (s *FirebaseStore) endpoint(path string) string {
	u := s.BaseURL + "/" + cleanPath(path) + ".json"
	if s.Auth != "" {
		u += "?auth=" + url.QueryEscape(s.Auth)
	}
	return u
}

func (s *FirebaseStore) do(ctx context.Context, method, path string, body any, header http.Header) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("encode %s: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.endpoint(path), reader)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Firebase-ETag", "true")
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, err
	}
	return resp, data, nil
}

func (s *FirebaseStore) Get(ctx context.Context, path string) (json.RawMessage, string, error) {
	resp, data, err := s.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", &firebaseStatusError{http.MethodGet, path, resp.StatusCode, string(data)}
	}
	if isNull(data) {
		return nil, resp.Header.Get("ETag"), ErrNotFound
	}
	return json.RawMessage(data), resp.Header.Get("ETag"), nil
}

func (s *FirebaseStore) Set(ctx context.Context, path string, value any) (string, error) {
	resp, data, err := s.do(ctx, http.MethodPut, path, value, nil)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &firebaseStatusError{http.MethodPut, path, resp.StatusCode, string(data)}
	}
	logger.Sugar.Debugf("Firebase: wrote %s", path)
	return resp.Header.Get("ETag"), nil
}

func (s *FirebaseStore) Push(ctx context.Context, path string, value any) (string, error) {
	resp, data, err := s.do(ctx, http.MethodPost, path, value, nil)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &firebaseStatusError{http.MethodPost, path, resp.StatusCode, string(data)}
	}
	var out struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode push response for %s: %w", path, err)
	}
	return out.Name, nil
}

// Transaction reads the value with its ETag and writes the update with an
// if-match precondition. A 412 answer carries the current value and ETag, so
// the loop retries without another GET.
func (s *FirebaseStore) Transaction(ctx context.Context, path string, update UpdateFunc) (json.RawMessage, error) {
	resp, current, err := s.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &firebaseStatusError{http.MethodGet, path, resp.StatusCode, string(current)}
	}
	etag := resp.Header.Get("ETag")

	for attempt := 0; attempt < maxTransactionAttempts; attempt++ {
		var in json.RawMessage
		if !isNull(current) {
			in = current
		}
		next, err := update(in)
		if err != nil {
			return nil, err
		}

		resp, data, err := s.do(ctx, http.MethodPut, path, next, http.Header{"If-Match": {etag}})
		if err != nil {
			return nil, err
		}
		switch resp.StatusCode {
		case http.StatusOK:
			return json.RawMessage(data), nil
		case http.StatusPreconditionFailed:
			current, etag = data, resp.Header.Get("ETag")
			logger.Sugar.Debugf("Firebase: transaction on %s lost a race, retrying (%d)", path, attempt+1)
		default:
			return nil, &firebaseStatusError{http.MethodPut, path, resp.StatusCode, string(data)}
		}
	}
	return nil, ErrConflict
}

func (s *FirebaseStore) Children(ctx context.Context, path string) (map[string]json.RawMessage, error) {
	raw, _, err := s.Get(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	children := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &children); err != nil {
		return nil, fmt.Errorf("decode children of %s: %w", path, err)
	}
	return children, nil
}

func isNull(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || string(trimmed) == "null"
}
