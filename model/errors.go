package model

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/hupe1980/reviewmesh/core"
)

// ParseErrorPayload extracts the human readable message from a provider error
// body. Accepted shapes are {"error":{"message":...}}, {"error":"..."},
// {"message":...} and a JSON list wrapping any of them. ok is false when no
// message could be found.
func ParseErrorPayload(body []byte) (message string, ok bool) {
	body = []byte(strings.TrimSpace(string(body)))
	if len(body) == 0 {
		return "", false
	}

	var list []json.RawMessage
	if err := json.Unmarshal(body, &list); err == nil {
		for _, item := range list {
			if msg, ok := ParseErrorPayload(item); ok {
				return msg, true
			}
		}
		return "", false
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", false
	}

	if raw, ok := obj["error"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s, true
		}
		if msg, ok := ParseErrorPayload(raw); ok {
			return msg, true
		}
	}

	if raw, ok := obj["message"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s, true
		}
	}

	return "", false
}

// APIError is the subset of vendor SDK error types the adapters rely on.
type APIError interface {
	error
	RawJSON() string
}

// ClassifyError converts an SDK failure into a *core.Error. status is the HTTP
// status of apiErr; pass a nil apiErr for transport failures.
func ClassifyError(provider string, err error, apiErr APIError, status int) error {
	if err == nil {
		return nil
	}
	var ce *core.Error
	if errors.As(err, &ce) {
		return err
	}
	if apiErr == nil {
		return core.NewTransportError(provider, err)
	}
	msg, ok := ParseErrorPayload([]byte(apiErr.RawJSON()))
	if !ok {
		msg = apiErr.Error()
	}
	return core.NewProviderAPIError(provider, status, msg, err)
}
