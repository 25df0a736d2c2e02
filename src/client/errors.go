package client

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"personal/botkit/src/issue"
)

// APIError is a non-2xx response from the Discord REST API.
type APIError struct {
	Status  int
	Code    int
	Message string
	// Fields lists the individual validation errors found under "errors".
	Fields []FieldError
}

// FieldError is one entry of an "_errors" array in a Discord error body.
type FieldError struct {
	Path    string
	Field   string
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("discord api: %d: %s (http %d)", e.Code, e.Message, e.Status)
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Path, f.Message))
	}
	return fmt.Sprintf("discord api: %d: %s (http %d): %s", e.Code, e.Message, e.Status, strings.Join(parts, "; "))
}

// Issues converts the error into user-facing issues: one per validation
// error, or a single "<code>: <message>" issue when there are none.
func (e *APIError) Issues(path string) []issue.Issue {
	if len(e.Fields) == 0 {
		return []issue.Issue{{
			Severity:    issue.Error,
			Stage:       issue.StageAPI,
			Title:       fmt.Sprintf("%d: %s", e.Code, e.Message),
			Description: fmt.Sprintf("Discord responded with HTTP %d", e.Status),
			Path:        path,
		}}
	}
	title := cases.Title(language.English)
	out := make([]issue.Issue, 0, len(e.Fields))
	for _, f := range e.Fields {
		out = append(out, issue.Issue{
			Severity:    issue.Error,
			Stage:       issue.StageAPI,
			Title:       title.String(strings.ReplaceAll(f.Field, "_", " ")),
			Description: f.Message,
			Path:        path,
		})
	}
	return out
}

type errorBody struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
}

type errorEntry struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}
	apiErr.Code = parsed.Code
	apiErr.Message = parsed.Message
	if len(parsed.Errors) > 0 {
		var tree map[string]json.RawMessage
		if err := json.Unmarshal(parsed.Errors, &tree); err == nil {
			apiErr.Fields = walkErrors(nil, "", tree)
		}
	}
	return apiErr
}

// walkErrors collects every "_errors" array in the tree. Keys are visited in
// sorted order so the result is stable. Array indexes are part of the path
// but never become the field name.
func walkErrors(path []string, field string, tree map[string]json.RawMessage) []FieldError {
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []FieldError
	for _, k := range keys {
		raw := tree[k]
		if k == "_errors" {
			var entries []errorEntry
			if err := json.Unmarshal(raw, &entries); err != nil {
				continue
			}
			for _, e := range entries {
				out = append(out, FieldError{
					Path:    strings.Join(path, "."),
					Field:   field,
					Code:    e.Code,
					Message: e.Message,
				})
			}
			continue
		}
		var child map[string]json.RawMessage
		if err := json.Unmarshal(raw, &child); err != nil {
			continue
		}
		next := field
		if _, err := strconv.Atoi(k); err != nil {
			next = k
		}
		out = append(out, walkErrors(append(path[:len(path):len(path)], k), next, child)...)
	}
	return out
}
