package handler

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"esocial/internal/events/models"
	dErrors "esocial/pkg/domain-errors"
	platformstrings "esocial/pkg/platform/strings"
)

// CreateEventRequest is the body of POST /v1/events.
type CreateEventRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`

	parsedType models.EventType
}

func (r *CreateEventRequest) Normalize() {
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
}

func (r *CreateEventRequest) Validate() error {
	if r.Type == "" {
		return dErrors.NewValidation("type is required", map[string]string{"type": "is required"})
	}
	t, err := models.ParseEventType(r.Type)
	if err != nil {
		return err
	}
	r.parsedType = t
	return requirePayload(r.Payload)
}

func (r *CreateEventRequest) ParsedType() models.EventType { return r.parsedType }

// UpdatePayloadRequest is the body of PUT /v1/events/{id}/payload.
type UpdatePayloadRequest struct {
	Payload json.RawMessage `json:"payload"`
}

func (r *UpdatePayloadRequest) Validate() error {
	return requirePayload(r.Payload)
}

func requirePayload(p json.RawMessage) error {
	trimmed := bytes.TrimSpace(p)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return dErrors.NewValidation("payload is required", map[string]string{"payload": "is required"})
	}
	return nil
}

// CancelRequest is the body of POST /v1/events/{id}/cancel.
type CancelRequest struct {
	Reason string `json:"reason"`
}

func (r *CancelRequest) Normalize() { r.Reason = strings.TrimSpace(r.Reason) }

func (r *CancelRequest) Validate() error {
	switch {
	case r.Reason == "":
		return dErrors.NewValidation("reason is required", map[string]string{"reason": "is required"})
	case len(r.Reason) > 255:
		return dErrors.NewValidation("reason is too long", map[string]string{"reason": "must be at most 255 characters"})
	}
	return nil
}

// parseListQuery reads GET /v1/events filters. type and status accept
// comma-separated or repeated values.
func parseListQuery(q url.Values) (models.ListFilter, error) {
	var f models.ListFilter
	fields := map[string]string{}

	for _, raw := range platformstrings.DedupeAndTrimLower(platformstrings.SplitCSV(q["type"])) {
		t, err := models.ParseEventType(raw)
		if err != nil {
			fields["type"] = "unknown event type " + raw
			continue
		}
		f.Types = append(f.Types, t)
	}
	for _, raw := range platformstrings.DedupeAndTrimUpper(platformstrings.SplitCSV(q["status"])) {
		st, err := models.ParseStatus(raw)
		if err != nil {
			fields["status"] = "unknown status " + raw
			continue
		}
		f.Statuses = append(f.Statuses, st)
	}
	f.Limit = parseInt(q.Get("limit"), "limit", fields)
	f.Offset = parseInt(q.Get("offset"), "offset", fields)
	if f.Limit > models.MaxListLimit {
		fields["limit"] = "must be at most " + strconv.Itoa(models.MaxListLimit)
	}
	f.CreatedFrom = parseTime(q.Get("created_from"), "created_from", fields)
	f.CreatedTo = parseTime(q.Get("created_to"), "created_to", fields)

	if len(fields) > 0 {
		return models.ListFilter{}, dErrors.NewValidation("invalid query", fields)
	}
	return f, nil
}

func parseInt(v, field string, fields map[string]string) int {
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		fields[field] = "must be a non-negative integer"
		return 0
	}
	return n
}

func parseTime(v, field string, fields map[string]string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		fields[field] = "must be an RFC 3339 timestamp"
		return nil
	}
	return &t
}
