package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"esocial/internal/events/models"
	dErrors "esocial/pkg/domain-errors"
)

// rootField keys errors that belong to the payload as a whole.
const rootField = "payload"

// Result is the outcome of validating one payload. Exactly one of Payload or
// FieldErrors is populated.
type Result struct {
	Payload     json.RawMessage
	Typed       Payload
	FieldErrors map[string]string
}

func (r Result) Valid() bool { return len(r.FieldErrors) == 0 }

// Err converts an invalid result into a CodeValidation error.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	return dErrors.NewValidation("payload is invalid", r.FieldErrors)
}

// Validator checks raw payloads against the registry and the typed rules.
type Validator struct {
	registry *Registry
}

func NewValidator(registry *Registry) *Validator {
	return &Validator{registry: registry}
}

// Validate returns an error only for an unknown event type or an internal
// fault; payload problems come back as Result.FieldErrors.
func (v *Validator) Validate(t models.EventType, raw json.RawMessage) (Result, error) {
	compiled, err := v.registry.Schema(t)
	if err != nil {
		return Result{}, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return invalid(rootField, "is required"), nil
	}

	doc, err := decodeDocument(raw)
	if err != nil {
		return invalid(rootField, "must be a single valid JSON document"), nil
	}
	if err := compiled.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return Result{}, fmt.Errorf("validate %s payload: %w", t, err)
		}
		errs := fieldErrors{}
		flatten(ve, errs)
		return Result{FieldErrors: errs}, nil
	}

	typed := newPayload(t)
	if err := json.Unmarshal(raw, typed); err != nil {
		return invalid(rootField, "could not be decoded: "+err.Error()), nil
	}
	typed.normalize()
	errs := fieldErrors{}
	typed.check(errs)
	if len(errs) > 0 {
		return Result{FieldErrors: errs}, nil
	}

	normalized, err := json.Marshal(typed)
	if err != nil {
		return Result{}, fmt.Errorf("encode normalized %s payload: %w", t, err)
	}
	return Result{Payload: normalized, Typed: typed}, nil
}

// decodeDocument decodes exactly one JSON value keeping numbers exact.
func decodeDocument(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if err := dec.Decode(new(any)); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON document")
	}
	return doc, nil
}

func invalid(field, reason string) Result {
	return Result{FieldErrors: map[string]string{field: reason}}
}

// fieldErrors keeps the first reason reported for each path.
type fieldErrors map[string]string

func (e fieldErrors) add(path, reason string) {
	if path == "" {
		path = rootField
	}
	if _, exists := e[path]; !exists {
		e[path] = reason
	}
}

func (e fieldErrors) checkCPF(field, cpf string) {
	if !ValidCPF(cpf) {
		e.add(field, "is not a valid CPF")
	}
}

func (e fieldErrors) checkNIS(field, nis string) {
	if nis != "" && !ValidNIS(nis) {
		e.add(field, "is not a valid NIS/PIS")
	}
}

var quotedName = regexp.MustCompile(`'([^']*)'`)

// flatten walks the validation tree and records each leaf cause under the
// dotted path of the instance it refers to.
func flatten(ve *jsonschema.ValidationError, errs fieldErrors) {
	if len(ve.Causes) > 0 {
		for _, cause := range ve.Causes {
			flatten(cause, errs)
		}
		return
	}

	path := pointerToPath(ve.InstanceLocation)
	switch {
	case strings.HasPrefix(ve.Message, "missing properties"):
		for _, m := range quotedName.FindAllStringSubmatch(ve.Message, -1) {
			errs.add(joinPath(path, m[1]), "is required")
		}
	case strings.HasPrefix(ve.Message, "additionalProperties"):
		for _, m := range quotedName.FindAllStringSubmatch(ve.Message, -1) {
			errs.add(joinPath(path, m[1]), "is not allowed")
		}
	case strings.HasSuffix(ve.KeywordLocation, "/pattern"):
		errs.add(path, "has an invalid format")
	case strings.HasSuffix(ve.KeywordLocation, "/format"):
		errs.add(path, "is not a valid "+formatName(ve.Message))
	default:
		errs.add(path, ve.Message)
	}
}

// formatName extracts the format from messages like "'x' is not valid 'date'".
func formatName(msg string) string {
	matches := quotedName.FindAllStringSubmatch(msg, -1)
	if len(matches) == 0 {
		return "value"
	}
	return matches[len(matches)-1][1]
}

// pointerToPath turns a JSON pointer ("/agents/0/code") into "agents.0.code".
func pointerToPath(pointer string) string {
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return ""
	}
	parts := strings.Split(pointer, "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		parts[i] = strings.ReplaceAll(p, "~0", "~")
	}
	return strings.Join(parts, ".")
}

func joinPath(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}

func indexPath(field string, i int, child string) string {
	return field + "." + itoa(i) + "." + child
}

func itoa(i int) string { return strconv.Itoa(i) }
