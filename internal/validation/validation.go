// Package validation rejects malformed input at the HTTP boundary, before any
// store or database access.
package validation

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"snaptide/internal/models"
	"snaptide/internal/store"
)

const (
	ReasonMissing   = "missing"
	ReasonType      = "type"
	ReasonEmpty     = "empty"
	ReasonMalformed = "malformed"
	ReasonFormat    = "format"
)

type FieldError struct {
	Field   string `json:"field"`
	Reason  string `json:"reason"`
	Message string `json:"msg"`
}

// ValidationError lists every offending field of a payload.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, reason, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason, Message: msg})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// DecodeNewPost parses a create-post payload. Both title and content must be
// present JSON strings; the returned NewPost carries no owner.
func DecodeNewPost(body []byte) (models.NewPost, error) {
	fields, verr := decodeObject(body)
	if verr != nil {
		return models.NewPost{}, verr
	}

	errs := &ValidationError{}
	title, okTitle := stringField(fields, "title", errs)
	content, _ := stringField(fields, "content", errs)

	// Text is stored as given; only the empty title is rejected.
	if okTitle && title == "" {
		errs.add("title", ReasonEmpty, "title must not be empty")
	}

	if err := errs.orNil(); err != nil {
		return models.NewPost{}, err
	}
	return models.NewPost{Title: title, Content: content}, nil
}

// ParsePostID parses the {id} path segment of /posts/{id}.
func ParsePostID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		errs := &ValidationError{}
		errs.add("id", ReasonType, "id must be an integer")
		return 0, errs
	}
	return id, nil
}

// ParseLimit interprets the limit query parameter. present distinguishes
// "?limit=" from no parameter at all.
func ParseLimit(raw string, present bool) (store.Limit, error) {
	if !present {
		return store.NoLimit(), nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		errs := &ValidationError{}
		errs.add("limit", ReasonType, "limit must be an integer")
		return store.Limit{}, errs
	}
	return store.LimitOf(n), nil
}

type Registration struct {
	Email    string
	Username string
	Password string
}

var (
	emailRe    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)
)

// DecodeRegistration parses a sign-up payload.
func DecodeRegistration(body []byte) (Registration, error) {
	fields, verr := decodeObject(body)
	if verr != nil {
		return Registration{}, verr
	}

	errs := &ValidationError{}
	email, okEmail := stringField(fields, "email", errs)
	username, okUsername := stringField(fields, "username", errs)
	password, okPassword := stringField(fields, "password", errs)

	if okEmail && !emailRe.MatchString(email) {
		errs.add("email", ReasonFormat, "invalid email format")
	}
	if okUsername && !usernameRe.MatchString(username) {
		errs.add("username", ReasonFormat, "username may contain letters, digits and underscores (3-20 characters)")
	}
	if okPassword && len(password) < 6 {
		errs.add("password", ReasonFormat, "password must be at least 6 characters")
	}

	if err := errs.orNil(); err != nil {
		return Registration{}, err
	}
	return Registration{Email: email, Username: username, Password: password}, nil
}

// DecodeCredentials parses a login payload.
func DecodeCredentials(body []byte) (email, password string, err error) {
	fields, verr := decodeObject(body)
	if verr != nil {
		return "", "", verr
	}
	errs := &ValidationError{}
	email, _ = stringField(fields, "email", errs)
	password, _ = stringField(fields, "password", errs)
	if err := errs.orNil(); err != nil {
		return "", "", err
	}
	return email, password, nil
}

func decodeObject(body []byte) (map[string]json.RawMessage, *ValidationError) {
	var fields map[string]json.RawMessage
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &fields) != nil {
		errs := &ValidationError{}
		errs.add("body", ReasonMalformed, "request body must be a JSON object")
		return nil, errs
	}
	return fields, nil
}

// stringField reads a required string member, recording a field error when it
// is absent, null or not a string.
func stringField(fields map[string]json.RawMessage, name string, errs *ValidationError) (string, bool) {
	raw, ok := fields[name]
	if !ok || string(bytes.TrimSpace(raw)) == "null" {
		errs.add(name, ReasonMissing, "field required")
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		errs.add(name, ReasonType, "must be a string")
		return "", false
	}
	return s, true
}
