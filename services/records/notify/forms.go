// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// reasonConstraint is reported when zero or several reason flags are set.
const reasonConstraint = "From 'noresearch', 'abusecontent', 'copyright', 'illegalcontent' (only) one should be True"

// ValidationError is a client input error. Message is safe to return to
// the caller.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// =============================================================================
// Field Types
// =============================================================================

// Text is a form value given as a JSON string, number or boolean.
type Text string

// UnmarshalJSON accepts strings, numbers and booleans.
func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return errors.New("empty value")
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
	case '{', '[':
		return errors.New("must be a string or a number")
	default:
		// numbers and booleans keep their literal form
		*t = Text(b)
	}
	return nil
}

// Flag is a form value interpreted by truthiness: false, 0, "", [] and {}
// are false, everything else is true.
type Flag bool

// UnmarshalJSON applies truthiness to any JSON value.
func (f *Flag) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case bool:
		*f = Flag(x)
	case float64:
		*f = x != 0
	case string:
		*f = x != ""
	case []any:
		*f = len(x) > 0
	case map[string]any:
		*f = len(x) > 0
	default:
		*f = false
	}
	return nil
}

func (f *Flag) set() bool { return f != nil && bool(*f) }

// =============================================================================
// Forms
// =============================================================================

// AbuseReport is the body of an abuse report. Field order is the order in
// which missing fields are reported.
type AbuseReport struct {
	AbuseContent   *Flag `json:"abusecontent" validate:"required"`
	Message        *Text `json:"message" validate:"required"`
	Email          *Text `json:"email" validate:"required"`
	Copyright      *Flag `json:"copyright" validate:"required"`
	Zipcode        *Text `json:"zipcode" validate:"required"`
	Phone          *Text `json:"phone" validate:"required"`
	IllegalContent *Flag `json:"illegalcontent" validate:"required"`
	City           *Text `json:"city" validate:"required"`
	NoResearch     *Flag `json:"noresearch" validate:"required"`
	Name           *Text `json:"name" validate:"required"`
	Affiliation    *Text `json:"affiliation" validate:"required"`
	Address        *Text `json:"address" validate:"required"`
	Country        *Text `json:"country" validate:"required"`
}

// Reason returns the display label of the single reason flag that is set.
// Flags are checked in the order noresearch, abusecontent, copyright,
// illegalcontent.
func (r *AbuseReport) Reason() (string, error) {
	reasons := []struct {
		flag  *Flag
		label string
	}{
		{r.NoResearch, "No research data"},
		{r.AbuseContent, "Abuse or Inappropriate content"},
		{r.Copyright, "Copyrighted material"},
		{r.IllegalContent, "Illegal content"},
	}
	var label string
	count := 0
	for _, reason := range reasons {
		if reason.flag.set() {
			count++
			if label == "" {
				label = reason.label
			}
		}
	}
	if count != 1 {
		return "", &ValidationError{Field: "reason", Message: reasonConstraint}
	}
	return label, nil
}

// AccessRequest is the body of a request for access to data files.
type AccessRequest struct {
	Message     *Text `json:"message" validate:"required"`
	Email       *Text `json:"email" validate:"required"`
	Zipcode     *Text `json:"zipcode" validate:"required"`
	Phone       *Text `json:"phone" validate:"required"`
	City        *Text `json:"city" validate:"required"`
	Name        *Text `json:"name" validate:"required"`
	Affiliation *Text `json:"affiliation" validate:"required"`
	Address     *Text `json:"address" validate:"required"`
	Country     *Text `json:"country" validate:"required"`
}

// contact is the requester block shared by both forms.
type contact struct {
	Message, Name, Affiliation, Email, Address, City, Country, Zipcode, Phone string
}

func (r *AbuseReport) contact() contact {
	return contact{
		Message: str(r.Message), Name: str(r.Name), Affiliation: str(r.Affiliation),
		Email: str(r.Email), Address: str(r.Address), City: str(r.City),
		Country: str(r.Country), Zipcode: str(r.Zipcode), Phone: str(r.Phone),
	}
}

func (r *AccessRequest) contact() contact {
	return contact{
		Message: str(r.Message), Name: str(r.Name), Affiliation: str(r.Affiliation),
		Email: str(r.Email), Address: str(r.Address), City: str(r.City),
		Country: str(r.Country), Zipcode: str(r.Zipcode), Phone: str(r.Phone),
	}
}

func str(t *Text) string {
	if t == nil {
		return ""
	}
	return string(*t)
}

// =============================================================================
// Decoding and Validation
// =============================================================================

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeAbuseReport parses and validates an abuse report body.
func DecodeAbuseReport(body []byte) (*AbuseReport, string, error) {
	var r AbuseReport
	if err := decodeForm(body, &r); err != nil {
		return nil, "", err
	}
	reason, err := r.Reason()
	if err != nil {
		return nil, "", err
	}
	return &r, reason, nil
}

// DecodeAccessRequest parses and validates an access request body.
func DecodeAccessRequest(body []byte) (*AccessRequest, error) {
	var r AccessRequest
	if err := decodeForm(body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func decodeForm(body []byte, form any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return &ValidationError{Field: "body", Message: "request body must be a JSON object"}
	}
	if err := json.Unmarshal(trimmed, form); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return &ValidationError{Field: typeErr.Field, Message: fmt.Sprintf("%s has an invalid value", typeErr.Field)}
		}
		return &ValidationError{Field: "body", Message: fmt.Sprintf("invalid request body: %v", err)}
	}
	if err := validate.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field := verrs[0].Field()
			return &ValidationError{Field: field, Message: field + " is required"}
		}
		return fmt.Errorf("validate form: %w", err)
	}
	return nil
}
