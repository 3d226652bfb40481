// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resource

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"strings"
)

// Defaults for endpoint settings.
const (
	DefaultMaxResultWindow = 10000
	DefaultMediaType       = "application/json"
)

// Loader parses a request body into record metadata. A nil map with a nil
// error means the body held no data.
type Loader func(body []byte) (map[string]any, error)

// Endpoint describes one REST root serving a pid type.
type Endpoint struct {
	// PIDType is the identifier type minted and resolved, e.g. "b2rec".
	PIDType string

	// ListRoute and ItemRoute are gin route patterns. ItemRoute carries the
	// :pid_value parameter.
	ListRoute string
	ItemRoute string

	// SearchIndex is queried by list requests. DraftsIndex is queried when
	// drafts are requested; empty disables draft search.
	SearchIndex string
	DraftsIndex string

	// MaxResultWindow caps page*size. Zero means DefaultMaxResultWindow.
	MaxResultWindow int

	// DefaultPageSize applies when the request sets no size.
	DefaultPageSize int

	// Loaders maps media types to body parsers. Nil installs JSONLoader
	// for DefaultMediaType.
	Loaders map[string]Loader
}

// normalize fills unset fields with defaults.
func (e Endpoint) normalize() Endpoint {
	if e.MaxResultWindow <= 0 {
		e.MaxResultWindow = DefaultMaxResultWindow
	}
	if e.DefaultPageSize <= 0 {
		e.DefaultPageSize = 10
	}
	if e.Loaders == nil {
		e.Loaders = map[string]Loader{DefaultMediaType: JSONLoader}
	}
	return e
}

// loader returns the loader registered for contentType. Parameters such as
// charset are ignored.
func (e Endpoint) loader(contentType string) (Loader, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, contentType)
	}
	l, ok := e.Loaders[strings.ToLower(mediaType)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mediaType)
	}
	return l, nil
}

// JSONLoader parses a JSON object. An empty body or JSON null yields nil.
func JSONLoader(body []byte) (map[string]any, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrBadRequest, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON object", ErrBadRequest)
	}
	return data, nil
}
