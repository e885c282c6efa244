// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package project

import (
	"fmt"

	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
)

// Registry holds the supported converters in a stable order.
type Registry struct {
	order []Converter
	byID  map[Target]Converter
}

// NewRegistry constructs the full converter set.
func NewRegistry() *Registry {
	all := []Converter{
		NewCursorConverter(),
		NewKiroConverter(),
		NewCopilotConverter(),
		NewWindsurfConverter(),
		NewOpencodeConverter(),
	}
	byID := make(map[Target]Converter, len(all))
	for _, c := range all {
		byID[c.ID()] = c
	}
	return &Registry{order: all, byID: byID}
}

// Get returns the converter for id.
func (r *Registry) Get(id Target) (Converter, error) {
	c, ok := r.byID[id]
	if !ok {
		return nil, &tree.OpError{Op: "converter", Path: string(id),
			Err: fmt.Errorf("%w: unknown target", tree.ErrNotFound)}
	}
	return c, nil
}

// All returns every converter in registration order.
func (r *Registry) All() []Converter {
	out := make([]Converter, len(r.order))
	copy(out, r.order)
	return out
}

// WithReverse returns the converters that support capture, in registration
// order.
func (r *Registry) WithReverse() []Converter {
	var out []Converter
	for _, c := range r.order {
		if _, ok := c.(ReverseMapper); ok {
			out = append(out, c)
		}
	}
	return out
}

// Targets returns every supported target identifier in registration order.
func (r *Registry) Targets() []Target {
	out := make([]Target, 0, len(r.order))
	for _, c := range r.order {
		out = append(out, c.ID())
	}
	return out
}
