// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"strconv"
	"strings"
)

// Box is the computed geometry of a layout node, in page points.
type Box struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	PaddingTop    float64 `json:"paddingTop"`
	PaddingRight  float64 `json:"paddingRight"`
	PaddingBottom float64 `json:"paddingBottom"`
	PaddingLeft   float64 `json:"paddingLeft"`

	MarginTop    float64 `json:"marginTop"`
	MarginRight  float64 `json:"marginRight"`
	MarginBottom float64 `json:"marginBottom"`
	MarginLeft   float64 `json:"marginLeft"`

	BorderTopWidth    float64 `json:"borderTopWidth"`
	BorderRightWidth  float64 `json:"borderRightWidth"`
	BorderBottomWidth float64 `json:"borderBottomWidth"`
	BorderLeftWidth   float64 `json:"borderLeftWidth"`
}

// LayoutNode is one node of the layout tree handed to debugging views.
type LayoutNode struct {
	ID       string         `json:"_id,omitempty"`
	Type     string         `json:"type"`
	Box      Box            `json:"box"`
	Style    map[string]any `json:"style,omitempty"`
	Value    string         `json:"value,omitempty"`
	Children []*LayoutNode  `json:"children,omitempty"`
}

// AssignIDs gives every node in the tree a stable identifier built from its
// ancestors, its type and its 1-based position, e.g. "DOCUMENT__PAGE__1".
func (n *LayoutNode) AssignIDs() {
	n.assignID("", 0)
}

func (n *LayoutNode) assignID(prefix string, position int) {
	parts := make([]string, 0, 3)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	if n.Type != "" {
		parts = append(parts, n.Type)
	}
	if position > 0 {
		parts = append(parts, strconv.Itoa(position))
	}
	n.ID = strings.Join(parts, "__")
	for i, child := range n.Children {
		child.assignID(n.ID, i+1)
	}
}

// Walk visits n and its descendants depth-first until fn returns false.
func (n *LayoutNode) Walk(fn func(*LayoutNode) bool) bool {
	if !fn(n) {
		return false
	}
	for _, child := range n.Children {
		if !child.Walk(fn) {
			return false
		}
	}
	return true
}
