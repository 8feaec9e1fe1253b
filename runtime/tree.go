// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	typeDocument = "DOCUMENT"
	typePage     = "PAGE"
	typeView     = "VIEW"
	typeText     = "TEXT"
	typeLink     = "LINK"
	typeNote     = "NOTE"
	typeString   = "#text"
)

// node is one element of the resolved tree emitted by the capability set.
// Raw strings decode into nodes of type typeString.
type node struct {
	Type     string         `json:"type"`
	Props    map[string]any `json:"props"`
	Style    map[string]any `json:"style"`
	Children []*node        `json:"children"`
	Text     string         `json:"-"`
}

func (n *node) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		n.Type = typeString
		return json.Unmarshal(data, &n.Text)
	}
	type plain node
	if err := json.Unmarshal(data, (*plain)(n)); err != nil {
		return err
	}
	if n.Type == "" {
		return fmt.Errorf("element without type")
	}
	return nil
}

func (n *node) stringProp(name string) string {
	if v, ok := n.Props[name].(string); ok {
		return v
	}
	return ""
}

func (n *node) describe() string {
	if n.Type == typeString {
		return "text " + fmt.Sprintf("%q", n.Text)
	}
	return n.Type
}

// textContent concatenates every string below n.
func (n *node) textContent() string {
	if n.Type == typeString {
		return n.Text
	}
	var sb strings.Builder
	for _, child := range n.Children {
		sb.WriteString(child.textContent())
	}
	return sb.String()
}

// isTextual reports whether n lays out as a block of text.
func (n *node) isTextual() bool {
	return n.Type == typeText || n.Type == typeString || n.Type == typeLink || n.Type == typeNote
}
