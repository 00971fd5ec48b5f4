// Package driver defines the page-driver contract consumed by the
// orchestration loop.
//
// Information Hiding:
// - How a driver talks to a live page is hidden behind the Driver interface
// - The tool vocabulary is a closed enum; dispatch matches exhaustively
// - Result shapes are spelled out per field, not duck-typed maps
package driver

import (
	"fmt"
	"sort"
	"strings"
)

// Tool identifies one page-driver primitive. The set is closed; unknown
// names are rejected before dispatch.
type Tool string

const (
	ToolNavigate    Tool = "navigate"
	ToolClick       Tool = "click"
	ToolTypeText    Tool = "type_text"
	ToolScroll      Tool = "scroll"
	ToolReadPage    Tool = "read_page"
	ToolReadText    Tool = "read_text"
	ToolExtract     Tool = "extract"
	ToolFindElement Tool = "find_element"
	ToolScreenshot  Tool = "screenshot"
	ToolSwitchTab   Tool = "switch_tab"
	ToolGoBack      Tool = "go_back"
)

// String returns the tool name.
func (t Tool) String() string {
	return string(t)
}

// ToolInfo describes a tool for prompt construction and dispatch policy.
type ToolInfo struct {
	Name        Tool
	Description string
	Params      []Param
	// ReadOnly tools never change page state and may run concurrently
	// within a dispatch batch.
	ReadOnly bool
	// RepeatTolerant tools may be issued twice in a row when their effect
	// is visibly changing (e.g. scrolling that moved the viewport).
	RepeatTolerant bool
}

// Param describes one tool argument.
type Param struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

var catalog = map[Tool]ToolInfo{
	ToolNavigate: {
		Name:        ToolNavigate,
		Description: "Load a URL in the active tab",
		Params: []Param{
			{Name: "url", Type: "string", Description: "Absolute URL to open", Required: true},
		},
	},
	ToolClick: {
		Name:        ToolClick,
		Description: "Click an element identified by its numeric target id",
		Params: []Param{
			{Name: "target", Type: "integer", Description: "Element id from a prior read", Required: true},
		},
	},
	ToolTypeText: {
		Name:        ToolTypeText,
		Description: "Type text into an input element",
		Params: []Param{
			{Name: "target", Type: "integer", Description: "Input element id", Required: true},
			{Name: "text", Type: "string", Description: "Text to type", Required: true},
			{Name: "submit", Type: "boolean", Description: "Press Enter afterwards", Required: false},
		},
	},
	ToolScroll: {
		Name:        ToolScroll,
		Description: "Scroll the viewport",
		Params: []Param{
			{Name: "direction", Type: "string", Description: "up or down", Required: true},
			{Name: "amount", Type: "integer", Description: "Pixels to scroll", Required: false},
		},
		RepeatTolerant: true,
	},
	ToolReadPage: {
		Name:        ToolReadPage,
		Description: "Read the annotated interactive layout of the current page",
		ReadOnly:    true,
	},
	ToolReadText: {
		Name:        ToolReadText,
		Description: "Read the visible text content of the current page",
		ReadOnly:    true,
	},
	ToolExtract: {
		Name:        ToolExtract,
		Description: "Extract structured items (links, rows, listings) from the current page",
		Params: []Param{
			{Name: "what", Type: "string", Description: "What to extract, e.g. 'result links'", Required: true},
		},
		ReadOnly: true,
	},
	ToolFindElement: {
		Name:        ToolFindElement,
		Description: "Search the current page for elements or text matching a query",
		Params: []Param{
			{Name: "query", Type: "string", Description: "Text or selector to find", Required: true},
		},
		ReadOnly: true,
	},
	ToolScreenshot: {
		Name:        ToolScreenshot,
		Description: "Capture a screenshot of the viewport",
		ReadOnly:    true,
	},
	ToolSwitchTab: {
		Name:        ToolSwitchTab,
		Description: "Switch to another tab or frame",
		Params: []Param{
			{Name: "target", Type: "integer", Description: "Tab or frame index", Required: true},
		},
	},
	ToolGoBack: {
		Name:        ToolGoBack,
		Description: "Navigate back in the tab history",
	},
}

// Known reports whether the tool is part of the closed vocabulary.
func Known(t Tool) bool {
	_, ok := catalog[t]
	return ok
}

// Info returns the catalog entry for a tool.
func Info(t Tool) (ToolInfo, bool) {
	info, ok := catalog[t]
	return info, ok
}

// IsReadOnly reports whether the tool never mutates page state.
func IsReadOnly(t Tool) bool {
	info, ok := catalog[t]
	return ok && info.ReadOnly
}

// IsRepeatTolerant reports whether an immediate repeat of the tool is
// acceptable when its effect is visibly changing.
func IsRepeatTolerant(t Tool) bool {
	info, ok := catalog[t]
	return ok && info.RepeatTolerant
}

// Tools returns all tool names in sorted order.
func Tools() []Tool {
	names := make([]Tool, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Description returns a formatted description of the vocabulary for
// reasoning prompts.
func Description() string {
	var descriptions []string
	for _, name := range Tools() {
		info := catalog[name]
		var params []string
		for _, p := range info.Params {
			required := "optional"
			if p.Required {
				required = "required"
			}
			params = append(params, fmt.Sprintf("  - %s (%s): %s [%s]",
				p.Name, p.Type, p.Description, required))
		}
		entry := fmt.Sprintf("Tool: %s\nDescription: %s", info.Name, info.Description)
		if len(params) > 0 {
			entry += "\nParameters:\n" + strings.Join(params, "\n")
		}
		descriptions = append(descriptions, entry)
	}
	return strings.Join(descriptions, "\n\n")
}
