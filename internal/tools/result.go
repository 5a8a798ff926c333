package tools

import (
	"encoding/json"
	"strings"
)

// ContentTypeText is the only content type tools produce.
const ContentTypeText = "text"

type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result is the payload of a tool invocation.
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError"`
}

// TextResult wraps text in a successful result.
func TextResult(text string) Result {
	return Result{Content: []Content{{Type: ContentTypeText, Text: text}}}
}

// ErrorResult wraps text in a result flagged as failed.
func ErrorResult(text string) Result {
	return Result{Content: []Content{{Type: ContentTypeText, Text: text}}, IsError: true}
}

// JSONResult encodes v as the text of a successful result.
func JSONResult(v any) (Result, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Result{}, err
	}
	return TextResult(string(data)), nil
}

// Text concatenates the text content of the result.
func (r Result) Text() string {
	if len(r.Content) == 1 {
		return r.Content[0].Text
	}
	var b strings.Builder
	for _, c := range r.Content {
		b.WriteString(c.Text)
	}
	return b.String()
}
