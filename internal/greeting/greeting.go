// Package greeting formats the salutations returned by the hello tool.
package greeting

import (
	"fmt"
	"strings"
)

// DefaultName is used when the caller supplies a blank name.
const DefaultName = "World"

// Formatter builds greetings.
type Formatter struct{}

// NewFormatter creates a new greeting formatter.
func NewFormatter() *Formatter {
	return &Formatter{}
}

// Format returns "Hello, <name>!" with surrounding whitespace trimmed.
func (f *Formatter) Format(name string) string {
	who := strings.TrimSpace(name)
	if who == "" {
		who = DefaultName
	}
	return fmt.Sprintf("Hello, %s!", who)
}
