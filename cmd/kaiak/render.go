package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Renderer writes CLI output with optional ANSI coloring: a thin
// wrapper so every command formats consistently and --no-color/--json
// can be honored uniformly.
type Renderer struct {
	json    bool
	quiet   bool
	noColor bool
}

// NewRenderer constructs a Renderer, disabling color globally when
// requested (color.NoColor is a package-level switch).
func NewRenderer(jsonOut, quiet, noColor bool) *Renderer {
	color.NoColor = noColor || os.Getenv("NO_COLOR") != ""
	return &Renderer{json: jsonOut, quiet: quiet, noColor: noColor}
}

func (r *Renderer) Info(format string, args ...any) {
	if r.quiet || r.json {
		return
	}
	fmt.Fprintln(os.Stderr, color.New(color.FgHiBlack).Sprintf(format, args...))
}

func (r *Renderer) Notification(kind, sessionID string, payload json.RawMessage) {
	if r.json {
		fmt.Println(string(payload))
		return
	}
	label := color.New(color.FgCyan, color.Bold).Sprintf("[%s]", kind)
	fmt.Printf("%s %s\n", label, payload)
}

func (r *Renderer) Result(v any) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, color.New(color.FgRed).Sprintf("failed to render result: %v", err))
		return
	}
	fmt.Println(string(raw))
}

func (r *Renderer) Error(format string, args ...any) {
	fmt.Fprintln(os.Stderr, color.New(color.FgRed).Sprintf(format, args...))
}

func (r *Renderer) Success(format string, args ...any) {
	if r.quiet {
		return
	}
	fmt.Fprintln(os.Stderr, color.New(color.FgGreen).Sprintf(format, args...))
}
