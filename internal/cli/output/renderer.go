// Package output renders CLI results in text, markdown, or JSON form.
//
// The renderer picks an effective mode at construction time: explicit
// modes are honored as-is, while ModeAuto resolves to styled text on a
// TTY and markdown everywhere else, so piped output stays readable for
// scripts and agents.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// OutputMode selects how results are rendered.
type OutputMode string

// Supported output modes.
const (
	ModeAuto     OutputMode = "auto"
	ModeText     OutputMode = "text"
	ModeMarkdown OutputMode = "markdown"
	ModeJSON     OutputMode = "json"
)

// Mode normalizes a user-supplied format string into an OutputMode.
// Unknown or empty strings fall back to ModeAuto.
func Mode(s string) OutputMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return ModeText
	case "markdown", "md":
		return ModeMarkdown
	case "json":
		return ModeJSON
	default:
		return ModeAuto
	}
}

// Styles holds the lipgloss styles used for text mode.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Name    lipgloss.Style
}

func defaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Name:    lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
	}
}

// Renderer writes command output in the configured mode.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   OutputMode
	isTTY  bool
	styles Styles
}

// NewRenderer creates a renderer, detecting TTY state from the output
// writer when it is an *os.File.
func NewRenderer(out, errOut io.Writer, mode OutputMode) *Renderer {
	isTTY := false
	if f, ok := out.(*os.File); ok {
		if fi, err := f.Stat(); err == nil {
			isTTY = fi.Mode()&os.ModeCharDevice != 0
		}
		// Respect NO_COLOR and dumb terminals: fall back to the
		// markdown rendering path instead of emitting styled text.
		if isTTY && termenv.NewOutput(f).EnvNoColor() {
			isTTY = false
		}
	}
	return NewRendererWithTTY(out, errOut, isTTY, mode)
}

// NewRendererWithTTY creates a renderer with an explicit TTY state.
// Tests use this to force a mode without a real terminal.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode OutputMode) *Renderer {
	return &Renderer{
		out:    out,
		errOut: errOut,
		mode:   mode,
		isTTY:  isTTY,
		styles: defaultStyles(),
	}
}

// EffectiveMode resolves ModeAuto based on TTY state.
func (r *Renderer) EffectiveMode() OutputMode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// Writer returns the underlying output writer.
func (r *Renderer) Writer() io.Writer {
	return r.out
}

// ErrWriter returns the underlying error writer.
func (r *Renderer) ErrWriter() io.Writer {
	return r.errOut
}

// Println writes a line verbatim.
func (r *Renderer) Println(s string) {
	_, _ = fmt.Fprintln(r.out, s)
}

// Printf writes formatted output verbatim.
func (r *Renderer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

// Header writes a section header. Text mode styles it; other modes get
// markdown headers.
func (r *Renderer) Header(level int, text string) {
	if r.EffectiveMode() == ModeText && r.isTTY {
		r.Println(r.styles.Header.Render(text))
		return
	}
	r.Println(FormatHeader(level, text))
}

// Muted writes de-emphasized text.
func (r *Renderer) Muted(s string) {
	if r.EffectiveMode() == ModeText && r.isTTY {
		r.Println(r.styles.Muted.Render(s))
		return
	}
	r.Println(s)
}

// Success writes a success line.
func (r *Renderer) Success(s string) {
	if r.EffectiveMode() == ModeText && r.isTTY {
		r.Println(r.styles.Success.Render("✓ " + s))
		return
	}
	r.Println("✓ " + s)
}

// Error writes an error line to the error writer.
func (r *Renderer) Error(s string) {
	if r.EffectiveMode() == ModeText && r.isTTY {
		_, _ = fmt.Fprintln(r.errOut, r.styles.Error.Render("✗ "+s))
		return
	}
	_, _ = fmt.Fprintln(r.errOut, "✗ "+s)
}

// StatusLine writes a name with a status marker and optional detail.
func (r *Renderer) StatusLine(name, status, detail string) {
	marker := "•"
	style := r.styles.Muted
	switch status {
	case "success":
		marker = "✓"
		style = r.styles.Success
	case "failed":
		marker = "✗"
		style = r.styles.Error
	case "skipped":
		marker = "-"
	}

	line := fmt.Sprintf("%s %s", marker, name)
	if detail != "" {
		line += "  " + detail
	}
	if r.EffectiveMode() == ModeText && r.isTTY {
		r.Println(style.Render(line))
		return
	}
	r.Println(line)
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
