package output

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

const (
	messageMaxWidth = 100
	messageMinWidth = 20
	messageIndent   = 2
)

// messageWidth is the terminal width less the status indent, capped so long
// operator messages stay readable on wide terminals.
func messageWidth() int {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	} else if cols, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && cols > 0 {
		width = cols
	}
	return min(width-messageIndent, messageMaxWidth)
}

// RenderMessage renders the operator message pulled from the family server.
// The message is markdown; piped output gets the plain style.
func RenderMessage(text string) (string, error) {
	return renderMessage(text, messageWidth(), term.IsTerminal(int(os.Stdout.Fd())))
}

func renderMessage(text string, width int, styled bool) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	width = max(width, messageMinWidth)

	style := glamour.WithStandardStyle("notty")
	if styled {
		style = glamour.WithAutoStyle()
	}
	renderer, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return "", err
	}
	rendered, err := renderer.Render(text)
	if err != nil {
		return "", err
	}
	return IndentString(strings.Trim(rendered, "\n"), messageIndent), nil
}
