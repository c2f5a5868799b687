package ui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"
)

// RenderMarkdown writes md to w, styled for the terminal when color is on.
func RenderMarkdown(w io.Writer, md string) {
	if colorDisabled {
		fmt.Fprint(w, md)
		return
	}
	out, err := glamour.Render(md, "dark")
	if err != nil {
		Logger.Debug("Markdown rendering failed, printing source", "err", err)
		out = md
	}
	fmt.Fprint(w, out)
}
