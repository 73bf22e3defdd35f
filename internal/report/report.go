// Package report renders upload results and repository verdicts for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/TylerBrock/colorjson"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/schaermu/fileflyer/internal/upload"
)

const jsonIndent = 4

// IsTerminal reports whether f is attached to a terminal
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Plain writes every uploaded path followed by its indented share URL
func Plain(w io.Writer, result *upload.Result, colored bool) error {
	pathColor := newColor(colored, color.FgCyan, color.Bold)

	for _, f := range result.Files {
		if _, err := fmt.Fprintf(w, "%s:\n\t%s\n\n", pathColor.Sprint(f.Path), f.URL); err != nil {
			return err
		}
	}
	return nil
}

// JSON writes a key-sorted object mapping each uploaded path to its share URL
func JSON(w io.Writer, result *upload.Result, colored bool) error {
	urls := result.URLs()

	var (
		data []byte
		err  error
	)
	if colored {
		obj := make(map[string]interface{}, len(urls))
		for k, v := range urls {
			obj[k] = v
		}
		f := colorjson.NewFormatter()
		f.Indent = jsonIndent
		data, err = f.Marshal(obj)
	} else {
		data, err = json.MarshalIndent(urls, "", "    ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// Verdict writes the outcome of a repository check
func Verdict(w io.Writer, ok bool, colored bool) error {
	if ok {
		_, err := newColor(colored, color.FgGreen).Fprintln(w, "Repository is ready for upload.")
		return err
	}
	_, err := newColor(colored, color.FgRed, color.Bold).Fprintln(w, "Repository is not ready for upload, see the errors above.")
	return err
}

func newColor(enabled bool, attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if enabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}
