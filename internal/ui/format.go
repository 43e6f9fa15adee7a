// Package ui holds the interactive terminal helpers used by the CLI:
// coloured status lines, a spinner and the init wizard.
package ui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"

	apperrors "dashcheck/pkg/errors"
)

var (
	// Out receives every status line.
	Out io.Writer = os.Stdout

	supportsColor = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	ColorSuccess  = colorFunc(ansi.Green)
	ColorError    = colorFunc(ansi.Red)
	ColorWarning  = colorFunc(ansi.Yellow)
	ColorInfo     = colorFunc(ansi.Cyan)
	ColorProgress = colorFunc(ansi.Blue)
	ColorBold     = colorFunc("default+b")
	ColorDim      = colorFunc("default+h")
)

// colorFunc returns a function that colors text if supported
func colorFunc(color string) func(string) string {
	return func(text string) string {
		if supportsColor {
			return ansi.Color(text, color)
		}
		return text
	}
}

// SetColor forces colour output on or off.
func SetColor(enabled bool) {
	supportsColor = enabled
}

// ColorEnabled reports whether status lines are coloured.
func ColorEnabled() bool {
	return supportsColor
}

// ShowHeader displays a formatted header
func ShowHeader(title string) {
	width := 50
	if len(title)+2 > width {
		width = len(title) + 4
	}
	padding := (width - len(title) - 2) / 2

	fmt.Fprintln(Out, "\n+"+strings.Repeat("-", width-2)+"+")
	fmt.Fprintf(Out, "|%s%s%s|\n",
		strings.Repeat(" ", padding),
		ColorBold(title),
		strings.Repeat(" ", width-2-padding-len(title)),
	)
	fmt.Fprintln(Out, "+"+strings.Repeat("-", width-2)+"+")
}

// ShowError prints err. Application errors show their code, message, cause
// and suggestions on separate lines.
func ShowError(err error) {
	if err == nil {
		return
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		fmt.Fprintf(Out, "\n%s %s\n", ColorError("ERROR:"), err.Error())
		if tip := getSuggestion(err.Error()); tip != "" {
			fmt.Fprintf(Out, "\n  %s %s\n", ColorInfo("TIP:"), ColorInfo(tip))
		}
		return
	}

	fmt.Fprintf(Out, "\n%s [%s] %s\n", ColorError("ERROR:"), appErr.Code, appErr.Message)
	if field, ok := appErr.Context["field"]; ok {
		fmt.Fprintf(Out, "  %s\n", ColorDim(fmt.Sprintf("field: %v", field)))
	}
	if appErr.Cause != nil {
		fmt.Fprintf(Out, "  %s\n", ColorDim("caused by: "+appErr.Cause.Error()))
	}

	suggestions := appErr.Suggestions
	if len(suggestions) == 0 {
		if tip := getSuggestion(err.Error()); tip != "" {
			suggestions = []string{tip}
		}
	}
	for _, s := range suggestions {
		fmt.Fprintf(Out, "  %s %s\n", ColorInfo("TIP:"), s)
	}
}

// ShowSuccess displays a success message
func ShowSuccess(message string) {
	fmt.Fprintf(Out, "%s %s\n", ColorSuccess("SUCCESS:"), message)
}

// ShowWarning displays a warning message
func ShowWarning(message string) {
	fmt.Fprintf(Out, "%s %s\n", ColorWarning("WARNING:"), ColorWarning(message))
}

// ShowInfo displays an info message
func ShowInfo(message string) {
	fmt.Fprintf(Out, "%s %s\n", ColorInfo("INFO:"), message)
}

// getSuggestion returns helpful suggestions based on error messages
func getSuggestion(message string) string {
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "authentication failed"), strings.Contains(lower, "incorrect username or password"):
		return "Check the username, then run 'dashcheck config set-password'"
	case strings.Contains(lower, "connection refused"):
		return "Verify your Snowflake account identifier and network connectivity"
	case strings.Contains(lower, "syntax error"):
		return "Review the SQL configured for the failing check"
	case strings.Contains(lower, "permission denied"), strings.Contains(lower, "insufficient privileges"):
		return "Ensure your role can read the union, base and dashboard databases"
	case strings.Contains(lower, "does not exist"):
		return "Verify the tenant database names or set them explicitly in the config"
	default:
		return ""
	}
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", hours, minutes)
}
