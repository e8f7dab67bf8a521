package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

func Cyan(s string) string {
	cyan := color.New(color.FgHiCyan)
	return cyan.SprintFunc()(s)
}

func Green(s string) string {
	green := color.New(color.FgHiGreen)
	return green.SprintFunc()(s)
}

func Yellow(s string) string {
	yellow := color.New(color.FgHiYellow)
	return yellow.SprintFunc()(s)
}

func Red(s string) string {
	red := color.New(color.FgHiRed)
	return red.SprintFunc()(s)
}

func PrintErr(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, fmt.Sprintf(format, args...))
}

// PrintFatal reports an error in red and exits.
func PrintFatal(w io.Writer, format string, args ...any) {
	PrintErr(w, Red("callctl ▶ "+format), args...)
	os.Exit(1)
}
