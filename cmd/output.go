package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// ── Unified output helpers ────────────────────────────────────────────────────
// All commands, the interactive shell included, print through these helpers.
//
// Icon semantics:
//   ✓  success / healthy
//   ✗  error / failure          (written to stderr)
//   ⚠  warning
//   ○  skipped / not applicable
//   -  not found / missing
//   ~  neutral info / state change

// Tests swap these for buffers.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func printLine(w io.Writer, icon, name, msg string) {
	if name == "" {
		fmt.Fprintf(w, "  %s  %s\n", icon, msg)
	} else {
		fmt.Fprintf(w, "  %s  [%s] %s\n", icon, name, msg)
	}
}

// printSection prints a top-level section header, e.g. "=== Status ===".
func printSection(title string) {
	fmt.Fprintf(stdout, "\n=== %s ===\n", title)
}

// printBullet prints a grouped-section bullet, e.g. "● Results:".
func printBullet(title string) {
	fmt.Fprintf(stdout, "\n● %s\n", title)
}

func printOK(name, msg string)   { printLine(stdout, "✓", name, msg) }
func printErr(name, msg string)  { printLine(stderr, "✗", name, msg) }
func printWarn(name, msg string) { printLine(stdout, "⚠", name, msg) }
func printSkip(name, msg string) { printLine(stdout, "○", name, msg) }
func printMiss(name, msg string) { printLine(stdout, "-", name, msg) }
func printInfo(name, msg string) { printLine(stdout, "~", name, msg) }

// preview flattens s to one line and cuts it to n runes.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// formatVector renders at most n components of v.
func formatVector(v []float32, n int) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i == n {
			fmt.Fprintf(&b, ", … (%d more)", len(v)-n)
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%.4f", x)
	}
	b.WriteByte(']')
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
