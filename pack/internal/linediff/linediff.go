// Package linediff renders line-level unified diffs for tool output.
package linediff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DefaultContext is the number of unchanged lines shown around a change.
const DefaultContext = 3

type op struct {
	kind    byte
	text    string
	oldLine int
	newLine int
}

// Unified returns the unified diff body (hunks only, no file headers) that
// turns before into after. Identical inputs yield "".
func Unified(before, after string, context int) string {
	if before == after {
		return ""
	}
	if context < 0 {
		context = 0
	}

	ops := lineOps(before, after)

	var changed []int
	for i, o := range ops {
		if o.kind != ' ' {
			changed = append(changed, i)
		}
	}
	if len(changed) == 0 {
		return ""
	}

	var b strings.Builder
	for i := 0; i < len(changed); {
		start := changed[i]
		end := start
		j := i + 1
		for j < len(changed) && changed[j]-end <= 2*context+1 {
			end = changed[j]
			j++
		}
		writeHunk(&b, ops, max(0, start-context), min(len(ops)-1, end+context))
		i = j
	}
	return b.String()
}

// File returns a unified diff with ---/+++ headers for path.
func File(path, before, after string) string {
	body := Unified(before, after, DefaultContext)
	if body == "" {
		return ""
	}
	return fmt.Sprintf("--- a/%s\n+++ b/%s\n%s", path, path, body)
}

func lineOps(before, after string) []op {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var ops []op
	oldLine, newLine := 1, 1
	for _, d := range diffs {
		for _, line := range splitLines(d.Text) {
			o := op{text: line, oldLine: oldLine, newLine: newLine}
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				o.kind = ' '
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				o.kind = '-'
				oldLine++
			case diffmatchpatch.DiffInsert:
				o.kind = '+'
				newLine++
			}
			ops = append(ops, o)
		}
	}
	return ops
}

func writeHunk(b *strings.Builder, ops []op, from, to int) {
	oldCount, newCount := 0, 0
	for _, o := range ops[from : to+1] {
		if o.kind != '+' {
			oldCount++
		}
		if o.kind != '-' {
			newCount++
		}
	}
	oldStart, newStart := ops[from].oldLine, ops[from].newLine
	if oldCount == 0 {
		oldStart--
	}
	if newCount == 0 {
		newStart--
	}

	fmt.Fprintf(b, "@@ -%d,%d +%d,%d @@\n", oldStart, oldCount, newStart, newCount)
	for _, o := range ops[from : to+1] {
		b.WriteByte(o.kind)
		if strings.HasSuffix(o.text, "\n") {
			b.WriteString(o.text)
			continue
		}
		b.WriteString(o.text)
		b.WriteString("\n\\ No newline at end of file\n")
	}
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
