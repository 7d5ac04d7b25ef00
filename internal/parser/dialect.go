package parser

import (
	"bytes"
	"errors"
	"strings"
)

const (
	fieldDelimiter = '\t'
	escapeChar     = '\\'
)

var (
	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

	errTrailingEscape = errors.New("line ends with a dangling escape character")
)

// splitLine splits one physical line of the export dialect: tab separated,
// backslash escaped, no quoting.
func splitLine(line string) ([]string, error) {
	var (
		cells   []string
		current strings.Builder
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == escapeChar:
			escaped = true
		case r == fieldDelimiter:
			cells = append(cells, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if escaped {
		return nil, errTrailingEscape
	}
	return append(cells, current.String()), nil
}

// splitPhysicalLines returns the lines of payload without their newline.
// A trailing newline does not start an extra line. Carriage returns are kept
// so that content hashes cover the bytes as read.
func splitPhysicalLines(payload []byte) []string {
	payload = bytes.TrimPrefix(payload, byteOrderMark)
	if len(payload) == 0 {
		return nil
	}
	text := strings.TrimSuffix(string(payload), "\n")
	return strings.Split(text, "\n")
}

func trimCarriageReturn(line string) string {
	return strings.TrimSuffix(line, "\r")
}

var displayReplacer = strings.NewReplacer("\t", `\t`, "\x00", `\0`)

// displayLine makes tabs and NUL bytes visible and keeps the text valid UTF-8.
func displayLine(line string) string {
	return strings.ToValidUTF8(displayReplacer.Replace(line), "\uFFFD")
}
