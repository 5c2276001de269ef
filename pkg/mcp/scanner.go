package mcp

import (
	"bufio"
	"io"
)

// newLineScanner wraps bufio.Scanner with the default line-splitting
// behavior; broken out only so transport.go reads as intent rather
// than bufio boilerplate.
func newLineScanner(r io.Reader) *bufio.Scanner {
	return bufio.NewScanner(r)
}
