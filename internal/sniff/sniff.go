// Package sniff detects content types from the leading bytes of a stream.
package sniff

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// HeaderSize is how many leading bytes are inspected to guess a content type.
const HeaderSize = 1024

// DefaultType is reported when nothing can be inferred from the content.
const DefaultType = "application/octet-stream"

// Detect returns the media type of header without parameters,
// e.g. "text/plain" rather than "text/plain; charset=utf-8".
func Detect(header []byte) string {
	if len(header) == 0 {
		return DefaultType
	}
	mt, _, _ := strings.Cut(mimetype.Detect(header).String(), ";")
	mt = strings.TrimSpace(mt)
	if mt == "" {
		return DefaultType
	}
	return mt
}

// Peek reads up to HeaderSize bytes from r, detects their type and returns a
// reader that yields the peeked bytes followed by the rest of r.
// A stream shorter than HeaderSize is not an error.
func Peek(r io.Reader) (string, io.Reader, error) {
	header := make([]byte, HeaderSize)
	n, err := Fill(r, header)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", nil, err
	}
	header = header[:n]
	return Detect(header), io.MultiReader(bytes.NewReader(header), r), nil
}

// Fill reads from r until buf is full or r fails. Unlike io.ReadFull it
// reports io.EOF only when r itself reached its end, so a source that fails
// with io.ErrUnexpectedEOF (a truncated HTTP body) is passed through as is.
func Fill(r io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
