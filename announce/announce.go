// Package announce encodes and decodes the short text message a sender
// publishes to tell a nearby peer that an image is ready to be fetched.
//
// The wire form is
//
//	IMAGE_TRANSFER:<fileName>:<sourceLocator>
//
// The locator is everything after the second colon and may itself contain
// colons (URI schemes, host:port pairs), so decoding splits on the first colon
// after the tag only.
package announce

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const (
	// Tag identifies an image transfer announcement.
	Tag = "IMAGE_TRANSFER"
	// Delimiter separates the announcement fields.
	Delimiter = ":"

	prefix = Tag + Delimiter
)

var (
	// ErrEmptyFileName indicates the announced file name is missing.
	ErrEmptyFileName = errors.New("announce: file name is required")
	// ErrInvalidFileName indicates the file name contains the delimiter or a control character.
	ErrInvalidFileName = errors.New("announce: file name contains a delimiter or control character")
	// ErrEmptyLocator indicates the source locator is missing.
	ErrEmptyLocator = errors.New("announce: source locator is required")
)

// Announcement describes one pending image transfer.
type Announcement struct {
	FileName      string
	SourceLocator string
}

// New validates the fields and returns an announcement.
func New(fileName, sourceLocator string) (Announcement, error) {
	a := Announcement{FileName: fileName, SourceLocator: sourceLocator}
	if err := a.Validate(); err != nil {
		return Announcement{}, err
	}
	return a, nil
}

// Validate checks that the announcement survives an encode/decode round trip.
func (a Announcement) Validate() error {
	if a.FileName == "" {
		return ErrEmptyFileName
	}
	if strings.Contains(a.FileName, Delimiter) || strings.IndexFunc(a.FileName, unicode.IsControl) >= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidFileName, a.FileName)
	}
	if a.SourceLocator == "" {
		return ErrEmptyLocator
	}
	return nil
}

// String returns the wire form.
func (a Announcement) String() string {
	return Encode(a.FileName, a.SourceLocator)
}

// Encode builds the wire form. The caller guarantees fileName holds no delimiter.
func Encode(fileName, sourceLocator string) string {
	return prefix + fileName + Delimiter + sourceLocator
}

// Decode parses the wire form. It reports false for anything that is not a
// complete announcement.
func Decode(text string) (Announcement, bool) {
	rest, ok := strings.CutPrefix(text, prefix)
	if !ok {
		return Announcement{}, false
	}
	fileName, locator, ok := strings.Cut(rest, Delimiter)
	if !ok || fileName == "" || locator == "" {
		return Announcement{}, false
	}
	return Announcement{FileName: fileName, SourceLocator: locator}, true
}

// IsAnnouncement reports whether text carries the announcement tag, complete or not.
func IsAnnouncement(text string) bool {
	return strings.HasPrefix(text, prefix)
}
