package models

import (
	"errors"
	"strings"
)

// Language is the execution language of a room's shared buffer.
type Language string

const (
	LanguageJavaScript Language = "javascript"
	LanguagePython     Language = "python"
)

// ErrInvalidLanguage is returned when a language is not one of the supported values.
var ErrInvalidLanguage = errors.New("language must be one of: javascript, python")

// ParseLanguage validates s against the supported languages.
func ParseLanguage(s string) (Language, error) {
	switch l := Language(strings.TrimSpace(s)); l {
	case LanguageJavaScript, LanguagePython:
		return l, nil
	default:
		return "", ErrInvalidLanguage
	}
}

// Valid reports whether l is a supported language.
func (l Language) Valid() bool {
	return l == LanguageJavaScript || l == LanguagePython
}

// DefaultCode returns the placeholder buffer seeded into new rooms.
func DefaultCode(l Language) string {
	if l == LanguagePython {
		return "# Write your Python code here\nprint(\"Hello, World!\")\n"
	}
	return "// Write your JavaScript code here\nconsole.log(\"Hello, World!\");\n"
}

// Room is the shared state of one interview session.
type Room struct {
	ID           string   `json:"id"`
	Code         string   `json:"code"`
	Language     Language `json:"language"`
	CreatedAt    int64    `json:"createdAt"` // Unix ms
	Participants int      `json:"participants"`
}

// NormalizeRoomID returns the canonical (uppercase) form of a room ID.
func NormalizeRoomID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
