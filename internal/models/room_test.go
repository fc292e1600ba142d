package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLanguage(t *testing.T) {
	l, err := ParseLanguage("python")
	require.NoError(t, err)
	assert.Equal(t, LanguagePython, l)

	l, err = ParseLanguage(" javascript ")
	require.NoError(t, err)
	assert.Equal(t, LanguageJavaScript, l)

	for _, bad := range []string{"", "go", "Python", "ruby"} {
		_, err := ParseLanguage(bad)
		assert.True(t, errors.Is(err, ErrInvalidLanguage), "expected ErrInvalidLanguage for %q", bad)
	}
}

func TestDefaultCode(t *testing.T) {
	assert.True(t, strings.Contains(DefaultCode(LanguagePython), `print("Hello, World!")`))
	assert.True(t, strings.Contains(DefaultCode(LanguageJavaScript), `console.log("Hello, World!");`))
}

func TestNormalizeRoomID(t *testing.T) {
	assert.Equal(t, "AB12CD", NormalizeRoomID(" ab12cd "))
}

func TestRoomUpdateWireFormat(t *testing.T) {
	ev := NewRoomUpdate(Room{ID: "ABC123", Code: "x", Language: LanguagePython, CreatedAt: 1, Participants: 2})

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "ROOM_UPDATE", raw["type"])
	assert.Equal(t, "ABC123", raw["roomId"])

	room := raw["room"].(map[string]any)
	assert.Equal(t, "python", room["language"])
	assert.EqualValues(t, 2, room["participants"])
	assert.Contains(t, room, "createdAt")
}
