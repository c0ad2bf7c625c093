package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+1))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, 8, LimitWithBuffer(7))
}

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{At: time.Date(2025, 3, 1, 10, 0, 0, 123, time.UTC), ID: uuid.New()}

	out, err := ParseCursor(EncodeCursor(in))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, in.At.Equal(out.At))
	assert.Equal(t, in.ID, out.ID)

	empty, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, empty)

	_, err = ParseCursor("not-base64!")
	assert.Error(t, err)
}

func TestTrim(t *testing.T) {
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []int{1, 2, 3}
	cursorOf := func(v int) Cursor { return Cursor{At: at.Add(time.Duration(v) * time.Hour), ID: uuid.Nil} }

	page := Trim(rows, 2, cursorOf)
	assert.Equal(t, []int{1, 2}, page.Items)
	next, err := ParseCursor(page.NextCursor)
	require.NoError(t, err)
	assert.True(t, next.At.Equal(at.Add(2*time.Hour)))

	page = Trim(rows, 3, cursorOf)
	assert.Len(t, page.Items, 3)
	assert.Empty(t, page.NextCursor)
}
