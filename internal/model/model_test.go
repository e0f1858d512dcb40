package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	c, err := ParseClock("10:15")
	require.NoError(t, err)
	assert.Equal(t, Clock{Hour: 10, Minute: 15}, c)
	assert.Equal(t, "10:15", c.String())

	c, err = ParseClock("9:05")
	require.NoError(t, err)
	assert.Equal(t, "09:05", c.String())

	for _, bad := range []string{"", "10", "24:00", "10:60", "10:5", "aa:bb", "100:00"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("Monday")
	require.NoError(t, err)
	assert.Equal(t, time.Monday, d)

	d, err = ParseWeekday("thu")
	require.NoError(t, err)
	assert.Equal(t, time.Thursday, d)

	d, err = ParseWeekday(" SUNDAY ")
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, d)

	_, err = ParseWeekday("Mondays")
	assert.Error(t, err)
	_, err = ParseWeekday("Mo")
	assert.Error(t, err)
}

func TestNewSlot(t *testing.T) {
	s, err := NewSlot(3, "Tuesday", "12:15")
	require.NoError(t, err)
	assert.True(t, s.HasID())
	assert.Equal(t, "#3 Tuesday 12:15", s.String())

	s, err = NewSlot(0, "Monday", "10:00")
	require.NoError(t, err)
	assert.False(t, s.HasID())
	assert.Equal(t, "Monday 10:00", s.String())

	_, err = NewSlot(-1, "Monday", "10:00")
	assert.Error(t, err)
	_, err = NewSlot(1, "Funday", "10:00")
	assert.Error(t, err)
	_, err = NewSlot(1, "Monday", "10")
	assert.Error(t, err)
}

func TestSlotAt(t *testing.T) {
	s := Slot{Day: time.Monday, Time: Clock{Hour: 10}}
	// 2023-10-16 is a Monday.
	assert.True(t, s.At(time.Date(2023, 10, 16, 10, 0, 0, 0, time.UTC)))
	assert.False(t, s.At(time.Date(2023, 10, 16, 10, 1, 0, 0, time.UTC)))
	assert.False(t, s.At(time.Date(2023, 10, 17, 10, 0, 0, 0, time.UTC)))
}
