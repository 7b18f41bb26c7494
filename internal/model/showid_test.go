package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShowID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		date  string
		venue string
		want  string
	}{
		{"unknown day", "1959-10-00 [Thu]", "https://jerrybase.com/venues/1133", "19591001_1133"},
		{"full date", "1975-08-13 [Wed]", "https://jerrybase.com/venues/42", "19750813_42"},
		{"unknown month and day", "1963-00-00", "https://jerrybase.com/venues/7", "19630101_7"},
		{"question marks", "1964-??-??", "/venues/88/", "19640101_88"},
		{"year only", "1962", "https://jerrybase.com/venues/5", "19620101_5"},
		{"compact date", "19870704", "https://jerrybase.com/venues/311", "19870704_311"},
		{"venue digits mid path", "1990-03-29", "https://jerrybase.com/venues/311/shows", "19900329_311"},
		{"missing venue", "1990-03-29", "", "19900329_0"},
		{"missing date", "date unknown", "https://jerrybase.com/venues/99", "00000000_99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NewShowID(tt.date, tt.venue)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewShowID_Malformed(t *testing.T) {
	t.Parallel()

	_, err := NewShowID("unknown", "https://jerrybase.com/venues/")
	require.Error(t, err)

	var mre *MalformedRecordError
	require.True(t, errors.As(err, &mre))
	assert.Equal(t, "show_id", mre.Field)
}

func TestNewShowID_Stable(t *testing.T) {
	t.Parallel()

	a, err := NewShowID("1959-10-00 [Thu]", "https://jerrybase.com/venues/1133")
	require.NoError(t, err)
	b, err := NewShowID("1959-10-00 [Thu]", "https://jerrybase.com/venues/1133")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDuplicateShowID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "19750315_311-4821", DuplicateShowID("19750315_311", "4821", 0))
	assert.Equal(t, "19750315_311-4821", DuplicateShowID("19750315_311", " #48-21 ", 0))
	assert.Equal(t, "19750315_311-2", DuplicateShowID("19750315_311", "", 0))
	assert.Equal(t, "19750315_311-3", DuplicateShowID("19750315_311", "", 3))
	assert.Equal(t, "19750315_311-2", DuplicateShowID("19750315_311", "--", 1))
}
