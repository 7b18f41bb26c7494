package scrape

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventsPage = `<html><body>
<select id="year-select" name="year">
  <option value="pre-1965">pre-1965</option>
  <option value="1965">1965</option>
  <option value=" 1975 ">1975</option>
  <option value=""></option>
</select>
</body></html>`

const listingPage = `<html><body>
<table id="datatable_events">
  <thead><tr><th>Date</th><th>Venue</th><th>Band</th><th>Songs</th><th>Category</th><th>Act</th><th>ID</th></tr></thead>
  <tbody>
    <tr>
      <td><a href="/events/1959-10-00-commons-club"><span>1959-10-00 [Thu]</span></a></td>
      <td><a href="/venues/1133">Commons Club,
          Berkeley, CA</a></td>
      <td><a href="/bands/12">Garcia &amp; Hunter</a></td>
      <td>3</td>
      <td>Public</td>
      <td>Side Project</td>
      <td>101</td>
    </tr>
    <tr>
      <td><a href="https://jerrybase.com/events/1975-08-13"><span>1975-08-13 [Wed]</span></a></td>
      <td><a href="/venues/42">Keystone</a></td>
      <td><a href="/bands/1">Jerry Garcia Band</a></td>
      <td>14</td>
      <td>Public</td>
      <td>Jerry Garcia Band</td>
      <td>102</td>
    </tr>
    <tr><td>short</td><td>row</td></tr>
  </tbody>
</table>
</body></html>`

func TestParseYearOptions(t *testing.T) {
	t.Parallel()

	years, err := ParseYearOptions(eventsPage)
	require.NoError(t, err)
	assert.Equal(t, []string{"pre-1965", "1965", "1975"}, years)
}

func TestParseYearOptions_MissingSelector(t *testing.T) {
	t.Parallel()

	_, err := ParseYearOptions("<html><body>maintenance</body></html>")
	require.Error(t, err)

	var pe *ParseError
	assert.True(t, errors.As(err, &pe))
}

func TestParseEventTable(t *testing.T) {
	t.Parallel()

	rows, err := ParseEventTable(listingPage, "https://jerrybase.com/events?year=1959")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, "1959-10-00 [Thu]", first.Date)
	assert.Equal(t, "https://jerrybase.com/events/1959-10-00-commons-club", first.URL)
	assert.Equal(t, "Commons Club, Berkeley, CA", first.VenueName)
	assert.Equal(t, "https://jerrybase.com/venues/1133", first.VenueURL)
	assert.Equal(t, "Garcia & Hunter", first.BandName)
	assert.Equal(t, "https://jerrybase.com/bands/12", first.BandURL)
	assert.Equal(t, "3", first.Songs)
	assert.Equal(t, "Public", first.Category)
	assert.Equal(t, "Side Project", first.ActType)
	assert.Equal(t, "101", first.SiteShowID)

	assert.Equal(t, "https://jerrybase.com/events/1975-08-13", rows[1].URL)
}

func TestParseEventTable_NoTable(t *testing.T) {
	t.Parallel()

	rows, err := ParseEventTable("<html><body><p>No events</p></body></html>", "https://jerrybase.com/events")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestParseEventTable_RowWithoutLink(t *testing.T) {
	t.Parallel()

	page := `<table id="datatable_events"><tbody><tr>
<td><span>1966-??-??</span></td><td>TBA</td><td>Unknown</td><td>0</td><td>Private</td><td>Primary</td><td>7</td>
</tr></tbody></table>`
	rows, err := ParseEventTable(page, "https://jerrybase.com/events")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].URL)
	assert.Empty(t, rows[0].VenueURL)
	assert.Equal(t, "1966-??-??", rows[0].Date)
}

func TestParseEventTable_BadBaseURL(t *testing.T) {
	t.Parallel()

	_, err := ParseEventTable(listingPage, "://bad")
	assert.Error(t, err)
}
