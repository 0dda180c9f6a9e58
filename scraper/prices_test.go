package scraper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const samplePayload = `{
	"seatingAreas": [
		{
			"name": "General Admission",
			"soldOut": false,
			"tickets": [
				{"description": "Adult", "price": 14.50},
				{"description": "Child", "price": 11.00},
				{"description": "Senior", "price": 12.00}
			]
		},
		{
			"name": "Balcony",
			"soldOut": true,
			"tickets": [
				{"description": "Adult Balcony", "price": 19.00}
			]
		}
	]
}`

func TestDecodePrimaryAreaReadsFirstAreaOnly(t *testing.T) {
	area, err := decodePrimaryArea(samplePayload)
	require.NoError(t, err)
	require.Equal(t, "General Admission", area.Name)
	require.False(t, area.SoldOut)
	require.Len(t, area.Tickets, 3)
	require.Equal(t, 14.50, area.Tickets[0].Price)
}

func TestDecodePrimaryAreaSoldOut(t *testing.T) {
	area, err := decodePrimaryArea(`{"seatingAreas":[{"name":"GA","soldOut":true,"tickets":[]}]}`)
	require.NoError(t, err)
	require.True(t, area.SoldOut)
}

func TestDecodePrimaryAreaMissingPayload(t *testing.T) {
	_, err := decodePrimaryArea("")
	require.Error(t, err)

	_, err = decodePrimaryArea("   ")
	require.Error(t, err)
}

func TestDecodePrimaryAreaMalformedPayload(t *testing.T) {
	_, err := decodePrimaryArea(`{"seatingAreas": [{`)
	require.Error(t, err)
}

func TestDecodePrimaryAreaNoAreasIsAnError(t *testing.T) {
	_, err := decodePrimaryArea(`{"seatingAreas": []}`)
	require.ErrorIs(t, err, ErrNoSeatingAreas)

	_, err = decodePrimaryArea(`{"somethingElse": true}`)
	require.ErrorIs(t, err, ErrNoSeatingAreas)
}
