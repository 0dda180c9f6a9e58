package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"showtime-scraper/models"
)

func TestParseBaseTypeOnly(t *testing.T) {
	c := NewClassifier(Default(), nil)

	base, amenities := c.Parse("Adult")
	require.Equal(t, "Adult", base)
	require.Empty(t, amenities)
}

func TestParseBaseTypeWithAmenities(t *testing.T) {
	c := NewClassifier(Default(), nil)

	base, amenities := c.Parse("Adult IMAX 3D")
	require.Equal(t, "Adult", base)
	require.Equal(t, []string{"3D", "IMAX"}, amenities)
}

func TestParseAmenityAliases(t *testing.T) {
	c := NewClassifier(Default(), nil)

	testCases := []struct {
		description string
		wantBase    string
		wantAmens   []string
	}{
		{"Child RealD 3D", "Child", []string{"3D"}},
		{"Senior Dolby Cinema", "Senior", []string{"Dolby Cinema"}},
		{"Adult Dolby", "Adult", []string{"Dolby Cinema"}},
		{"Military 4DX", "Military", []string{"4DX"}},
		{"General Admission Recliner", "Adult", []string{"Recliner"}},
		{"Student Open Captions", "Student", []string{"Open Caption"}},
	}
	for _, tc := range testCases {
		base, amenities := c.Parse(tc.description)
		require.Equal(t, tc.wantBase, base, "description %q", tc.description)
		require.Equal(t, tc.wantAmens, amenities, "description %q", tc.description)
	}
}

func TestParseLongerPhrasesWinOverSubstrings(t *testing.T) {
	c := NewClassifier(Default(), nil)

	// "general admission" must be tried before "general" so the full
	// phrase is consumed in one pass.
	base, amenities := c.Parse("General Admission")
	require.Equal(t, "Adult", base)
	require.Empty(t, amenities)
}

func TestParseEmptyInput(t *testing.T) {
	var logged []models.UnclassifiedFragment
	c := NewClassifier(Default(), func(f models.UnclassifiedFragment) {
		logged = append(logged, f)
	})

	base, amenities := c.Parse("")
	require.Equal(t, "Unknown", base)
	require.Empty(t, amenities)

	base, amenities = c.Parse("   ")
	require.Equal(t, "Unknown", base)
	require.Empty(t, amenities)

	require.Len(t, logged, 2)
}

func TestParseAdHocBaseType(t *testing.T) {
	var logged []models.UnclassifiedFragment
	c := NewClassifier(Default(), func(f models.UnclassifiedFragment) {
		logged = append(logged, f)
	})

	base, amenities := c.Parse("Toddler IMAX")
	require.Equal(t, "Toddler", base)
	require.Equal(t, []string{"IMAX"}, amenities)
	require.Len(t, logged, 1)
	require.Equal(t, "Toddler IMAX", logged[0].RawText)
}

func TestParsePriceTokenNotABaseType(t *testing.T) {
	var logged []models.UnclassifiedFragment
	c := NewClassifier(Default(), func(f models.UnclassifiedFragment) {
		logged = append(logged, f)
	})

	base, amenities := c.Parse("$12.50")
	require.Equal(t, "Unknown", base)
	require.Empty(t, amenities)
	require.Empty(t, logged)
}

func TestParseIgnoreList(t *testing.T) {
	c := NewClassifier(Default(), nil)

	base, amenities := c.Parse("Adult Ticket Online")
	require.Equal(t, "Adult", base)
	require.Empty(t, amenities)
}

func TestParseResidualAmenity(t *testing.T) {
	c := NewClassifier(Default(), nil)

	base, amenities := c.Parse("Adult (Balcony)")
	require.Equal(t, "Adult", base)
	require.Equal(t, []string{"Balcony"}, amenities)
}

func TestParseDeterministic(t *testing.T) {
	c := NewClassifier(Default(), nil)
	for i := 0; i < 20; i++ {
		base, amenities := c.Parse("Senior IMAX 3D D-BOX")
		require.Equal(t, "Senior", base)
		require.Equal(t, []string{"3D", "D-BOX", "IMAX"}, amenities)
	}
}

func TestParseSurvivesPanickingFragmentLogger(t *testing.T) {
	c := NewClassifier(Default(), func(models.UnclassifiedFragment) {
		panic("sink on fire")
	})

	require.NotPanics(t, func() {
		base, _ := c.Parse("Mystery")
		require.Equal(t, "Mystery", base)
	})
}
