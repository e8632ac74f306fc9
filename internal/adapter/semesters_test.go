package adapter

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classtable-service/internal/models"
	"classtable-service/internal/timetable"
)

const calendarBody = `{
	"updated_at": 1756684800,
	"semesters": [
		{"id": "2025-2026-1", "year": 2025, "semester": 1, "start_date": "2025-09-15", "end_date": "2026-01-11"},
		{"id": "2024-2025-2", "year": 2024, "semester": 2, "start_date": "2025-02-17", "end_date": "2025-06-22"}
	]
}`

func TestFetchSemesters(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, semesterCalendarURL,
		httpmock.NewStringResponder(200, calendarBody))

	c := NewSemesterClient(client)

	semesters, err := c.FetchSemesters(context.Background(), models.CollegeSJTU)
	require.NoError(t, err)
	require.Len(t, semesters, 2)

	first := semesters[0]
	assert.Equal(t, "2025-2026-1", first.ID)
	assert.Equal(t, models.CollegeSJTU, first.College)
	assert.Equal(t, 2025, first.Year)

	// The stored end is exclusive: midnight after the last published day.
	wantStart, _ := timetable.ParseDate("2025-09-15")
	wantEnd, _ := timetable.ParseDate("2026-01-12")
	assert.True(t, first.StartAt.Equal(wantStart))
	assert.True(t, first.EndAt.Equal(wantEnd))

	assert.True(t, first.Contains(wantStart))
	assert.False(t, first.Contains(wantEnd))
}

func TestFetchSemestersCached(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, semesterCalendarURL,
		httpmock.NewStringResponder(200, calendarBody))

	c := NewSemesterClient(client)

	_, err := c.FetchSemesters(context.Background(), models.CollegeSJTU)
	require.NoError(t, err)
	_, err = c.FetchSemesters(context.Background(), models.CollegeSJTU)
	require.NoError(t, err)

	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestFetchSemestersCalendarChoice(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, semesterCalendarSHSMUURL,
		httpmock.NewStringResponder(200, calendarBody))

	c := NewSemesterClient(client)

	// Every non-SJTU college reads the secondary calendar, the graduate
	// school included.
	for _, college := range []models.College{models.CollegeSHSMU, models.CollegeSJTUG} {
		semesters, err := c.FetchSemesters(context.Background(), college)
		require.NoError(t, err)
		require.Len(t, semesters, 2)
		assert.Equal(t, college, semesters[0].College)
	}
}
