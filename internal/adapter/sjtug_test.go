package adapter

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classtable-service/internal/auth"
	"classtable-service/internal/models"
)

func cookieAccount(provider string) *auth.Account {
	return &auth.Account{
		ID:       "test",
		Provider: provider,
		Status:   auth.StatusConnected,
		Cookies: []auth.Cookie{
			{Name: "session", Value: "abc", Domain: "example.com", Path: "/"},
		},
	}
}

func TestTermCode(t *testing.T) {
	code := func(year, term int) string {
		return termCode(models.Semester{Year: year, Semester: term})
	}

	// Term 1 keys on the academic year itself; terms 2 and 3 roll into
	// the next calendar year.
	assert.Equal(t, "202509", code(2025, 1))
	assert.Equal(t, "202602", code(2025, 2))
	assert.Equal(t, "202606", code(2025, 3))
}

func TestSJTUGFetchSchedules(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, sjtugIndexURL,
		httpmock.NewStringResponder(200, "ok"))

	httpmock.RegisterResponder(http.MethodPost, sjtugSchedulesURL,
		httpmock.NewStringResponder(200, `{
			"code": "0",
			"datas": {"xspkjgcx": {"rows": [
				{
					"JASMC": "研教楼201", "XQ": 1, "KCMC": "矩阵论", "JSXM": "王五,赵六",
					"KBBZ": "第一周停课", "BJDM": "bj01", "BJMC": "矩阵论-01班",
					"JSJCDM": 1, "KCDM": "MA6001", "ZCBH": "0110000000000000"
				},
				{
					"JASMC": "研教楼201", "XQ": 1, "KCMC": "矩阵论", "JSXM": "王五,赵六",
					"KBBZ": "第一周停课", "BJDM": "bj01", "BJMC": "矩阵论-01班",
					"JSJCDM": 2, "KCDM": "MA6001", "ZCBH": "0110000000000000"
				},
				{
					"JASMC": null, "XQ": 3, "KCMC": "组合数学", "JSXM": "钱七",
					"KBBZ": null, "BJDM": "bj02", "BJMC": "组合数学-02班",
					"JSJCDM": 5, "KCDM": "MA6002", "ZCBH": "1000000000000000"
				}
			]}}
		}`))

	a := &SJTUG{Client: client, Account: cookieAccount("jaccount")}

	sections, err := a.FetchSchedules(context.Background(), testSemester(models.CollegeSJTUG))
	require.NoError(t, err)
	require.Len(t, sections, 2)

	first := sections[0]
	assert.Equal(t, "MA6001", first.Course.Code)
	assert.Equal(t, "bj01", first.Class.ID)
	assert.Equal(t, "矩阵论-01班", first.Class.Name)
	assert.Equal(t, []string{"王五", "赵六"}, first.Class.Teachers)
	assert.Equal(t, float64(-1), first.Class.Hours)
	assert.Equal(t, float64(-1), first.Class.Credits)

	// Bitmask weeks 1 and 2, two adjacent periods each: two spans of
	// length 2 (4 rows with continuations).
	require.Len(t, first.Schedules, 4)
	var spans []models.Schedule
	for _, s := range first.Schedules {
		if s.IsStart {
			spans = append(spans, s)
		}
	}
	require.Len(t, spans, 2)
	assert.Equal(t, 1, spans[0].Week)
	assert.Equal(t, 0, spans[0].Day)    // XQ 1 → day 0
	assert.Equal(t, 0, spans[0].Period) // JSJCDM 1 → period 0
	assert.Equal(t, 2, spans[0].Length)
	assert.Equal(t, 2, spans[1].Week)

	// The remark dedupes to a single row per class.
	require.Len(t, first.Remarks, 1)
	assert.Equal(t, "第一周停课", first.Remarks[0].Remark)

	second := sections[1]
	assert.Empty(t, second.Remarks)
	require.Len(t, second.Schedules, 1)
	assert.Equal(t, sjtugNoClassroom, second.Schedules[0].Classroom)
	assert.Equal(t, 0, second.Schedules[0].Week)
	assert.Equal(t, 2, second.Schedules[0].Day)
	assert.Equal(t, 4, second.Schedules[0].Period)
}
