package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"classtable-service/internal/models"
	"classtable-service/internal/timetable"
)

// Academic calendars are published as static JSON on campus object
// storage, one file per calendar family.
const (
	semesterCalendarURL      = "https://s3.jcloud.sjtu.edu.cn/9fd44bb76f604e8597acfcceada7cb83-tongqu/class_table/calendar.json"
	semesterCalendarSHSMUURL = "https://s3.jcloud.sjtu.edu.cn/9fd44bb76f604e8597acfcceada7cb83-tongqu/class_table/calendar_shsmu.json"
)

// SemesterClient fetches the published semester calendars. Responses
// barely change, so they are cached in memory between refreshes.
type SemesterClient struct {
	Client *http.Client
	cache  *gocache.Cache
}

func NewSemesterClient(client *http.Client) *SemesterClient {
	return &SemesterClient{
		Client: client,
		cache:  gocache.New(time.Hour, 2*time.Hour),
	}
}

type semesterEntry struct {
	ID        string `json:"id"`
	Year      int    `json:"year"`
	Semester  int    `json:"semester"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type semesterCalendar struct {
	UpdatedAt float64         `json:"updated_at"`
	Semesters []semesterEntry `json:"semesters"`
}

// FetchSemesters returns the published semesters for the college. The
// stored end date becomes exclusive: start of the day after the last
// published day.
func (c *SemesterClient) FetchSemesters(ctx context.Context, college models.College) ([]models.Semester, error) {
	const op = "adapter.SemesterClient.FetchSemesters"

	cacheKey := "semesters:" + college.String()
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.([]models.Semester), nil
	}

	calendarURL := semesterCalendarSHSMUURL
	if college == models.CollegeSJTU {
		calendarURL = semesterCalendarURL
	}

	var decoded semesterCalendar
	err := getJSON(ctx, c.Client, calendarURL, url.Values{
		"r": {strconv.FormatInt(time.Now().Unix(), 10)},
	}, nil, &decoded)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	semesters := make([]models.Semester, 0, len(decoded.Semesters))
	for _, entry := range decoded.Semesters {
		start, err := timetable.ParseDate(entry.StartDate)
		if err != nil {
			return nil, fmt.Errorf("%s: bad start_date: %w", op, err)
		}
		end, err := timetable.ParseDate(entry.EndDate)
		if err != nil {
			return nil, fmt.Errorf("%s: bad end_date: %w", op, err)
		}

		semesters = append(semesters, models.Semester{
			ID:       entry.ID,
			College:  college,
			Year:     entry.Year,
			Semester: entry.Semester,
			StartAt:  timetable.StartOfDay(start),
			EndAt:    timetable.StartOfDay(end).AddDate(0, 0, 1),
		})
	}

	c.cache.Set(cacheKey, semesters, gocache.DefaultExpiration)

	return semesters, nil
}
