package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"classtable-service/internal/auth"
	"classtable-service/internal/coalesce"
	"classtable-service/internal/models"
	"classtable-service/internal/timetable"
	"classtable-service/pkg/response"
)

// The medical-school timetable only exists behind the campus webvpn;
// the opaque path segment is part of the published URL.
const shsmuBaseURL = "https://webvpn2.shsmu.edu.cn/https/77726476706e69737468656265737421fae05288327e7b586d059ce29d51367b9aac"

// SHSMU pulls the medical-school timetable in two phases: the calendar
// listing carries rooms and start times but no teachers, so every
// section needs a second detail call keyed by opaque biz parameters.
type SHSMU struct {
	Client   *http.Client
	Account  *auth.Account
	Progress ProgressFunc
}

func (a *SHSMU) College() models.College { return models.CollegeSHSMU }

type shsmuListResponse[T any] struct {
	Title *string `json:"Title"`
	List  []T     `json:"List"`
}

type shsmuScheduleRow struct {
	Curriculum       string `json:"Curriculum"`
	CourseCode       string `json:"CourseCode"`
	CourseCount      int    `json:"CourseCount"`
	ClassroomAcademy string `json:"ClassroomAcademy"`
	Start            string `json:"Start"`
	CurriculumType   string `json:"CurriculumType"`
	MCSID            string `json:"MCSID"`
	CSID             *int   `json:"CSID"`
	CurriculumID     int    `json:"CurriculumID"`
	XXKMID           *int   `json:"XXKMID"`
}

type shsmuCourseRow struct {
	ClassName      string `json:"ClassName"`
	CourseName     string `json:"CourseName"`
	ClassCode      string `json:"ClassCode"`
	ID             int    `json:"ID"`
	CurriculumName string `json:"CurriculumName"`
	Teacher        string `json:"Teacher"`
	College        string `json:"College"`
	CollegeCode    string `json:"CollegeCode"`
	Department     string `json:"Department"`
	SchoolYear     string `json:"SchoolYear"`
	Semester       int    `json:"Semester"`
}

// shsmuSection pairs the per-section detail query parameters with the
// partially filled section from phase 1.
type shsmuSection struct {
	biz     url.Values
	section models.CourseClassSchedule
}

func (a *SHSMU) FetchSchedules(ctx context.Context, semester models.Semester) ([]models.CourseClassSchedule, error) {
	const op = "adapter.SHSMU.FetchSchedules"

	listed, err := a.fetchTimetable(ctx, semester)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sections := make([]models.CourseClassSchedule, 0, len(listed))
	for i, item := range listed {
		if a.Progress != nil {
			a.Progress(i, len(listed))
		}

		section, err := a.fetchCourseInfo(ctx, item)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		sections = append(sections, section)
	}

	return sections, nil
}

func (a *SHSMU) fetchTimetable(ctx context.Context, semester models.Semester) ([]shsmuSection, error) {
	const op = "adapter.SHSMU.fetchTimetable"

	cookies := a.Account.HTTPCookies()

	if err := prime(ctx, a.Client, shsmuBaseURL+"/Home/Timetable", cookies); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var decoded shsmuListResponse[shsmuScheduleRow]
	err := getJSON(ctx, a.Client, shsmuBaseURL+"/Home/GetCurriculumTable", url.Values{
		"Start": {timetable.FormatDate(semester.StartAt)},
		"End":   {timetable.FormatDate(semester.EndAt)},
	}, cookies, &decoded)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	colors := timetable.RandomColors(len(timetable.ClassColors))

	var sections []shsmuSection
	index := make(map[string]int)

	for _, row := range decoded.List {
		classID := strconv.Itoa(row.CurriculumID)

		pos, seen := index[classID]
		if !seen {
			csid := "null"
			if row.CSID != nil {
				csid = strconv.Itoa(*row.CSID)
			}
			xxkmid := "null"
			if row.XXKMID != nil {
				xxkmid = strconv.Itoa(*row.XXKMID)
			}

			sections = append(sections, shsmuSection{
				biz: url.Values{
					"MCSID":          {row.MCSID},
					"CSID":           {csid},
					"CurriculumID":   {classID},
					"XXKMID":         {xxkmid},
					"CurriculumType": {row.CurriculumType},
				},
				section: models.CourseClassSchedule{
					Course: models.Course{
						Code:    strings.TrimSpace(row.CourseCode),
						College: models.CollegeSHSMU,
						Name:    strings.TrimSpace(row.Curriculum),
					},
					Class: models.Class{
						ID:         classID,
						College:    models.CollegeSHSMU,
						Color:      colors[len(sections)],
						CourseCode: strings.TrimSpace(row.CourseCode),
						Name:       strings.TrimSpace(row.Curriculum),
						Code:       strings.TrimSpace(row.CourseCode),
						Teachers:   []string{},
						Hours:      -1,
						Credits:    1,
						SemesterID: semester.ID,
					},
				},
			})
			pos = len(sections) - 1
			index[classID] = pos
		}

		parts := strings.SplitN(row.Start, "T", 2)
		if len(parts) != 2 {
			continue
		}

		period, ok := timetable.PeriodAt(models.CollegeSHSMU, parts[1])
		if !ok {
			continue
		}

		start, err := time.ParseInLocation("2006-01-02T15:04:05", row.Start, timetable.Location())
		if err != nil {
			continue
		}

		// The listing numbers afternoon bells as if the lunch break were
		// a period; shift past it so the index lands on the bell table.
		startPeriod := period.ID
		if startPeriod >= 5 {
			startPeriod++
		}

		for i := 0; i < row.CourseCount; i++ {
			sections[pos].section.Schedules = append(sections[pos].section.Schedules, models.Schedule{
				ClassID:   classID,
				College:   models.CollegeSHSMU,
				Classroom: strings.TrimSpace(row.ClassroomAcademy),
				Day:       timetable.DayIndex(start),
				Period:    startPeriod + i,
				Week:      timetable.WeeksSince(start, semester.StartAt),
			})
		}
	}

	return sections, nil
}

// fetchCourseInfo fills in the teacher list, section name and owning
// unit, and coalesces the phase-1 marks. An empty detail response is a
// hard error: the section cannot be imported half-filled.
func (a *SHSMU) fetchCourseInfo(ctx context.Context, item shsmuSection) (models.CourseClassSchedule, error) {
	const op = "adapter.SHSMU.fetchCourseInfo"

	cookies := a.Account.HTTPCookies()

	var rows []shsmuCourseRow
	err := getJSON(ctx, a.Client, shsmuBaseURL+"/Home/GetCalendarTable", item.biz, cookies, &rows)
	if err != nil {
		return models.CourseClassSchedule{}, fmt.Errorf("%s: %w", op, err)
	}

	if len(rows) == 0 {
		return models.CourseClassSchedule{}, fmt.Errorf("%s: %w", op, response.ErrCourseInfoEmpty)
	}

	section := item.section

	var colleges, teachers []string
	for _, row := range rows {
		colleges = appendUnique(colleges, strings.TrimSpace(row.College))
		teachers = appendUnique(teachers, strings.TrimSpace(row.Teacher))
	}

	org := strings.Join(colleges, "，")
	section.Organization = &models.Organization{
		ID:      org,
		College: models.CollegeSHSMU,
		Name:    org,
	}
	section.Class.OrganizationID = &org
	section.Class.Teachers = teachers
	section.Class.Name = strings.TrimSpace(rows[0].CurriculumName)
	section.Schedules = coalesce.Runs(section.Schedules)

	return section, nil
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
