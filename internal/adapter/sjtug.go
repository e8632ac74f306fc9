package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"classtable-service/internal/auth"
	"classtable-service/internal/coalesce"
	"classtable-service/internal/models"
	"classtable-service/internal/timetable"
)

const (
	sjtugIndexURL     = "https://yjs.sjtu.edu.cn/gsapp/sys/wdkbapp/*default/index.do"
	sjtugSchedulesURL = "https://yjs.sjtu.edu.cn/gsapp/sys/wdkbapp/modules/xskcb/xspkjgcx.do"

	// Upstream leaves the room blank for unassigned classrooms.
	sjtugNoClassroom = "未排教室"
)

// SJTUG pulls the graduate timetable. Each raw row carries a week
// bitmask string: character i set to '1' means the row's day/period is
// occupied in week i.
type SJTUG struct {
	Client  *http.Client
	Account *auth.Account
}

func (a *SJTUG) College() models.College { return models.CollegeSJTUG }

type sjtugResponse struct {
	Datas sjtugDatas `json:"datas"`
	Code  string     `json:"code"`
}

type sjtugDatas struct {
	Xspkjgcx sjtugPage `json:"xspkjgcx"`
}

type sjtugPage struct {
	Rows []sjtugRow `json:"rows"`
}

type sjtugRow struct {
	Classroom  *string `json:"JASMC"`
	Day        int     `json:"XQ"`
	CourseName string  `json:"KCMC"`
	Teachers   string  `json:"JSXM"`
	Remark     *string `json:"KBBZ"`
	ClassID    string  `json:"BJDM"`
	ClassName  string  `json:"BJMC"`
	Period     int     `json:"JSJCDM"`
	CourseCode string  `json:"KCDM"`
	WeekMask   string  `json:"ZCBH"`
}

// termCode renders the semester the way the graduate system keys it:
// term 1 stays in the academic year, terms 2 and 3 roll into the next
// calendar year.
func termCode(semester models.Semester) string {
	year := semester.Year
	if semester.Semester != 1 {
		year = semester.Year + 1
	}

	var term string
	switch semester.Semester {
	case 1:
		term = "09"
	case 2:
		term = "02"
	case 3:
		term = "06"
	}

	return fmt.Sprintf("%d%s", year, term)
}

func (a *SJTUG) FetchSchedules(ctx context.Context, semester models.Semester) ([]models.CourseClassSchedule, error) {
	const op = "adapter.SJTUG.FetchSchedules"

	cookies := a.Account.HTTPCookies()

	if err := prime(ctx, a.Client, sjtugIndexURL, cookies); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var decoded sjtugResponse
	err := postForm(ctx, a.Client, sjtugSchedulesURL, url.Values{
		"XNXQDM": {termCode(semester)},
	}, cookies, &decoded)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows := decoded.Datas.Xspkjgcx.Rows

	// Rows for the same section come in several records (one per
	// day/period pattern); group them before expanding the bitmask.
	groupOrder := make([]string, 0)
	groups := make(map[string][]sjtugRow)
	for _, row := range rows {
		if _, seen := groups[row.ClassName]; !seen {
			groupOrder = append(groupOrder, row.ClassName)
		}
		groups[row.ClassName] = append(groups[row.ClassName], row)
	}

	colors := timetable.RandomColors(len(groupOrder))

	sections := make([]models.CourseClassSchedule, 0, len(groupOrder))
	for i, name := range groupOrder {
		group := groups[name]
		first := group[0]

		var marks []models.Schedule
		var remarks []models.ClassRemark

		for _, row := range group {
			classroom := sjtugNoClassroom
			if row.Classroom != nil {
				classroom = *row.Classroom
			}

			for week, ch := range row.WeekMask {
				if ch != '1' {
					continue
				}
				marks = append(marks, models.Schedule{
					ClassID:   row.ClassID,
					College:   models.CollegeSJTUG,
					Classroom: classroom,
					Day:       row.Day - 1,
					Period:    row.Period - 1,
					Week:      week,
				})

				if row.Remark != nil && !hasRemarkFor(remarks, row.ClassID) {
					remarks = append(remarks, models.ClassRemark{
						ClassID: row.ClassID,
						College: models.CollegeSJTUG,
						Remark:  *row.Remark,
					})
				}
			}
		}

		sections = append(sections, models.CourseClassSchedule{
			Course: models.Course{
				Code:    first.CourseCode,
				College: models.CollegeSJTUG,
				Name:    first.CourseName,
			},
			Class: models.Class{
				ID:         first.ClassID,
				College:    models.CollegeSJTUG,
				Color:      colors[i],
				CourseCode: first.CourseCode,
				Name:       first.ClassName,
				Code:       first.ClassName,
				Teachers:   strings.Split(first.Teachers, ","),
				Hours:      -1,
				Credits:    -1,
				SemesterID: semester.ID,
			},
			Schedules: coalesce.Runs(marks),
			Remarks:   remarks,
		})
	}

	return sections, nil
}

func hasRemarkFor(remarks []models.ClassRemark, classID string) bool {
	for _, r := range remarks {
		if r.ClassID == classID {
			return true
		}
	}
	return false
}
