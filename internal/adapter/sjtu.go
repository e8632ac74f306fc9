package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"classtable-service/internal/auth"
	"classtable-service/internal/coalesce"
	"classtable-service/internal/models"
	"classtable-service/internal/timetable"
)

const sjtuLessonsURL = "https://api.sjtu.edu.cn/v1/me/lessons"

// SJTU pulls the undergraduate timetable from the campus OpenAPI: one
// bearer-token call returns every enrolled section with explicit
// (week, day, period) meeting triples.
type SJTU struct {
	Client  *http.Client
	Account *auth.Account
}

func (a *SJTU) College() models.College { return models.CollegeSJTU }

// Wire structs follow the OpenAPI JSON exactly.
type openAPIResponse[T any] struct {
	Entities []T    `json:"entities"`
	Errno    int    `json:"errno"`
	Error    string `json:"error"`
	Total    int    `json:"total"`
}

type sjtuLesson struct {
	Name     string        `json:"name"`
	Kind     string        `json:"kind"`
	Bsid     string        `json:"bsid"`
	Code     string        `json:"code"`
	Course   sjtuCourse    `json:"course"`
	Teachers []sjtuTeacher `json:"teachers"`
	Organize sjtuOrganize  `json:"organize"`
	Hours    float64       `json:"hours"`
	Credits  float64       `json:"credits"`
	Classes  []sjtuClass   `json:"classes"`
}

type sjtuCourse struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type sjtuTeacher struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type sjtuOrganize struct {
	ID   *string `json:"id"`
	Name *string `json:"name"`
}

type sjtuClass struct {
	Schedule  sjtuMeeting   `json:"schedule"`
	Classroom sjtuClassroom `json:"classroom"`
}

type sjtuMeeting struct {
	Kind   string `json:"kind"`
	Week   int    `json:"week"`
	Day    int    `json:"day"`
	Period int    `json:"period"`
}

type sjtuClassroom struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func (a *SJTU) FetchSchedules(ctx context.Context, semester models.Semester) ([]models.CourseClassSchedule, error) {
	const op = "adapter.SJTU.FetchSchedules"

	token, err := a.Account.Token(ctx, a.Client, []string{"lessons"})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lessonsURL := fmt.Sprintf("%s/%d-%d-%d", sjtuLessonsURL, semester.Year, semester.Year+1, semester.Semester)

	var decoded openAPIResponse[sjtuLesson]
	err = getJSON(ctx, a.Client, lessonsURL, url.Values{
		"access_token": {token.AccessToken},
	}, nil, &decoded)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	colors := timetable.RandomColors(len(decoded.Entities))

	sections := make([]models.CourseClassSchedule, 0, len(decoded.Entities))
	for i, entity := range decoded.Entities {
		marks := make([]models.Schedule, 0, len(entity.Classes))
		for _, meeting := range entity.Classes {
			marks = append(marks, models.Schedule{
				ClassID:   entity.Bsid,
				College:   models.CollegeSJTU,
				Classroom: meeting.Classroom.Name,
				Day:       meeting.Schedule.Day,
				Period:    meeting.Schedule.Period,
				Week:      meeting.Schedule.Week,
			})
		}

		teachers := make([]string, 0, len(entity.Teachers))
		for _, t := range entity.Teachers {
			teachers = append(teachers, t.Name)
		}

		section := models.CourseClassSchedule{
			Course: models.Course{
				Code:    entity.Course.Code,
				College: models.CollegeSJTU,
				Name:    entity.Course.Name,
			},
			Class: models.Class{
				ID:             entity.Bsid,
				College:        models.CollegeSJTU,
				Color:          colors[i],
				CourseCode:     entity.Course.Code,
				OrganizationID: entity.Organize.ID,
				Name:           entity.Name,
				Code:           entity.Code,
				Teachers:       teachers,
				Hours:          entity.Hours,
				Credits:        entity.Credits,
				SemesterID:     semester.ID,
			},
			Schedules: coalesce.Runs(marks),
		}
		if entity.Organize.ID != nil && entity.Organize.Name != nil {
			section.Organization = &models.Organization{
				ID:      *entity.Organize.ID,
				College: models.CollegeSJTU,
				Name:    *entity.Organize.Name,
			}
		}

		sections = append(sections, section)
	}

	return sections, nil
}
