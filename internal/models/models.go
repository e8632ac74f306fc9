package models

import "time"

// College identifies the institution a record belongs to. The integer
// values are part of the persisted schema, do not renumber.
type College int

const (
	CollegeCustom College = 0
	CollegeSJTU   College = 1
	CollegeSHSMU  College = 2
	CollegeSJTUG  College = 3
)

func (c College) String() string {
	switch c {
	case CollegeCustom:
		return "custom"
	case CollegeSJTU:
		return "sjtu"
	case CollegeSHSMU:
		return "shsmu"
	case CollegeSJTUG:
		return "sjtug"
	default:
		return "unknown"
	}
}

// ParseCollege maps the public name back to a College.
func ParseCollege(s string) (College, bool) {
	switch s {
	case "custom":
		return CollegeCustom, true
	case "sjtu":
		return CollegeSJTU, true
	case "shsmu":
		return CollegeSHSMU, true
	case "sjtug":
		return CollegeSJTUG, true
	default:
		return 0, false
	}
}

// Semester is a half-open date interval [StartAt, EndAt).
type Semester struct {
	ID       string    `db:"id"`
	College  College   `db:"college"`
	Year     int       `db:"year"`
	Semester int       `db:"semester"`
	StartAt  time.Time `db:"start_at"`
	EndAt    time.Time `db:"end_at"`
}

// Contains reports whether the date falls inside the semester.
func (s Semester) Contains(date time.Time) bool {
	return !s.StartAt.After(date) && s.EndAt.After(date)
}

type Organization struct {
	ID      string  `db:"id"`
	College College `db:"college"`
	Name    string  `db:"name"`
}

type Course struct {
	Code    string  `db:"code"`
	College College `db:"college"`
	Name    string  `db:"name"`
}

// Class is one enrolled teaching section of a course.
type Class struct {
	ID             string   `db:"id"`
	College        College  `db:"college"`
	Color          string   `db:"color"`
	CourseCode     string   `db:"course_code"`
	OrganizationID *string  `db:"organization_id"`
	Name           string   `db:"name"`
	Code           string   `db:"code"`
	Teachers       []string `db:"teachers"`
	Hours          float64  `db:"hours"`
	Credits        float64  `db:"credits"`
	SemesterID     string   `db:"semester_id"`
}

type ClassRemark struct {
	ClassID string  `db:"class_id"`
	College College `db:"college"`
	Remark  string  `db:"remark"`
}

// Schedule is one occupied period block. Only IsStart rows are rendered;
// Length counts consecutive periods in the same day/week/classroom run,
// continuation rows carry Length 0.
type Schedule struct {
	ClassID   string  `db:"class_id"`
	College   College `db:"college"`
	Classroom string  `db:"classroom"`
	Day       int     `db:"day"`
	Period    int     `db:"period"`
	Week      int     `db:"week"`
	IsStart   bool    `db:"is_start"`
	Length    int     `db:"length"`
}

// CanvasClass links a section to an external LMS course id.
type CanvasClass struct {
	ID      string  `db:"id"`
	College College `db:"college"`
	ClassID string  `db:"class_id"`
}

// CourseClassSchedule is the transient per-section value adapters emit;
// it only reaches the store through the merge/upsert path.
type CourseClassSchedule struct {
	Course       Course
	Class        Class
	Schedules    []Schedule
	Organization *Organization
	Remarks      []ClassRemark
}

// ScheduleInfo is the read projection joining a schedule row with its
// class and course.
type ScheduleInfo struct {
	Schedule Schedule
	Class    Class
	Course   Course
}
