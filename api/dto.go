package api

import (
	"time"

	"classtable-service/internal/models"
	"classtable-service/internal/service"
)

type SyncRequest struct {
	College        string `json:"college"`
	Date           string `json:"date,omitempty"`
	DeleteExisting *bool  `json:"delete_existing,omitempty"`
}

type ProgressEvent struct {
	Description string  `json:"description"`
	Value       float64 `json:"value"`
}

type SyncResult struct {
	Status   string          `json:"status"`
	Progress []ProgressEvent `json:"progress"`
}

type Semester struct {
	ID       string    `json:"id"`
	College  string    `json:"college"`
	Year     int       `json:"year"`
	Semester int       `json:"semester"`
	StartAt  time.Time `json:"start_at"`
	EndAt    time.Time `json:"end_at"`
}

// ScheduleBlock is one rendered block: a start row joined with its
// class and course.
type ScheduleBlock struct {
	ClassID    string   `json:"class_id"`
	CourseCode string   `json:"course_code"`
	CourseName string   `json:"course_name"`
	ClassName  string   `json:"class_name"`
	Color      string   `json:"color"`
	Classroom  string   `json:"classroom"`
	Teachers   []string `json:"teachers"`
	Day        int      `json:"day"`
	Period     int      `json:"period"`
	Week       int      `json:"week"`
	Length     int      `json:"length"`
}

type DayResponse struct {
	Semester  Semester        `json:"semester"`
	Week      int             `json:"week"`
	Day       int             `json:"day"`
	Schedules []ScheduleBlock `json:"schedules"`
}

type UpcomingResponse struct {
	Status    string          `json:"status"`
	Semester  *Semester       `json:"semester,omitempty"`
	Week      int             `json:"week"`
	Day       int             `json:"day"`
	Schedules []ScheduleBlock `json:"schedules"`
}

type CanvasLink struct {
	ID      string `json:"id"`
	College string `json:"college"`
	ClassID string `json:"class_id"`
}

func NewSemester(s models.Semester) Semester {
	return Semester{
		ID:       s.ID,
		College:  s.College.String(),
		Year:     s.Year,
		Semester: s.Semester,
		StartAt:  s.StartAt,
		EndAt:    s.EndAt,
	}
}

func NewScheduleBlock(info models.ScheduleInfo) ScheduleBlock {
	return ScheduleBlock{
		ClassID:    info.Class.ID,
		CourseCode: info.Course.Code,
		CourseName: info.Course.Name,
		ClassName:  info.Class.Name,
		Color:      info.Class.Color,
		Classroom:  info.Schedule.Classroom,
		Teachers:   info.Class.Teachers,
		Day:        info.Schedule.Day,
		Period:     info.Schedule.Period,
		Week:       info.Schedule.Week,
		Length:     info.Schedule.Length,
	}
}

func NewScheduleBlocks(infos []models.ScheduleInfo) []ScheduleBlock {
	blocks := make([]ScheduleBlock, 0, len(infos))
	for _, info := range infos {
		blocks = append(blocks, NewScheduleBlock(info))
	}
	return blocks
}

func NewProgressTrail(trail []service.Progress) []ProgressEvent {
	events := make([]ProgressEvent, 0, len(trail))
	for _, p := range trail {
		events = append(events, ProgressEvent{Description: p.Description, Value: p.Value})
	}
	return events
}

func NewCanvasLink(link models.CanvasClass) CanvasLink {
	return CanvasLink{
		ID:      link.ID,
		College: link.College.String(),
		ClassID: link.ClassID,
	}
}
