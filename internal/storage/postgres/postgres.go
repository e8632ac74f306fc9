package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"classtable-service/internal/models"
	"classtable-service/pkg/response"
)

type Storage struct {
	db *sql.DB
}

func New(storagePath string) (*Storage, error) {
	const op = "storage.postgres.New"

	db, err := sql.Open("postgres", storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

func (s *Storage) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// Init creates the schema. Every table carries a composite unique key
// so that imports are plain insert-or-replace.
func (s *Storage) Init(ctx context.Context) error {
	const op = "storage.postgres.Init"

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS semesters (
			id TEXT NOT NULL,
			college INTEGER NOT NULL,
			year INTEGER NOT NULL,
			semester INTEGER NOT NULL,
			start_at TIMESTAMPTZ NOT NULL,
			end_at TIMESTAMPTZ NOT NULL,
			UNIQUE (id, college)
		)`,
		`CREATE TABLE IF NOT EXISTS organizations (
			id TEXT NOT NULL,
			college INTEGER NOT NULL,
			name TEXT NOT NULL,
			UNIQUE (id, college)
		)`,
		`CREATE TABLE IF NOT EXISTS courses (
			code TEXT NOT NULL,
			college INTEGER NOT NULL,
			name TEXT NOT NULL,
			UNIQUE (code, college)
		)`,
		`CREATE TABLE IF NOT EXISTS classes (
			id TEXT NOT NULL,
			college INTEGER NOT NULL,
			color TEXT NOT NULL,
			course_code TEXT NOT NULL,
			organization_id TEXT,
			name TEXT NOT NULL,
			code TEXT NOT NULL,
			teachers TEXT[] NOT NULL,
			hours REAL NOT NULL,
			credits REAL NOT NULL,
			semester_id TEXT NOT NULL,
			UNIQUE (id, college)
		)`,
		`CREATE TABLE IF NOT EXISTS schedules (
			class_id TEXT NOT NULL,
			college INTEGER NOT NULL,
			classroom TEXT NOT NULL,
			day INTEGER NOT NULL,
			period INTEGER NOT NULL,
			week INTEGER NOT NULL,
			is_start BOOLEAN NOT NULL,
			length INTEGER NOT NULL,
			UNIQUE (class_id, college, day, period, week)
		)`,
		`CREATE TABLE IF NOT EXISTS class_remarks (
			class_id TEXT NOT NULL,
			college INTEGER NOT NULL,
			remark TEXT NOT NULL,
			UNIQUE (class_id, college)
		)`,
		`CREATE TABLE IF NOT EXISTS canvas_lms (
			id TEXT NOT NULL,
			college INTEGER NOT NULL,
			class_id TEXT NOT NULL,
			UNIQUE (id, college)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return nil
}

// #### semesters ####

func (s *Storage) UpsertSemesters(ctx context.Context, semesters []models.Semester) error {
	const op = "storage.postgres.UpsertSemesters"

	for _, semester := range semesters {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO semesters (id, college, year, semester, start_at, end_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id, college)
			DO UPDATE
			SET year = EXCLUDED.year,
				semester = EXCLUDED.semester,
				start_at = EXCLUDED.start_at,
				end_at = EXCLUDED.end_at`,
			semester.ID,
			int(semester.College),
			semester.Year,
			semester.Semester,
			semester.StartAt,
			semester.EndAt,
		)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return nil
}

// GetSemester returns the semester whose half-open [start_at, end_at)
// interval contains the date.
func (s *Storage) GetSemester(ctx context.Context, college models.College, date time.Time) (*models.Semester, error) {
	const op = "storage.postgres.GetSemester"

	var semester models.Semester
	var collegeInt int

	err := s.db.QueryRowContext(ctx,
		`SELECT id, college, year, semester, start_at, end_at
		FROM semesters
		WHERE college=$1 AND start_at<=$2 AND end_at>$2`,
		int(college), date).
		Scan(
			&semester.ID,
			&collegeInt,
			&semester.Year,
			&semester.Semester,
			&semester.StartAt,
			&semester.EndAt,
		)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	semester.College = models.College(collegeInt)

	return &semester, nil
}

func (s *Storage) ListSemesters(ctx context.Context, college models.College) ([]models.Semester, error) {
	const op = "storage.postgres.ListSemesters"

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, college, year, semester, start_at, end_at
		FROM semesters
		WHERE college=$1
		ORDER BY start_at DESC`,
		int(college))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defer rows.Close()

	var semesters []models.Semester
	for rows.Next() {
		var semester models.Semester
		var collegeInt int

		err := rows.Scan(
			&semester.ID,
			&collegeInt,
			&semester.Year,
			&semester.Semester,
			&semester.StartAt,
			&semester.EndAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		semester.College = models.College(collegeInt)
		semesters = append(semesters, semester)
	}

	return semesters, nil
}

// #### schedule import ####

// DeleteSchedulesTx removes every schedule row of the given semester,
// resolved through the classes join.
func (s *Storage) DeleteSchedulesTx(ctx context.Context, tx *sql.Tx, college models.College, semesterID string) error {
	const op = "storage.postgres.DeleteSchedulesTx"

	_, err := tx.ExecContext(ctx,
		`DELETE FROM schedules
		WHERE college=$1 AND class_id IN (
			SELECT id FROM classes WHERE college=$1 AND semester_id=$2
		)`,
		int(college), semesterID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) UpsertOrganizationTx(ctx context.Context, tx *sql.Tx, org *models.Organization) error {
	const op = "storage.postgres.UpsertOrganizationTx"

	_, err := tx.ExecContext(ctx,
		`INSERT INTO organizations (id, college, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id, college)
		DO UPDATE SET name = EXCLUDED.name`,
		org.ID, int(org.College), org.Name)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapPqError(err))
	}

	return nil
}

func (s *Storage) UpsertCourseTx(ctx context.Context, tx *sql.Tx, course *models.Course) error {
	const op = "storage.postgres.UpsertCourseTx"

	_, err := tx.ExecContext(ctx,
		`INSERT INTO courses (code, college, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (code, college)
		DO UPDATE SET name = EXCLUDED.name`,
		course.Code, int(course.College), course.Name)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapPqError(err))
	}

	return nil
}

func (s *Storage) UpsertClassTx(ctx context.Context, tx *sql.Tx, class *models.Class) error {
	const op = "storage.postgres.UpsertClassTx"

	var orgID sql.NullString
	if class.OrganizationID != nil {
		orgID = sql.NullString{String: *class.OrganizationID, Valid: true}
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO classes
		(id, college, color, course_code, organization_id, name, code, teachers, hours, credits, semester_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id, college)
		DO UPDATE
		SET color = EXCLUDED.color,
			course_code = EXCLUDED.course_code,
			organization_id = EXCLUDED.organization_id,
			name = EXCLUDED.name,
			code = EXCLUDED.code,
			teachers = EXCLUDED.teachers,
			hours = EXCLUDED.hours,
			credits = EXCLUDED.credits,
			semester_id = EXCLUDED.semester_id`,
		class.ID,
		int(class.College),
		class.Color,
		class.CourseCode,
		orgID,
		class.Name,
		class.Code,
		pq.Array(class.Teachers),
		class.Hours,
		class.Credits,
		class.SemesterID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapPqError(err))
	}

	return nil
}

func (s *Storage) UpsertScheduleTx(ctx context.Context, tx *sql.Tx, schedule *models.Schedule) error {
	const op = "storage.postgres.UpsertScheduleTx"

	_, err := tx.ExecContext(ctx,
		`INSERT INTO schedules
		(class_id, college, classroom, day, period, week, is_start, length)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (class_id, college, day, period, week)
		DO UPDATE
		SET classroom = EXCLUDED.classroom,
			is_start = EXCLUDED.is_start,
			length = EXCLUDED.length`,
		schedule.ClassID,
		int(schedule.College),
		schedule.Classroom,
		schedule.Day,
		schedule.Period,
		schedule.Week,
		schedule.IsStart,
		schedule.Length,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapPqError(err))
	}

	return nil
}

func (s *Storage) UpsertClassRemarkTx(ctx context.Context, tx *sql.Tx, remark *models.ClassRemark) error {
	const op = "storage.postgres.UpsertClassRemarkTx"

	_, err := tx.ExecContext(ctx,
		`INSERT INTO class_remarks (class_id, college, remark)
		VALUES ($1, $2, $3)
		ON CONFLICT (class_id, college)
		DO UPDATE SET remark = EXCLUDED.remark`,
		remark.ClassID, int(remark.College), remark.Remark)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapPqError(err))
	}

	return nil
}

// ImportSchedules writes one fetched timetable in a single transaction:
// optionally drop the semester's previous schedule rows, then upsert
// every section top-down. Readers never observe a half-imported state.
func (s *Storage) ImportSchedules(ctx context.Context, college models.College, semesterID string, sections []models.CourseClassSchedule, deleteExisting bool) error {
	const op = "storage.postgres.ImportSchedules"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	if deleteExisting {
		if err := s.DeleteSchedulesTx(ctx, tx, college, semesterID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	for i := range sections {
		section := &sections[i]

		if section.Organization != nil {
			if err := s.UpsertOrganizationTx(ctx, tx, section.Organization); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
		if err := s.UpsertCourseTx(ctx, tx, &section.Course); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := s.UpsertClassTx(ctx, tx, &section.Class); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		for j := range section.Schedules {
			if err := s.UpsertScheduleTx(ctx, tx, &section.Schedules[j]); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
		for j := range section.Remarks {
			if err := s.UpsertClassRemarkTx(ctx, tx, &section.Remarks[j]); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// #### canvas links ####

func (s *Storage) UpsertCanvasClass(ctx context.Context, link *models.CanvasClass) error {
	const op = "storage.postgres.UpsertCanvasClass"

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO canvas_lms (id, college, class_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (id, college)
		DO UPDATE SET class_id = EXCLUDED.class_id`,
		link.ID, int(link.College), link.ClassID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapPqError(err))
	}

	return nil
}

func (s *Storage) ListCanvasClasses(ctx context.Context, college models.College) ([]models.CanvasClass, error) {
	const op = "storage.postgres.ListCanvasClasses"

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, college, class_id FROM canvas_lms WHERE college=$1`,
		int(college))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defer rows.Close()

	var links []models.CanvasClass
	for rows.Next() {
		var link models.CanvasClass
		var collegeInt int

		if err := rows.Scan(&link.ID, &collegeInt, &link.ClassID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		link.College = models.College(collegeInt)
		links = append(links, link)
	}

	return links, nil
}

// #### read projection ####

// GetScheduleInfos returns the renderable (is_start) blocks of one
// week/day for the college plus the custom bucket, in bell order.
func (s *Storage) GetScheduleInfos(ctx context.Context, college models.College, semesterID string, week, day int) ([]models.ScheduleInfo, error) {
	const op = "storage.postgres.GetScheduleInfos"

	rows, err := s.db.QueryContext(ctx,
		`SELECT
			sch.class_id, sch.college, sch.classroom, sch.day, sch.period, sch.week, sch.is_start, sch.length,
			cl.id, cl.college, cl.color, cl.course_code, cl.organization_id, cl.name, cl.code, cl.teachers, cl.hours, cl.credits, cl.semester_id,
			co.code, co.college, co.name
		FROM schedules sch
		JOIN classes cl ON cl.id = sch.class_id AND cl.college = sch.college
		JOIN courses co ON co.code = cl.course_code AND co.college = cl.college
		WHERE sch.week=$1
			AND sch.day=$2
			AND sch.is_start=TRUE
			AND sch.college IN ($3, $4)
			AND cl.semester_id=$5
		ORDER BY sch.period ASC`,
		week, day, int(models.CollegeCustom), int(college), semesterID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defer rows.Close()

	var infos []models.ScheduleInfo
	for rows.Next() {
		var info models.ScheduleInfo
		var schCollege, clCollege, coCollege int
		var orgID sql.NullString
		var teachers pq.StringArray

		err := rows.Scan(
			&info.Schedule.ClassID,
			&schCollege,
			&info.Schedule.Classroom,
			&info.Schedule.Day,
			&info.Schedule.Period,
			&info.Schedule.Week,
			&info.Schedule.IsStart,
			&info.Schedule.Length,
			&info.Class.ID,
			&clCollege,
			&info.Class.Color,
			&info.Class.CourseCode,
			&orgID,
			&info.Class.Name,
			&info.Class.Code,
			&teachers,
			&info.Class.Hours,
			&info.Class.Credits,
			&info.Class.SemesterID,
			&info.Course.Code,
			&coCollege,
			&info.Course.Name,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		info.Schedule.College = models.College(schCollege)
		info.Class.College = models.College(clCollege)
		info.Course.College = models.College(coCollege)
		info.Class.Teachers = teachers
		if orgID.Valid {
			info.Class.OrganizationID = &orgID.String
		}

		infos = append(infos, info)
	}

	return infos, nil
}

// mapPqError converts the constraint violations we care about into
// sentinels the service layer understands.
func mapPqError(err error) error {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return err
	}

	switch pqErr.Code {
	case "23503":
		return response.ErrNotFound
	default:
		return err
	}
}
