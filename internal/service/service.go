// Package service is the sync and read core: it owns the
// fetch → coalesce → import pipeline and the projections the handlers
// serve. Collaborators come in through interfaces so tests can swap
// them out.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"classtable-service/internal/adapter"
	"classtable-service/internal/auth"
	"classtable-service/internal/lock"
	"classtable-service/internal/models"
	"classtable-service/internal/timetable"
	"classtable-service/pkg/response"
	"classtable-service/pkg/sl"
)

// Store is the persistence surface the service depends on.
type Store interface {
	UpsertSemesters(ctx context.Context, semesters []models.Semester) error
	GetSemester(ctx context.Context, college models.College, date time.Time) (*models.Semester, error)
	ListSemesters(ctx context.Context, college models.College) ([]models.Semester, error)
	ImportSchedules(ctx context.Context, college models.College, semesterID string, sections []models.CourseClassSchedule, deleteExisting bool) error
	GetScheduleInfos(ctx context.Context, college models.College, semesterID string, week, day int) ([]models.ScheduleInfo, error)
	UpsertCanvasClass(ctx context.Context, link *models.CanvasClass) error
	ListCanvasClasses(ctx context.Context, college models.College) ([]models.CanvasClass, error)
}

// SemesterSource fetches the published semester calendars.
type SemesterSource interface {
	FetchSemesters(ctx context.Context, college models.College) ([]models.Semester, error)
}

const syncLockTTL = 10 * time.Minute

type Service struct {
	log       *slog.Logger
	store     Store
	locker    lock.Locker
	accounts  auth.Store
	providers map[string]auth.Provider
	semesters SemesterSource
	client    *http.Client
}

func New(
	log *slog.Logger,
	store Store,
	locker lock.Locker,
	accounts auth.Store,
	providers map[string]auth.Provider,
	semesters SemesterSource,
	client *http.Client,
) *Service {
	return &Service{
		log:       log,
		store:     store,
		locker:    locker,
		accounts:  accounts,
		providers: providers,
		semesters: semesters,
		client:    client,
	}
}

// RefreshSemesters pulls the published calendar for the college and
// upserts it.
func (s *Service) RefreshSemesters(ctx context.Context, college models.College) ([]models.Semester, error) {
	const op = "service.Service.RefreshSemesters"

	semesters, err := s.semesters.FetchSemesters(ctx, college)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.UpsertSemesters(ctx, semesters); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return semesters, nil
}

// Semester resolves the semester containing the date, refreshing the
// calendar once when nothing is stored yet.
func (s *Service) Semester(ctx context.Context, college models.College, date time.Time) (*models.Semester, error) {
	const op = "service.Service.Semester"

	semester, err := s.store.GetSemester(ctx, college, date)
	if err == nil {
		return semester, nil
	}
	if !errors.Is(err, response.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.RefreshSemesters(ctx, college); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	semester, err = s.store.GetSemester(ctx, college, date)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNoSemester)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return semester, nil
}

func (s *Service) Semesters(ctx context.Context, college models.College) ([]models.Semester, error) {
	const op = "service.Service.Semesters"

	semesters, err := s.store.ListSemesters(ctx, college)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return semesters, nil
}

// SyncSchedules fetches the timetable of the semester containing date
// and imports it. Events arrive on the returned channel in order; the
// last one carries Value 1 on success or -1 with Err set on failure.
// The channel closes after the terminal event.
func (s *Service) SyncSchedules(ctx context.Context, college models.College, date time.Time, deleteExisting bool) <-chan Progress {
	events := make(chan Progress, 16)

	go func() {
		defer close(events)
		s.runSync(ctx, college, date, deleteExisting, events)
	}()

	return events
}

func (s *Service) runSync(ctx context.Context, college models.College, date time.Time, deleteExisting bool, events chan<- Progress) {
	const op = "service.Service.runSync"

	log := s.log.With(slog.String("op", op), slog.String("college", college.String()))

	fail := func(err error) {
		log.Error("sync failed", sl.Err(err))
		events <- Progress{Description: "failed", Value: -1, Err: err}
	}

	events <- Progress{Description: "initializing", Value: 0}

	providerName, ok := auth.ProviderFor(college)
	if !ok {
		fail(fmt.Errorf("%s: %w", op, response.ErrBadRequest))
		return
	}

	semester, err := s.Semester(ctx, college, date)
	if err != nil {
		fail(err)
		return
	}

	account, err := s.accounts.Account(providerName)
	if err != nil {
		if errors.Is(err, auth.ErrAccountNotFound) {
			fail(fmt.Errorf("%s: %w", op, response.ErrNoAccount))
			return
		}
		fail(fmt.Errorf("%s: %w", op, err))
		return
	}

	// A sync deletes and reinserts the semester's rows; two of them
	// running at once would corrupt the import.
	key := lock.SyncKey(college, semester.ID)
	acquired, err := s.locker.Lock(ctx, key, syncLockTTL)
	if err != nil {
		fail(fmt.Errorf("%s: %w", op, err))
		return
	}
	if !acquired {
		fail(fmt.Errorf("%s: %w", op, response.ErrLocked))
		return
	}
	defer func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), key); err != nil {
			log.Error("failed to release sync lock", sl.Err(err))
		}
	}()

	fetchValue := 0.1

	// Cookie-backed providers cannot refresh themselves, so an expired
	// session has to be caught before fetching.
	if college == models.CollegeSJTUG || college == models.CollegeSHSMU {
		events <- Progress{Description: "checking session", Value: 0.1}

		provider, ok := s.providers[providerName]
		if !ok {
			fail(fmt.Errorf("%s: unknown provider %q", op, providerName))
			return
		}

		status, err := provider.CheckSession(ctx, account.HTTPCookies())
		if err != nil {
			fail(fmt.Errorf("%s: %w", op, err))
			return
		}
		if status != auth.StatusConnected {
			account.Status = auth.StatusExpired
			if err := s.accounts.Save(account); err != nil {
				log.Error("failed to persist account status", sl.Err(err))
			}
			fail(fmt.Errorf("%s: %w", op, response.ErrSessionExpired))
			return
		}

		fetchValue = 0.2
	}

	events <- Progress{Description: "fetching schedules", Value: fetchValue}

	source := s.sourceFor(college, account, events)

	sections, err := source.FetchSchedules(ctx, *semester)
	if err != nil {
		fail(fmt.Errorf("%s: %w", op, err))
		return
	}

	importValue := 0.6
	if college == models.CollegeSHSMU {
		importValue = 0.8
	}
	events <- Progress{Description: "importing", Value: importValue}

	if err := s.store.ImportSchedules(ctx, college, semester.ID, sections, deleteExisting); err != nil {
		fail(fmt.Errorf("%s: %w", op, err))
		return
	}

	log.Info("sync finished", slog.Int("sections", len(sections)))
	events <- Progress{Description: "done", Value: 1}
}

// sourceFor builds a fresh adapter bound to the account. The
// medical-school source gets a hook translating its per-section
// round-trips into the 0.4..0.8 band.
func (s *Service) sourceFor(college models.College, account *auth.Account, events chan<- Progress) adapter.ScheduleSource {
	switch college {
	case models.CollegeSJTUG:
		return &adapter.SJTUG{Client: s.client, Account: account}
	case models.CollegeSHSMU:
		return &adapter.SHSMU{
			Client:  s.client,
			Account: account,
			Progress: func(done, total int) {
				events <- Progress{
					Description: "fetching course info",
					Value:       0.4 + 0.4*float64(done)/float64(total),
				}
			},
		}
	default:
		return &adapter.SJTU{Client: s.client, Account: account}
	}
}

// LinkCanvasClass upserts one LMS course link.
func (s *Service) LinkCanvasClass(ctx context.Context, link models.CanvasClass) error {
	const op = "service.Service.LinkCanvasClass"

	if link.ID == "" || link.ClassID == "" {
		return fmt.Errorf("%s: %w", op, response.ErrBadRequest)
	}

	if err := s.store.UpsertCanvasClass(ctx, &link); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Service) CanvasClasses(ctx context.Context, college models.College) ([]models.CanvasClass, error) {
	const op = "service.Service.CanvasClasses"

	links, err := s.store.ListCanvasClasses(ctx, college)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return links, nil
}

// DayView is one rendered day of the timetable.
type DayView struct {
	Semester models.Semester
	Week     int
	Day      int
	Infos    []models.ScheduleInfo
}

// DaySchedules projects the schedule blocks of the day containing date.
func (s *Service) DaySchedules(ctx context.Context, college models.College, date time.Time) (*DayView, error) {
	const op = "service.Service.DaySchedules"

	semester, err := s.store.GetSemester(ctx, college, date)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNoSemester)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	week := timetable.WeeksSince(date, semester.StartAt)
	day := timetable.DayIndex(date)

	infos, err := s.store.GetScheduleInfos(ctx, college, semester.ID, week, day)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &DayView{
		Semester: *semester,
		Week:     week,
		Day:      day,
		Infos:    infos,
	}, nil
}

// UpcomingStatus tells a widget-style client what today looks like.
type UpcomingStatus string

const (
	StatusNoSemester           UpcomingStatus = "no_semester"
	StatusNoSchedules          UpcomingStatus = "no_schedules"
	StatusAllSchedulesFinished UpcomingStatus = "all_schedules_finished"
	StatusHasSchedules         UpcomingStatus = "has_schedules"
)

// UpcomingView is the day's remaining blocks plus a status that
// distinguishes a free day from one that is simply over.
type UpcomingView struct {
	Status   UpcomingStatus
	Semester *models.Semester
	Week     int
	Day      int
	Infos    []models.ScheduleInfo
}

// Upcoming returns today's blocks that have not finished by now.
func (s *Service) Upcoming(ctx context.Context, college models.College, now time.Time) (*UpcomingView, error) {
	const op = "service.Service.Upcoming"

	semester, err := s.store.GetSemester(ctx, college, now)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return &UpcomingView{Status: StatusNoSemester}, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	week := timetable.WeeksSince(now, semester.StartAt)
	day := timetable.DayIndex(now)

	infos, err := s.store.GetScheduleInfos(ctx, college, semester.ID, week, day)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	view := &UpcomingView{
		Status:   StatusNoSchedules,
		Semester: semester,
		Week:     week,
		Day:      day,
	}
	if len(infos) == 0 {
		return view, nil
	}

	view.Status = StatusAllSchedulesFinished
	for _, info := range infos {
		if !scheduleFinished(college, info.Schedule, now) {
			view.Infos = append(view.Infos, info)
		}
	}
	if len(view.Infos) > 0 {
		view.Status = StatusHasSchedules
	}

	return view, nil
}

// scheduleFinished reports whether the block's last bell has rung. A
// block whose period is off the bell table counts as finished rather
// than lingering in the widget forever.
func scheduleFinished(college models.College, schedule models.Schedule, now time.Time) bool {
	lastPeriod := schedule.Period
	if schedule.Length > 0 {
		lastPeriod = schedule.Period + schedule.Length - 1
	}

	period, ok := timetable.PeriodByID(college, lastPeriod)
	if !ok {
		return true
	}

	finish, err := timetable.TimeOfDay(now, period.Finish)
	if err != nil {
		return true
	}

	return !finish.After(now)
}
