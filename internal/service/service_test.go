package service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classtable-service/internal/auth"
	"classtable-service/internal/models"
	"classtable-service/internal/timetable"
	"classtable-service/pkg/response"
)

// --- fakes ---

type fakeStore struct {
	semesters []models.Semester
	infos     []models.ScheduleInfo
	links     []models.CanvasClass

	imported        []models.CourseClassSchedule
	importedCollege models.College
	deleteExisting  bool
}

func (f *fakeStore) UpsertSemesters(_ context.Context, semesters []models.Semester) error {
	f.semesters = semesters
	return nil
}

func (f *fakeStore) GetSemester(_ context.Context, college models.College, date time.Time) (*models.Semester, error) {
	for _, s := range f.semesters {
		if s.College == college && s.Contains(date) {
			out := s
			return &out, nil
		}
	}
	return nil, response.ErrNotFound
}

func (f *fakeStore) ListSemesters(_ context.Context, college models.College) ([]models.Semester, error) {
	var out []models.Semester
	for _, s := range f.semesters {
		if s.College == college {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) ImportSchedules(_ context.Context, college models.College, _ string, sections []models.CourseClassSchedule, deleteExisting bool) error {
	f.imported = sections
	f.importedCollege = college
	f.deleteExisting = deleteExisting
	return nil
}

func (f *fakeStore) GetScheduleInfos(_ context.Context, _ models.College, _ string, _, _ int) ([]models.ScheduleInfo, error) {
	return f.infos, nil
}

func (f *fakeStore) UpsertCanvasClass(_ context.Context, link *models.CanvasClass) error {
	f.links = append(f.links, *link)
	return nil
}

func (f *fakeStore) ListCanvasClasses(_ context.Context, _ models.College) ([]models.CanvasClass, error) {
	return f.links, nil
}

type fakeLocker struct {
	acquired bool
	lockKey  string
	unlocked bool
}

func (f *fakeLocker) Lock(_ context.Context, key string, _ time.Duration) (bool, error) {
	f.lockKey = key
	return f.acquired, nil
}

func (f *fakeLocker) Unlock(_ context.Context, _ string) error {
	f.unlocked = true
	return nil
}

type fakeAccounts struct {
	account *auth.Account
	saved   *auth.Account
}

func (f *fakeAccounts) Account(_ string) (*auth.Account, error) {
	if f.account == nil {
		return nil, auth.ErrAccountNotFound
	}
	return f.account, nil
}

func (f *fakeAccounts) Save(account *auth.Account) error {
	f.saved = account
	return nil
}

type fakeProvider struct {
	name   string
	status auth.Status
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) CheckSession(_ context.Context, _ []*http.Cookie) (auth.Status, error) {
	return f.status, nil
}

func (f *fakeProvider) RefreshSession(_ context.Context, _ *auth.Account) error { return nil }

type fakeSemesterSource struct {
	semesters []models.Semester
}

func (f *fakeSemesterSource) FetchSemesters(_ context.Context, college models.College) ([]models.Semester, error) {
	var out []models.Semester
	for _, s := range f.semesters {
		if s.College == college {
			out = append(out, s)
		}
	}
	return out, nil
}

// --- helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func semester(college models.College) models.Semester {
	return models.Semester{
		ID:       "2025-2026-1",
		College:  college,
		Year:     2025,
		Semester: 1,
		StartAt:  time.Date(2025, 9, 15, 0, 0, 0, 0, timetable.Location()),
		EndAt:    time.Date(2026, 1, 12, 0, 0, 0, 0, timetable.Location()),
	}
}

func tokenAccount() *auth.Account {
	return &auth.Account{
		ID:       "a1",
		Provider: "jaccount",
		Status:   auth.StatusConnected,
		Tokens: []auth.TokenForScopes{{
			Scopes: []string{"lessons"},
			AccessToken: auth.AccessToken{
				AccessToken: "tok",
				ExpiresAt:   float64(time.Now().Add(time.Hour).Unix()),
			},
		}},
	}
}

func cookieAccount(provider string) *auth.Account {
	return &auth.Account{
		ID:       "a2",
		Provider: provider,
		Status:   auth.StatusConnected,
		Cookies:  []auth.Cookie{{Name: "session", Value: "x", Domain: "example.com", Path: "/"}},
	}
}

type fixture struct {
	store    *fakeStore
	locker   *fakeLocker
	accounts *fakeAccounts
	client   *http.Client
	service  *Service
}

func newFixture(t *testing.T, college models.College, account *auth.Account) *fixture {
	t.Helper()

	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	t.Cleanup(httpmock.DeactivateAndReset)

	store := &fakeStore{}
	if college != models.CollegeCustom {
		store.semesters = []models.Semester{semester(college)}
	}
	locker := &fakeLocker{acquired: true}
	accounts := &fakeAccounts{account: account}
	providers := map[string]auth.Provider{
		"jaccount": &fakeProvider{name: "jaccount", status: auth.StatusConnected},
		"shsmu":    &fakeProvider{name: "shsmu", status: auth.StatusConnected},
	}

	service := New(testLogger(), store, locker, accounts, providers,
		&fakeSemesterSource{}, client)

	return &fixture{store: store, locker: locker, accounts: accounts, client: client, service: service}
}

func syncDate() time.Time {
	return time.Date(2025, 10, 1, 12, 0, 0, 0, timetable.Location())
}

// --- sync ---

func TestSyncSchedulesSJTU(t *testing.T) {
	f := newFixture(t, models.CollegeSJTU, tokenAccount())

	httpmock.RegisterResponder(http.MethodGet,
		"https://api.sjtu.edu.cn/v1/me/lessons/2025-2026-1",
		httpmock.NewStringResponder(200, `{
			"errno": 0, "error": "success", "total": 1,
			"entities": [{
				"name": "程序设计 (1)", "bsid": "b123", "code": "CS101-1",
				"course": {"code": "CS101", "name": "程序设计"},
				"teachers": [{"name": "张三"}],
				"organize": {"id": null, "name": null},
				"hours": 48, "credits": 3,
				"classes": [
					{"schedule": {"week": 1, "day": 0, "period": 0}, "classroom": {"name": "东上院101"}}
				]
			}]
		}`))

	trail, err := Collect(f.service.SyncSchedules(context.Background(), models.CollegeSJTU, syncDate(), true))
	require.NoError(t, err)

	var descriptions []string
	var values []float64
	for _, p := range trail {
		descriptions = append(descriptions, p.Description)
		values = append(values, p.Value)
	}
	assert.Equal(t, []string{"initializing", "fetching schedules", "importing", "done"}, descriptions)
	assert.Equal(t, []float64{0, 0.1, 0.6, 1}, values)

	require.Len(t, f.store.imported, 1)
	assert.Equal(t, models.CollegeSJTU, f.store.importedCollege)
	assert.True(t, f.store.deleteExisting)
	assert.True(t, f.locker.unlocked)
	assert.Equal(t, "sync:1:2025-2026-1", f.locker.lockKey)
}

func TestSyncSchedulesSJTUGChecksSession(t *testing.T) {
	f := newFixture(t, models.CollegeSJTUG, cookieAccount("jaccount"))

	httpmock.RegisterResponder(http.MethodGet,
		"https://yjs.sjtu.edu.cn/gsapp/sys/wdkbapp/*default/index.do",
		httpmock.NewStringResponder(200, "ok"))
	httpmock.RegisterResponder(http.MethodPost,
		"https://yjs.sjtu.edu.cn/gsapp/sys/wdkbapp/modules/xskcb/xspkjgcx.do",
		httpmock.NewStringResponder(200, `{"code": "0", "datas": {"xspkjgcx": {"rows": []}}}`))

	trail, err := Collect(f.service.SyncSchedules(context.Background(), models.CollegeSJTUG, syncDate(), false))
	require.NoError(t, err)

	var descriptions []string
	for _, p := range trail {
		descriptions = append(descriptions, p.Description)
	}
	assert.Equal(t, []string{"initializing", "checking session", "fetching schedules", "importing", "done"}, descriptions)
	assert.Equal(t, 0.2, trail[2].Value)
	assert.False(t, f.store.deleteExisting)
}

func TestSyncSchedulesSessionExpired(t *testing.T) {
	f := newFixture(t, models.CollegeSHSMU, cookieAccount("shsmu"))
	f.service.providers["shsmu"] = &fakeProvider{name: "shsmu", status: auth.StatusExpired}

	trail, err := Collect(f.service.SyncSchedules(context.Background(), models.CollegeSHSMU, syncDate(), true))
	require.Error(t, err)
	assert.ErrorIs(t, err, response.ErrSessionExpired)

	last := trail[len(trail)-1]
	assert.Equal(t, float64(-1), last.Value)

	// The account is marked expired so clients can prompt for re-auth.
	require.NotNil(t, f.accounts.saved)
	assert.Equal(t, auth.StatusExpired, f.accounts.saved.Status)
	assert.Empty(t, f.store.imported)
	assert.True(t, f.locker.unlocked)
}

func TestSyncSchedulesLockBusy(t *testing.T) {
	f := newFixture(t, models.CollegeSJTU, tokenAccount())
	f.locker.acquired = false

	trail, err := Collect(f.service.SyncSchedules(context.Background(), models.CollegeSJTU, syncDate(), true))
	require.Error(t, err)
	assert.ErrorIs(t, err, response.ErrLocked)
	assert.Equal(t, float64(-1), trail[len(trail)-1].Value)
	assert.False(t, f.locker.unlocked)
}

func TestSyncSchedulesNoAccount(t *testing.T) {
	f := newFixture(t, models.CollegeSJTU, nil)

	_, err := Collect(f.service.SyncSchedules(context.Background(), models.CollegeSJTU, syncDate(), true))
	require.Error(t, err)
	assert.ErrorIs(t, err, response.ErrNoAccount)
}

func TestSyncSchedulesCustomCollege(t *testing.T) {
	f := newFixture(t, models.CollegeCustom, nil)

	_, err := Collect(f.service.SyncSchedules(context.Background(), models.CollegeCustom, syncDate(), true))
	require.Error(t, err)
	assert.ErrorIs(t, err, response.ErrBadRequest)
}

func TestSyncSchedulesNoSemester(t *testing.T) {
	f := newFixture(t, models.CollegeSJTU, tokenAccount())
	f.store.semesters = nil

	_, err := Collect(f.service.SyncSchedules(context.Background(), models.CollegeSJTU, syncDate(), true))
	require.Error(t, err)
	assert.ErrorIs(t, err, response.ErrNoSemester)
}

// --- semesters ---

func TestSemesterRefreshesOnMiss(t *testing.T) {
	f := newFixture(t, models.CollegeSJTU, nil)
	f.store.semesters = nil
	f.service.semesters = &fakeSemesterSource{semesters: []models.Semester{semester(models.CollegeSJTU)}}

	got, err := f.service.Semester(context.Background(), models.CollegeSJTU, syncDate())
	require.NoError(t, err)
	assert.Equal(t, "2025-2026-1", got.ID)
}

func TestRefreshSemesters(t *testing.T) {
	f := newFixture(t, models.CollegeSJTU, nil)
	f.store.semesters = nil
	f.service.semesters = &fakeSemesterSource{semesters: []models.Semester{semester(models.CollegeSJTU)}}

	semesters, err := f.service.RefreshSemesters(context.Background(), models.CollegeSJTU)
	require.NoError(t, err)
	require.Len(t, semesters, 1)
	assert.Len(t, f.store.semesters, 1)
}

// --- read projections ---

func info(period, length int) models.ScheduleInfo {
	return models.ScheduleInfo{
		Schedule: models.Schedule{
			ClassID: "c1", College: models.CollegeSJTU,
			Day: 2, Period: period, Week: 2, IsStart: true, Length: length,
		},
		Class:  models.Class{ID: "c1", College: models.CollegeSJTU, Name: "程序设计 (1)"},
		Course: models.Course{Code: "CS101", College: models.CollegeSJTU, Name: "程序设计"},
	}
}

func TestDaySchedules(t *testing.T) {
	f := newFixture(t, models.CollegeSJTU, nil)
	f.store.infos = []models.ScheduleInfo{info(0, 2)}

	view, err := f.service.DaySchedules(context.Background(), models.CollegeSJTU, syncDate())
	require.NoError(t, err)

	// 2025-10-01 is the Wednesday of week 2 for a semester starting
	// Monday 2025-09-15.
	assert.Equal(t, 2, view.Week)
	assert.Equal(t, 2, view.Day)
	require.Len(t, view.Infos, 1)
}

func TestDaySchedulesNoSemester(t *testing.T) {
	f := newFixture(t, models.CollegeSJTU, nil)
	f.store.semesters = nil

	_, err := f.service.DaySchedules(context.Background(), models.CollegeSJTU, syncDate())
	require.Error(t, err)
	assert.ErrorIs(t, err, response.ErrNoSemester)
}

func TestUpcomingHasSchedules(t *testing.T) {
	f := newFixture(t, models.CollegeSJTU, nil)
	f.store.infos = []models.ScheduleInfo{info(0, 2), info(6, 1)}

	// 09:00: the morning block (finishes 9:40) and the afternoon one
	// are both still pending.
	now := time.Date(2025, 10, 1, 9, 0, 0, 0, timetable.Location())
	view, err := f.service.Upcoming(context.Background(), models.CollegeSJTU, now)
	require.NoError(t, err)
	assert.Equal(t, StatusHasSchedules, view.Status)
	assert.Len(t, view.Infos, 2)

	// 10:00: the morning block has finished.
	now = time.Date(2025, 10, 1, 10, 0, 0, 0, timetable.Location())
	view, err = f.service.Upcoming(context.Background(), models.CollegeSJTU, now)
	require.NoError(t, err)
	assert.Equal(t, StatusHasSchedules, view.Status)
	assert.Len(t, view.Infos, 1)
}

func TestUpcomingAllFinished(t *testing.T) {
	f := newFixture(t, models.CollegeSJTU, nil)
	f.store.infos = []models.ScheduleInfo{info(0, 2)}

	now := time.Date(2025, 10, 1, 23, 0, 0, 0, timetable.Location())
	view, err := f.service.Upcoming(context.Background(), models.CollegeSJTU, now)
	require.NoError(t, err)
	assert.Equal(t, StatusAllSchedulesFinished, view.Status)
	assert.Empty(t, view.Infos)
}

func TestUpcomingNoSchedules(t *testing.T) {
	f := newFixture(t, models.CollegeSJTU, nil)

	view, err := f.service.Upcoming(context.Background(), models.CollegeSJTU, syncDate())
	require.NoError(t, err)
	assert.Equal(t, StatusNoSchedules, view.Status)
}

func TestUpcomingNoSemester(t *testing.T) {
	f := newFixture(t, models.CollegeSJTU, nil)
	f.store.semesters = nil

	view, err := f.service.Upcoming(context.Background(), models.CollegeSJTU, syncDate())
	require.NoError(t, err)
	assert.Equal(t, StatusNoSemester, view.Status)
	assert.Nil(t, view.Semester)
}

// --- canvas links ---

func TestLinkCanvasClass(t *testing.T) {
	f := newFixture(t, models.CollegeSJTU, nil)

	err := f.service.LinkCanvasClass(context.Background(), models.CanvasClass{
		ID: "56789", College: models.CollegeSJTU, ClassID: "b123",
	})
	require.NoError(t, err)

	links, err := f.service.CanvasClasses(context.Background(), models.CollegeSJTU)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "56789", links[0].ID)
}

func TestLinkCanvasClassValidation(t *testing.T) {
	f := newFixture(t, models.CollegeSJTU, nil)

	err := f.service.LinkCanvasClass(context.Background(), models.CanvasClass{College: models.CollegeSJTU})
	require.Error(t, err)
	assert.ErrorIs(t, err, response.ErrBadRequest)
}
