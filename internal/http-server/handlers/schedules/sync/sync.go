package sync

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"classtable-service/api"
	"classtable-service/internal/models"
	"classtable-service/internal/service"
	"classtable-service/internal/timetable"
	"classtable-service/pkg/response"
	"classtable-service/pkg/sl"
)

type ScheduleSyncer interface {
	SyncSchedules(ctx context.Context, college models.College, date time.Time, deleteExisting bool) <-chan service.Progress
}

type Request struct {
	api.SyncRequest
}

type Response struct {
	response.Response
	api.SyncResult
}

func New(log *slog.Logger, syncer ScheduleSyncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.schedules.sync.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
			return
		}

		log.Info("Request body decoded", slog.Any("request", req))

		college, ok := models.ParseCollege(req.College)
		if !ok || college == models.CollegeCustom {
			log.Error("unknown or unsyncable college", slog.String("college", req.College))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "college must be sjtu, sjtug or shsmu"))
			return
		}

		date := time.Now().In(timetable.Location())
		if req.Date != "" {
			parsed, err := timetable.ParseDate(req.Date)
			if err != nil {
				log.Error("Failed to parse date", sl.Err(err))
				w.WriteHeader(http.StatusBadRequest)
				render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "date must be YYYY-MM-DD"))
				return
			}
			date = parsed
		}

		deleteExisting := true
		if req.DeleteExisting != nil {
			deleteExisting = *req.DeleteExisting
		}

		trail, err := service.Collect(syncer.SyncSchedules(r.Context(), college, date, deleteExisting))

		if errors.Is(err, response.ErrSessionExpired) {
			log.Error("session expired")
			w.WriteHeader(http.StatusUnauthorized)
			render.JSON(w, r, syncError(response.SESSION_EXPIRED, "session expired, re-authenticate", trail))
			return
		}

		if errors.Is(err, response.ErrNoAccount) {
			log.Error("no linked account")
			w.WriteHeader(http.StatusUnauthorized)
			render.JSON(w, r, syncError(response.NO_ACCOUNT, "no linked account for college", trail))
			return
		}

		if errors.Is(err, response.ErrLocked) {
			log.Error("sync already running")
			w.WriteHeader(http.StatusLocked)
			render.JSON(w, r, syncError(response.LOCKED, "sync already running", trail))
			return
		}

		if errors.Is(err, response.ErrNoSemester) {
			log.Error("no semester covers the date")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, syncError(response.NO_SEMESTER, "no semester covers the date", trail))
			return
		}

		if err != nil {
			log.Error("Failed to sync schedules", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, syncError(response.FAILED_REQUEST, "failed to sync schedules", trail))
			return
		}

		log.Info("Schedules synced", slog.String("college", college.String()))

		render.JSON(w, r, Response{
			SyncResult: api.SyncResult{
				Status:   "done",
				Progress: api.NewProgressTrail(trail),
			},
		})
	}
}

func syncError(code response.ErrCode, msg string, trail []service.Progress) Response {
	return Response{
		Response: response.Error(string(code), msg),
		SyncResult: api.SyncResult{
			Status:   "failed",
			Progress: api.NewProgressTrail(trail),
		},
	}
}
