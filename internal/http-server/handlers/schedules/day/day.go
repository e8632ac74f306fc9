package day

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

type DayProvider interface {
	DaySchedules(ctx context.Context, college models.College, date time.Time) (*service.DayView, error)
}

type Response struct {
	response.Response
	api.DayResponse
}

func New(log *slog.Logger, provider DayProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.schedules.day.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		college, ok := models.ParseCollege(r.URL.Query().Get("college"))
		if !ok {
			log.Error("unknown college", slog.String("college", r.URL.Query().Get("college")))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "unknown college"))
			return
		}

		date := time.Now().In(timetable.Location())
		if raw := r.URL.Query().Get("date"); raw != "" {
			parsed, err := timetable.ParseDate(raw)
			if err != nil {
				log.Error("Failed to parse date", sl.Err(err))
				w.WriteHeader(http.StatusBadRequest)
				render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "date must be YYYY-MM-DD"))
				return
			}
			date = parsed
		}

		view, err := provider.DaySchedules(r.Context(), college, date)

		if errors.Is(err, response.ErrNoSemester) {
			log.Error("no semester covers the date")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NO_SEMESTER), "no semester covers the date"))
			return
		}

		if err != nil {
			log.Error("Failed to load day schedules", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to load day schedules"))
			return
		}

		render.JSON(w, r, Response{
			DayResponse: api.DayResponse{
				Semester:  api.NewSemester(view.Semester),
				Week:      view.Week,
				Day:       view.Day,
				Schedules: api.NewScheduleBlocks(view.Infos),
			},
		})
	}
}
