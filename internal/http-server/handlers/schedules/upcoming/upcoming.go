package upcoming

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

type UpcomingProvider interface {
	Upcoming(ctx context.Context, college models.College, now time.Time) (*service.UpcomingView, error)
}

type Response struct {
	response.Response
	api.UpcomingResponse
}

func New(log *slog.Logger, provider UpcomingProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.schedules.upcoming.New"

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

		now := time.Now().In(timetable.Location())
		if raw := r.URL.Query().Get("at"); raw != "" {
			parsed, err := time.ParseInLocation(time.RFC3339, raw, timetable.Location())
			if err != nil {
				log.Error("Failed to parse at", sl.Err(err))
				w.WriteHeader(http.StatusBadRequest)
				render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "at must be RFC3339"))
				return
			}
			now = parsed
		}

		view, err := provider.Upcoming(r.Context(), college, now)

		if errors.Is(err, response.ErrNoSemester) {
			// Vacation is a status, not an error; Upcoming normally maps
			// it itself, this is a fallback.
			render.JSON(w, r, Response{
				UpcomingResponse: api.UpcomingResponse{Status: string(service.StatusNoSemester)},
			})
			return
		}

		if err != nil {
			log.Error("Failed to load upcoming schedules", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to load upcoming schedules"))
			return
		}

		resp := api.UpcomingResponse{
			Status:    string(view.Status),
			Week:      view.Week,
			Day:       view.Day,
			Schedules: api.NewScheduleBlocks(view.Infos),
		}
		if view.Semester != nil {
			semester := api.NewSemester(*view.Semester)
			resp.Semester = &semester
		}

		render.JSON(w, r, Response{UpcomingResponse: resp})
	}
}
