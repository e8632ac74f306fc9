package get

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
	"classtable-service/internal/timetable"
	"classtable-service/pkg/response"
	"classtable-service/pkg/sl"
)

type SemesterProvider interface {
	Semesters(ctx context.Context, college models.College) ([]models.Semester, error)
	Semester(ctx context.Context, college models.College, date time.Time) (*models.Semester, error)
}

type Response struct {
	response.Response
	Semesters []api.Semester `json:"semesters"`
}

// New lists stored semesters; with ?date= it resolves the single
// semester containing the date instead.
func New(log *slog.Logger, provider SemesterProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.semesters.get.New"

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

		if raw := r.URL.Query().Get("date"); raw != "" {
			date, err := timetable.ParseDate(raw)
			if err != nil {
				log.Error("Failed to parse date", sl.Err(err))
				w.WriteHeader(http.StatusBadRequest)
				render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "date must be YYYY-MM-DD"))
				return
			}

			semester, err := provider.Semester(r.Context(), college, date)

			if errors.Is(err, response.ErrNoSemester) {
				log.Error("no semester covers the date")
				w.WriteHeader(http.StatusNotFound)
				render.JSON(w, r, response.Error(string(response.NO_SEMESTER), "no semester covers the date"))
				return
			}

			if err != nil {
				log.Error("Failed to resolve semester", sl.Err(err))
				w.WriteHeader(http.StatusInternalServerError)
				render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to resolve semester"))
				return
			}

			render.JSON(w, r, Response{Semesters: []api.Semester{api.NewSemester(*semester)}})
			return
		}

		semesters, err := provider.Semesters(r.Context(), college)
		if err != nil {
			log.Error("Failed to list semesters", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list semesters"))
			return
		}

		out := make([]api.Semester, 0, len(semesters))
		for _, s := range semesters {
			out = append(out, api.NewSemester(s))
		}

		render.JSON(w, r, Response{Semesters: out})
	}
}
