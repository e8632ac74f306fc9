package refresh

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"classtable-service/api"
	"classtable-service/internal/models"
	"classtable-service/pkg/response"
	"classtable-service/pkg/sl"
)

type SemesterRefresher interface {
	RefreshSemesters(ctx context.Context, college models.College) ([]models.Semester, error)
}

type Request struct {
	College string `json:"college"`
}

type Response struct {
	response.Response
	Semesters []api.Semester `json:"semesters"`
}

func New(log *slog.Logger, refresher SemesterRefresher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.semesters.refresh.New"

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

		college, ok := models.ParseCollege(req.College)
		if !ok {
			log.Error("unknown college", slog.String("college", req.College))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "unknown college"))
			return
		}

		semesters, err := refresher.RefreshSemesters(r.Context(), college)
		if err != nil {
			log.Error("Failed to refresh semesters", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to refresh semesters"))
			return
		}

		log.Info("Semesters refreshed", slog.String("college", college.String()), slog.Int("count", len(semesters)))

		out := make([]api.Semester, 0, len(semesters))
		for _, s := range semesters {
			out = append(out, api.NewSemester(s))
		}

		render.JSON(w, r, Response{Semesters: out})
	}
}
