package get

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

type CanvasLinkProvider interface {
	CanvasClasses(ctx context.Context, college models.College) ([]models.CanvasClass, error)
}

type Response struct {
	response.Response
	Links []api.CanvasLink `json:"links"`
}

func New(log *slog.Logger, provider CanvasLinkProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.lms.get.New"

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

		links, err := provider.CanvasClasses(r.Context(), college)
		if err != nil {
			log.Error("Failed to list links", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list links"))
			return
		}

		out := make([]api.CanvasLink, 0, len(links))
		for _, link := range links {
			out = append(out, api.NewCanvasLink(link))
		}

		render.JSON(w, r, Response{Links: out})
	}
}
