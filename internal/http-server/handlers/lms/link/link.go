package link

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"classtable-service/api"
	"classtable-service/internal/models"
	"classtable-service/pkg/response"
	"classtable-service/pkg/sl"
)

type CanvasLinker interface {
	LinkCanvasClass(ctx context.Context, link models.CanvasClass) error
}

type Request struct {
	api.CanvasLink
}

type Response struct {
	response.Response
	Link api.CanvasLink `json:"link"`
}

func New(log *slog.Logger, linker CanvasLinker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.lms.link.New"

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

		link := models.CanvasClass{
			ID:      req.ID,
			College: college,
			ClassID: req.ClassID,
		}

		err := linker.LinkCanvasClass(r.Context(), link)

		if errors.Is(err, response.ErrBadRequest) {
			log.Error("id and class_id are required")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "id and class_id are required"))
			return
		}

		if errors.Is(err, response.ErrNotFound) {
			log.Error("class not found")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "class not found"))
			return
		}

		if err != nil {
			log.Error("Failed to link class", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to link class"))
			return
		}

		log.Info("Class linked", slog.String("id", link.ID), slog.String("class_id", link.ClassID))

		render.JSON(w, r, Response{Link: req.CanvasLink})
	}
}
