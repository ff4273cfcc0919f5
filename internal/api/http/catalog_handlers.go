package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/processdojo/kiosk/internal/auth/middleware"
	"github.com/processdojo/kiosk/internal/content"
	"github.com/processdojo/kiosk/internal/videogate"
)

// GET /catalog
func CatalogHandler(cs *content.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tree, err := cs.Tree(r.Context())
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, tree)
	}
}

// POST /admin/catalog
func ImportCatalogHandler(cs *content.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c content.Catalog
		if !decode(w, r, &c) {
			return
		}
		out, err := cs.Import(r.Context(), c)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, out)
	}
}

type videoView struct {
	content.Video
	Completion  videogate.Completion `json:"completion"`
	CanTakeTest bool                 `json:"can_take_test"`
}

// GET /videos/{videoID}
// Opening the player counts as an access.
func VideoHandler(cs *content.SQLStore, gate *videogate.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := cs.GetVideo(r.Context(), chi.URLParam(r, "videoID"))
		if err != nil {
			fail(w, r, err)
			return
		}
		c, err := gate.MarkAccess(r.Context(), authmw.SubjectFromContext(r.Context()), v.ID)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, videoView{
			Video:       v,
			Completion:  c,
			CanTakeTest: c.IsCompleted && v.Test != nil && v.Test.IsActive,
		})
	}
}

// POST /videos/{videoID}/progress  { "percentage": 87.5 }
func VideoProgressHandler(gate *videogate.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Percentage *float64 `json:"percentage"`
		}
		if !decode(w, r, &req) {
			return
		}
		if req.Percentage == nil {
			badRequest(w, "percentage required")
			return
		}
		c, err := gate.UpdateProgress(r.Context(), authmw.SubjectFromContext(r.Context()),
			chi.URLParam(r, "videoID"), *req.Percentage)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, c)
	}
}
