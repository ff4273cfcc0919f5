package http

import (
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/processdojo/kiosk/internal/content"
	"github.com/processdojo/kiosk/internal/storage"
)

const maxVideoUpload = 2 << 30

// GET /videos/{videoID}/file
// Streams the stored video with range support when the blob is seekable.
func VideoFileHandler(cs *content.SQLStore, bs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := cs.GetVideo(r.Context(), chi.URLParam(r, "videoID"))
		if err != nil {
			fail(w, r, err)
			return
		}
		if v.FileKey == "" {
			fail(w, r, errors.Wrapf(storage.ErrNotFound, "video %s has no file", v.ID))
			return
		}
		rc, err := bs.Get(v.FileKey)
		if err != nil {
			fail(w, r, err)
			return
		}
		defer rc.Close()

		ct := mime.TypeByExtension(path.Ext(v.FileKey))
		if ct == "" {
			ct = "application/octet-stream"
		}
		w.Header().Set("Content-Type", ct)
		if rs, seekable := rc.(io.ReadSeeker); seekable {
			http.ServeContent(w, r, path.Base(v.FileKey), time.Time{}, rs)
			return
		}
		_, _ = io.Copy(w, rc)
	}
}

// POST /admin/videos/{videoID}/file (multipart, field "file")
func UploadVideoFileHandler(cs *content.SQLStore, bs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		videoID := chi.URLParam(r, "videoID")
		if _, err := cs.GetVideo(r.Context(), videoID); err != nil {
			fail(w, r, err)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxVideoUpload)
		f, hdr, err := r.FormFile("file")
		if err != nil {
			badRequest(w, "file required")
			return
		}
		defer f.Close()

		ext := strings.ToLower(path.Ext(hdr.Filename))
		if ext == "" {
			ext = ".mp4"
		}
		key, err := bs.Put("videos/"+videoID+ext, f)
		if err != nil {
			fail(w, r, err)
			return
		}
		if err := cs.SetVideoFile(r.Context(), videoID, key); err != nil {
			fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, map[string]string{"file_key": key})
	}
}
