package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/fitconvapp/fitconv-server/internal/errors"
)

const uploadForm = `<!DOCTYPE html>
<html>
<head><title>FIT to CSV</title></head>
<body>
<h1>Upload a FIT file</h1>
<form action="/upload" method="post" enctype="multipart/form-data">
    <input type="file" name="fitfile" accept=".fit" required>
    <label style="display:block;margin-top:8px">
        <input type="checkbox" name="transform" checked> Transform for readability
    </label>
    <button type="submit" style="margin-top:8px">Upload &amp; Convert</button>
</form>
</body>
</html>
`

// maxUploadBytes bounds a single multipart upload.
const maxUploadBytes = 64 << 20

// handleUploadForm serves the minimal upload page.
func (s *Server) handleUploadForm(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, uploadForm)
}

// handleUpload accepts a FIT file, lands it in the inbox, converts it
// synchronously, and streams the CSV back as an attachment.
//
// The upload is written via temp file + rename so the watch loop sees a
// single settled create. The watcher pass that follows re-converts the same
// input and retires it from the inbox; conversion is idempotent and the
// artifact publish is an atomic rename, so the two passes cannot interleave
// half-written output.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("fitfile")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing fitfile upload", s.log)
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "" || name == "." || !strings.EqualFold(filepath.Ext(name), ".fit") {
		writeError(w, http.StatusBadRequest, "only .fit files are accepted", s.log)
		return
	}

	dest := filepath.Join(s.inbox, name)
	if err := saveUpload(file, dest); err != nil {
		s.log.Error("failed to store upload", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store upload", s.log)
		return
	}

	// Unchecked boxes are absent from the form payload entirely.
	transform := r.FormValue("transform") != ""

	res, err := s.conv.ConvertWith(r.Context(), dest, transform)
	if err != nil {
		s.log.Warn("upload conversion failed", "name", name, "error", err)
		writeDomainError(w, err, s.log)
		return
	}

	s.log.Info("upload converted",
		"name", name,
		"artifact", filepath.Base(res.ArtifactPath),
		"rows", res.Rows,
	)

	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filepath.Base(res.ArtifactPath)))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	http.ServeFile(w, r, res.ArtifactPath)
}

// handleHealthz is the liveness probe.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.log)
}

// handleStatus reports pipeline activity counts and lifecycle state.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		writeDomainError(w, errors.Unavailable("pipeline not running"), s.log)
		return
	}
	writeJSON(w, http.StatusOK, s.stats.Stats(), s.log)
}

// saveUpload writes the upload next to its final inbox name and renames it
// into place, so the file never appears in the inbox half-written.
func saveUpload(src io.Reader, dest string) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return err
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if _, err := io.Copy(tmp, src); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
