package handlers

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/vango-go/resilios/pkg/core"
	"github.com/vango-go/resilios/pkg/core/mascot"
)

// MascotHandler serves the avatar illustrations.
type MascotHandler struct {
	Catalog *mascot.Catalog
	Logger  *slog.Logger
}

type mascotListResponse struct {
	Count int      `json:"count"`
	Files []string `json:"files"`
}

func (h MascotHandler) List(w http.ResponseWriter, r *http.Request) {
	names, err := h.Catalog.List()
	if err != nil {
		writeErr(w, r, h.Logger, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, mascotListResponse{Count: len(names), Files: names})
}

func (h MascotHandler) Random(w http.ResponseWriter, r *http.Request) {
	name, err := h.Catalog.Random()
	if err != nil {
		writeErr(w, r, h.Logger, err)
		return
	}
	h.serve(w, r, name)
}

// ByIndex serves the mascot at the path index. Out-of-range indexes are 404.
func (h MascotHandler) ByIndex(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeErr(w, r, h.Logger, core.NewInvalidRequestErrorWithParam("index must be an integer", "index"))
		return
	}
	names, err := h.Catalog.List()
	if err != nil {
		writeErr(w, r, h.Logger, err)
		return
	}
	if i < 0 || i >= len(names) {
		writeErr(w, r, h.Logger, core.NewNotFoundError("index out of range"))
		return
	}
	h.serve(w, r, names[i])
}

func (h MascotHandler) serve(w http.ResponseWriter, r *http.Request, name string) {
	f, err := h.Catalog.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeErr(w, r, h.Logger, core.NewNotFoundError("mascot not found"))
			return
		}
		writeErr(w, r, h.Logger, err)
		return
	}
	defer f.Close()

	modTime := time.Time{}
	if info, err := f.Stat(); err == nil {
		modTime = info.ModTime()
	}
	if rs, ok := f.(io.ReadSeeker); ok {
		http.ServeContent(w, r, name, modTime, rs)
		return
	}
	raw, err := io.ReadAll(f)
	if err != nil {
		writeErr(w, r, h.Logger, err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(raw))
	_, _ = w.Write(raw)
}
