package handlers

import (
	"net/http"

	"github.com/vango-go/resilios/pkg/core"
	"github.com/vango-go/resilios/pkg/gateway/mw"
)

// NotFoundHandler answers unmatched routes with the JSON error envelope.
type NotFoundHandler struct{}

func (NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	writeCoreErrorJSON(w, reqID, core.NewNotFoundError("no route for "+r.Method+" "+r.URL.Path), http.StatusNotFound)
}
