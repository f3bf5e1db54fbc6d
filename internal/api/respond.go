package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/coldpost/coldpost/internal/apperr"
	"github.com/coldpost/coldpost/internal/pkg/httputil"
)

// writeErr maps the error taxonomy onto HTTP statuses. Unclassified errors
// are logged and masked as 500s.
func writeErr(w http.ResponseWriter, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		httputil.InternalError(w, err)
		return
	}

	status := http.StatusInternalServerError
	switch ae.Kind {
	case apperr.Validation:
		status = http.StatusBadRequest
	case apperr.Auth:
		status = http.StatusUnauthorized
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.Precondition:
		status = http.StatusConflict
	case apperr.QuotaExceeded:
		status = http.StatusTooManyRequests
	}
	if status == http.StatusInternalServerError {
		httputil.InternalError(w, err)
		return
	}
	httputil.ErrorCode(w, status, string(ae.Kind), ae.Message)
}

// pagination reads page/page_size query params with sane defaults.
func pagination(r *http.Request) (limit, offset, page int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if size < 1 || size > 200 {
		size = 50
	}
	return size, (page - 1) * size, page
}
