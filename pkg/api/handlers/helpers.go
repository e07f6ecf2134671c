package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"huddle/pkg/logger"
	"huddle/pkg/service"
	"huddle/pkg/utils"
	"huddle/pkg/validation"
)

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Rate-limited responses carry a Retry-After header so clients can show
// an auto-clearing cooldown. Transient store failures come back as 503,
// signalling the client to retry rather than treat the data as lost.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		utils.JSONError(w, http.StatusBadRequest, verr.Error())
		return
	}
	var rerr *service.RateLimitedError
	if errors.As(err, &rerr) {
		secs := int(rerr.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		utils.JSONError(w, http.StatusTooManyRequests, rerr.Error())
		return
	}
	var berr *service.BlockedError
	if errors.As(err, &berr) {
		utils.JSONError(w, http.StatusUnprocessableEntity, berr.Error())
		return
	}
	if errors.Is(err, service.ErrForbidden) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	if errors.Is(err, service.ErrNotFound) {
		utils.JSONError(w, http.StatusNotFound, "not found")
		return
	}
	var terr *service.TransientStoreError
	if errors.As(err, &terr) {
		logger.Error("store_unavailable", zap.String("op", terr.Op), zap.Error(terr.Err))
		utils.JSONError(w, http.StatusServiceUnavailable, "sync paused, retry shortly")
		return
	}
	logger.Error("handler_error", zap.Error(err))
	utils.JSONError(w, http.StatusInternalServerError, "internal error")
}

// decodeJSON decodes the request body into v, reporting a uniform 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}
