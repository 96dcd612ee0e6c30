package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-miot/internal/host"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// maxQueryParamLen bounds IDs taken from the URL.
	maxQueryParamLen = 100
)

// handleGetEntityHistory returns recorded state changes for an entity,
// newest first.
//
// Query parameters:
//   - limit: maximum entries (default 50, max 200)
//   - since: RFC3339 timestamp, Unix seconds, or a lookback such as 1h or 7d
func (s *Server) handleGetEntityHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid entity ID")
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	since, err := parseSinceParam(r.URL.Query().Get("since"), time.Now())
	if err != nil {
		writeBadRequest(w, "invalid since timestamp")
		return
	}

	entries, err := s.runtime.History(r.Context(), id, limit, since)
	if err != nil {
		if errors.Is(err, host.ErrEntityNotFound) {
			writeNotFound(w, "entity not found")
			return
		}
		writeInternalError(w, "failed to load history")
		return
	}
	if entries == nil {
		entries = []host.HistoryEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entity_id": id,
		"history":   entries,
		"count":     len(entries),
	})
}

var (
	errInvalidLimit    = errors.New("invalid limit")
	errLimitTooLarge   = errors.New("limit exceeds maximum")
	errInvalidLookback = errors.New("invalid duration")
	errInvalidSince    = errors.New("since out of range")
)

// maxUnixSeconds is 9999-12-31T23:59:59Z.
const maxUnixSeconds = 253402300799

// lookbackUnits extends time.ParseDuration with calendar-ish suffixes.
var lookbackUnits = map[byte]time.Duration{
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
	'y': 365 * 24 * time.Hour,
}

func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	switch {
	case err != nil || limit <= 0:
		return 0, errInvalidLimit
	case limit > maxHistoryLimit:
		return 0, errLimitTooLarge
	}
	return limit, nil
}

// parseSinceParam accepts an RFC3339 timestamp, Unix seconds (fractions
// allowed), or a positive lookback relative to now such as 90m or 7d.
// An empty value means no lower bound.
func parseSinceParam(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		if !finite(secs) || math.Abs(secs) > maxUnixSeconds {
			return time.Time{}, errInvalidSince
		}
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(frac*float64(time.Second))).UTC(), nil
	}
	d, err := parseLookback(raw)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(-d).UTC(), nil
}

func parseLookback(raw string) (time.Duration, error) {
	if d, err := time.ParseDuration(raw); err == nil {
		if d <= 0 {
			return 0, errInvalidLookback
		}
		return d, nil
	}
	if len(raw) < 2 {
		return 0, errInvalidLookback
	}
	unit, ok := lookbackUnits[raw[len(raw)-1]]
	if !ok {
		return 0, errInvalidLookback
	}
	n, err := strconv.ParseFloat(raw[:len(raw)-1], 64)
	if err != nil || !finite(n) || n <= 0 || n > float64(math.MaxInt64)/float64(unit) {
		return 0, errInvalidLookback
	}
	return time.Duration(n * float64(unit)), nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
