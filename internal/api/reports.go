package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/techscire/scirecount-core/internal/device"
)

// dateOnlyLayout is the short form accepted for startDate and endDate.
const dateOnlyLayout = "2006-01-02"

// handleReports queries the reading history.
//
// Query parameters: deviceId (exact match), startDate and endDate (RFC 3339
// or YYYY-MM-DD, applied only when both are given), limit (at most 100).
// A date-only endDate covers that whole day.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := device.HistoryFilter{DeviceID: q.Get("deviceId")}

	if v := q.Get("startDate"); v != "" {
		start, err := parseReportDate(v, false)
		if err != nil {
			writeBadRequest(w, "invalid startDate: "+err.Error())
			return
		}
		filter.Start = &start
	}
	if v := q.Get("endDate"); v != "" {
		end, err := parseReportDate(v, true)
		if err != nil {
			writeBadRequest(w, "invalid endDate: "+err.Error())
			return
		}
		filter.End = &end
	}
	if filter.HasRange() && filter.End.Before(*filter.Start) {
		writeBadRequest(w, "endDate is before startDate")
		return
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	readings, err := s.history.Query(r.Context(), filter)
	if err != nil {
		s.logger.Error("querying history", "device_id", filter.DeviceID, "error", err)
		writeInternalError(w, "failed to query history")
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

// parseReportDate accepts RFC 3339 or YYYY-MM-DD. With endOfDay set, a
// date-only value resolves to the last instant of that UTC day.
func parseReportDate(v string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateOnlyLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("want RFC 3339 or %s, got %q", dateOnlyLayout, v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Microsecond)
	}
	return t, nil
}
