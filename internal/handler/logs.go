package handler

import (
	"net/http"
	"strconv"

	"fieldengine/internal/errlog"
	"fieldengine/internal/fielderr"
)

// HandleLogs implements GET /api/logs: the recent tail of the error log,
// the current rotation threshold, and the names of compressed archives.
// Grounded on the teacher's HandleLogsRecent, trimmed of the super_admin
// session check this domain has no auth surface for (spec.md Non-goals).
func HandleLogs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			WriteError(w, fielderr.New(fielderr.BadRequest, "method not allowed"))
			return
		}
		n := 50
		if v := r.URL.Query().Get("lines"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed < 1 {
				WriteError(w, fielderr.New(fielderr.BadRequest, "lines must be a positive integer"))
				return
			}
			if parsed > 500 {
				parsed = 500
			}
			n = parsed
		}

		lines, err := errlog.RecentLines(n)
		if err != nil {
			WriteError(w, fielderr.Wrap(fielderr.Internal, "failed to read error log", err))
			return
		}
		archives, err := errlog.ListArchives()
		if err != nil {
			WriteError(w, fielderr.Wrap(fielderr.Internal, "failed to list log archives", err))
			return
		}

		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"lines":          lines,
			"archives":       archives,
			"rotationSizeMB": errlog.GetRotationSizeMB(),
		})
	}
}

type logsRotationBody struct {
	RotationMB int `json:"rotation_mb"`
}

// HandleLogsRotation implements GET/PUT /api/logs/rotation: reads or sets
// the error log's rotation threshold in megabytes. Grounded on the
// teacher's HandleLogsRotation, same auth trim as HandleLogs.
func HandleLogsRotation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			WriteJSON(w, http.StatusOK, map[string]int{"rotation_mb": errlog.GetRotationSizeMB()})
		case http.MethodPut:
			var body logsRotationBody
			if err := ReadJSONBody(r, &body); err != nil {
				WriteError(w, fielderr.Wrap(fielderr.BadRequest, "malformed request body", err))
				return
			}
			if body.RotationMB < 1 || body.RotationMB > 10240 {
				WriteError(w, fielderr.New(fielderr.BadRequest, "rotation_mb must be between 1 and 10240"))
				return
			}
			errlog.SetRotationSizeMB(body.RotationMB)
			WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "rotation_mb": body.RotationMB})
		default:
			WriteError(w, fielderr.New(fielderr.BadRequest, "method not allowed"))
		}
	}
}
