// Package handler implements the HTTP surface of spec.md §6: the two
// field-chunk endpoints plus a health check, built on the teacher's
// WriteJSON/WriteError/ReadJSONBody envelope helpers.
package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"fieldengine/internal/errlog"
	"fieldengine/internal/fielderr"
)

// WriteJSON encodes data as JSON and writes it to the response with the
// given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes the §6/§7 error envelope for err, picking the HTTP
// status from its fielderr.Kind (defaulting to Internal/500 for any error
// that isn't a *fielderr.Error).
func WriteError(w http.ResponseWriter, err error) {
	kind := fielderr.KindOf(err)
	if fielderr.Status(kind) >= 500 {
		errlog.LogKind(string(kind), err)
	}
	WriteJSON(w, fielderr.Status(kind), map[string]interface{}{
		"success": false,
		"error": map[string]string{
			"kind":    string(kind),
			"message": err.Error(),
		},
	})
}

// ReadJSONBody decodes the request body as JSON into v. It validates
// Content-Type, limits body size to 1MB, and rejects trailing data.
func ReadJSONBody(r *http.Request, v interface{}) error {
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("expected Content-Type application/json")
	}
	defer r.Body.Close()
	limited := io.LimitReader(r.Body, 1<<20)
	decoder := json.NewDecoder(limited)
	if err := decoder.Decode(v); err != nil {
		return err
	}
	if decoder.More() {
		return fmt.Errorf("unexpected trailing data in request body")
	}
	return nil
}

// round2 rounds x to 2 decimal places, for the meta fields of §6.
func round2(x float64) float64 {
	return roundN(x, 100)
}

// round3 rounds x to 3 decimal places, for the weights fields of §6.
func round3(x float64) float64 {
	return roundN(x, 1000)
}

func roundN(x float64, scale float64) float64 {
	if x >= 0 {
		return float64(int64(x*scale+0.5)) / scale
	}
	return float64(int64(x*scale-0.5)) / scale
}
