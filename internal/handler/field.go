package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"fieldengine/internal/coordinator"
	"fieldengine/internal/errlog"
	"fieldengine/internal/fielderr"
	"fieldengine/internal/mixture"
	"fieldengine/internal/vectorstore"
)

// App binds the request coordinator the field-chunk handlers delegate to.
type App struct {
	Coordinator *coordinator.Coordinator
}

// NewApp returns an App backed by c.
func NewApp(c *coordinator.Coordinator) *App {
	return &App{Coordinator: c}
}

// artworkPayload is one artwork as rendered over the wire, per spec §6.
type artworkPayload struct {
	ID               int32    `json:"id"`
	ObjectID         string   `json:"objectId"`
	Title            string   `json:"title"`
	Artist           string   `json:"artist"`
	ImageURL         string   `json:"imageUrl"`
	OriginalImageURL string   `json:"originalImageUrl"`
	ImageSource      *string  `json:"imageSource"`
	Similarity       *float64 `json:"similarity"`
	Source           string   `json:"source"`
}

func imageSourceFor(a *vectorstore.Artwork) (url string, source *string) {
	s3 := "s3"
	metSmall := "met_small"
	metOriginal := "met_original"
	switch {
	case a.LocalImageURL != "":
		return a.LocalImageURL, &s3
	case a.SmallImageURL != "":
		return a.SmallImageURL, &metSmall
	case a.OriginalImageURL != "":
		return a.OriginalImageURL, &metOriginal
	default:
		return "", nil
	}
}

func buildPayload(items []coordinator.ResultItem, artworks map[int32]*vectorstore.Artwork) []artworkPayload {
	out := make([]artworkPayload, 0, len(items))
	for _, it := range items {
		a, ok := artworks[it.ID]
		if !ok {
			continue
		}
		imageURL, imageSource := imageSourceFor(a)
		out = append(out, artworkPayload{
			ID:               a.ID,
			ObjectID:         a.ObjectID,
			Title:            a.Title,
			Artist:           a.Artist,
			ImageURL:         imageURL,
			OriginalImageURL: a.OriginalImageURL,
			ImageSource:      imageSource,
			Similarity:       it.Similarity,
			Source:           string(it.Source),
		})
	}
	return out
}

func weightsPayload(w mixture.Weights) map[string]float64 {
	return map[string]float64{
		"sim":   round3(w.Sim),
		"drift": round3(w.Drift),
		"rand":  round3(w.Rand),
	}
}

func parseIntQuery(value, name string) (int, error) {
	if value == "" {
		return 0, fielderr.New(fielderr.BadRequest, name+" is required")
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fielderr.New(fielderr.BadRequest, name+" must be an integer")
	}
	return n, nil
}

func parseExclude(raw string) ([]int32, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fielderr.New(fielderr.BadRequest, "exclude must be a comma-separated integer list")
		}
		out = append(out, int32(n))
	}
	return out, nil
}

// HandleFieldChunk implements GET /api/artworks/field-chunk.
func HandleFieldChunk(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if r.Method != http.MethodGet {
			WriteError(w, fielderr.New(fielderr.BadRequest, "method not allowed"))
			return
		}
		q := r.URL.Query()

		targetID, err := parseIntQuery(q.Get("targetId"), "targetId")
		if err != nil {
			WriteError(w, err)
			return
		}
		chunkX, err := parseIntQuery(q.Get("chunkX"), "chunkX")
		if err != nil {
			WriteError(w, err)
			return
		}
		chunkY, err := parseIntQuery(q.Get("chunkY"), "chunkY")
		if err != nil {
			WriteError(w, err)
			return
		}

		count := 20
		if c := q.Get("count"); c != "" {
			n, cerr := strconv.Atoi(c)
			if cerr != nil {
				WriteError(w, fielderr.New(fielderr.BadRequest, "count must be an integer"))
				return
			}
			count = n
		}

		var seed uint32
		if s := q.Get("seed"); s != "" {
			n, serr := strconv.ParseUint(s, 10, 32)
			if serr != nil {
				WriteError(w, fielderr.New(fielderr.BadRequest, "seed must be an unsigned 32-bit integer"))
				return
			}
			seed = uint32(n)
		}

		exclude, eerr := parseExclude(q.Get("exclude"))
		if eerr != nil {
			WriteError(w, eerr)
			return
		}

		result, rerr := app.Coordinator.SingleChunk(r.Context(), coordinator.SingleChunkRequest{
			FocalID:    int32(targetID),
			X:          chunkX,
			Y:          chunkY,
			GlobalSeed: seed,
			Count:      count,
			Exclude:    exclude,
		})
		if rerr != nil {
			WriteError(w, rerr)
			return
		}

		artworks, lerr := app.Coordinator.Store.Lookup(r.Context(), idsOf(result.Items))
		if lerr != nil {
			WriteError(w, lerr)
			return
		}

		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"meta": map[string]interface{}{
				"targetId": targetID,
				"chunk":    map[string]int{"x": chunkX, "y": chunkY},
				"r":        round2(result.R),
				"theta":    round2(result.Theta),
				"t":        round2(result.T),
				"weights":  weightsPayload(result.Weights),
				"seed":     result.Seed,
			},
			"data":         buildPayload(result.Items, artworks),
			"responseTime": time.Since(start).String(),
		})
	}
}

type chunkCoordBody struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type fieldChunksBody struct {
	TargetID   int              `json:"targetId"`
	Chunks     []chunkCoordBody `json:"chunks"`
	Count      int              `json:"count"`
	Seed       uint32           `json:"seed"`
	ExcludeIDs []int32          `json:"excludeIds"`
}

// HandleFieldChunks implements POST /api/artworks/field-chunks.
func HandleFieldChunks(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if r.Method != http.MethodPost {
			WriteError(w, fielderr.New(fielderr.BadRequest, "method not allowed"))
			return
		}

		var body fieldChunksBody
		if err := ReadJSONBody(r, &body); err != nil {
			WriteError(w, fielderr.Wrap(fielderr.BadRequest, "malformed request body", err))
			return
		}
		if body.TargetID <= 0 {
			WriteError(w, fielderr.New(fielderr.BadRequest, "targetId must be a positive integer"))
			return
		}
		if len(body.Chunks) < 1 || len(body.Chunks) > 16 {
			WriteError(w, fielderr.New(fielderr.BadRequest, "chunks must contain between 1 and 16 entries"))
			return
		}

		count := body.Count
		if count == 0 {
			count = 20
		}

		chunks := make([]coordinator.ChunkCoord, len(body.Chunks))
		for i, c := range body.Chunks {
			chunks[i] = coordinator.ChunkCoord{X: c.X, Y: c.Y}
		}

		result, err := app.Coordinator.MultiChunk(r.Context(), coordinator.MultiChunkRequest{
			FocalID:    int32(body.TargetID),
			Chunks:     chunks,
			Count:      count,
			GlobalSeed: body.Seed,
			ExcludeIDs: body.ExcludeIDs,
		})
		if err != nil {
			WriteError(w, err)
			return
		}

		allIDs := make([]int32, 0)
		for _, cr := range result.Chunks {
			allIDs = append(allIDs, idsOf(cr.Items)...)
		}
		artworks, lerr := app.Coordinator.Store.Lookup(r.Context(), allIDs)
		if lerr != nil {
			WriteError(w, lerr)
			return
		}

		data := make(map[string]interface{}, len(body.Chunks))
		for _, c := range body.Chunks {
			cr, ok := result.Chunks[coordinator.ChunkCoord{X: c.X, Y: c.Y}]
			if !ok {
				continue
			}
			key := strconv.Itoa(c.X) + "," + strconv.Itoa(c.Y)
			data[key] = map[string]interface{}{
				"chunk": map[string]int{"x": cr.X, "y": cr.Y},
				"meta": map[string]interface{}{
					"r":       round2(cr.R),
					"theta":   round2(cr.Theta),
					"t":       round2(cr.T),
					"weights": weightsPayload(cr.Weights),
					"seed":    cr.Seed,
				},
				"artworks": buildPayload(cr.Items, artworks),
			}
		}

		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"meta": map[string]interface{}{
				"targetId":       body.TargetID,
				"totalChunks":    result.TotalChunks,
				"globalExcludes": result.GlobalExcludes,
				"seed":           result.Seed,
				"t":              round2(result.T),
			},
			"data":         data,
			"responseTime": time.Since(start).String(),
		})
	}
}

// HandleHealth implements GET /api/health.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			WriteError(w, fielderr.New(fielderr.BadRequest, "method not allowed"))
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"errorCounts": errlog.Counts(),
		})
	}
}

func idsOf(items []coordinator.ResultItem) []int32 {
	out := make([]int32, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}
