package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"battle-nav/internal/debugdraw"
	"battle-nav/internal/nav"
	"battle-nav/internal/sim"
)

// maxBodyBytes caps JSON request bodies
const maxBodyBytes = 1 << 20

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// gridResponse is GET /api/grid. Costs is row-major, one slice per row.
type gridResponse struct {
	sim.GridView
	Costs [][]int `json:"costs,omitempty"`
}

// cellResponse is a single cell as seen by clients.
type cellResponse struct {
	Index     nav.GridIndex `json:"index"`
	Position  nav.Vec3      `json:"position"`
	Cost      uint8         `json:"cost"`
	BaseCost  uint8         `json:"baseCost"`
	Distance  *uint16       `json:"distance,omitempty"` // nil when unreached
	Direction nav.Direction `json:"direction"`
}

func newCellResponse(c nav.Cell) cellResponse {
	out := cellResponse{
		Index:     c.Index,
		Position:  c.WorldPosition,
		Cost:      c.Cost,
		BaseCost:  c.BaseCost,
		Direction: c.Direction,
	}
	if c.Reached() {
		d := c.BestCost
		out.Distance = &d
	}
	return out
}

type obstacleResponse struct {
	ID         nav.ObstacleID  `json:"id"`
	Transform  nav.Transform   `json:"transform"`
	HalfExtent *nav.Vec3       `json:"halfExtent"`
	Cost       uint8           `json:"cost"`
	Footprint  []nav.GridIndex `json:"footprint"`
}

type fieldResponse struct {
	ID           string         `json:"id"`
	Size         nav.Size       `json:"size"`
	CellDiameter float64        `json:"cellDiameter"`
	Destination  nav.GridIndex  `json:"destination"`
	GridRevision uint64         `json:"gridRevision"`
	Units        []nav.UnitID   `json:"units"`
	Stats        nav.BuildStats `json:"stats"`
	Cells        []cellResponse `json:"cells"`
}

// =============================================================================
// STATE & GRID
// =============================================================================

func (h *routerHandlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.GetState())
}

func (h *routerHandlers) handleGetGrid(w http.ResponseWriter, r *http.Request) {
	view := h.engine.GridSnapshot()
	resp := gridResponse{GridView: view}

	if r.URL.Query().Get("costs") != "false" {
		resp.Costs = make([][]int, view.Size.Y)
		for y := range resp.Costs {
			row := make([]int, view.Size.X)
			for x := range row {
				row[x] = int(view.Cost(nav.GridIndex{X: x, Y: y}))
			}
			resp.Costs[y] = row
		}
	}
	writeJSON(w, resp)
}

func (h *routerHandlers) handleLocate(w http.ResponseWriter, r *http.Request) {
	pos, err := queryPosition(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, newCellResponse(h.engine.Locate(pos)))
}

func (h *routerHandlers) handleSetTerrain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		X    int `json:"x"`
		Y    int `json:"y"`
		Cost int `json:"cost"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Cost < int(nav.CostBaseline) || req.Cost > int(nav.CostImpassable) {
		writeError(w, "cost must be between 1 and 255", http.StatusBadRequest)
		return
	}

	idx := nav.GridIndex{X: req.X, Y: req.Y}
	if err := h.engine.SetTerrainCost(idx, uint8(req.Cost)); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"index":    idx,
		"cost":     req.Cost,
		"revision": h.engine.Revision(),
	})
}

func (h *routerHandlers) handleGridOverlay(w http.ResponseWriter, r *http.Request) {
	view := h.engine.GridSnapshot()
	png, err := debugdraw.RenderCells(view.Size, view.Cells, overlayOptions(r))
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writePNG(w, png)
}

// =============================================================================
// OBSTACLES
// =============================================================================

func (h *routerHandlers) handleListObstacles(w http.ResponseWriter, r *http.Request) {
	obstacles := h.engine.Obstacles()
	out := make([]obstacleResponse, 0, len(obstacles))
	for _, o := range obstacles {
		out = append(out, h.obstacleResponse(o))
	}
	writeJSON(w, out)
}

func (h *routerHandlers) handleAddObstacle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID         string    `json:"id"`
		Position   nav.Vec3  `json:"position"`
		Scale      *nav.Vec3 `json:"scale"`
		HalfExtent *nav.Vec3 `json:"halfExtent"`
		Cost       int       `json:"cost"` // 0 = configured obstacle cost
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, "id is required", http.StatusBadRequest)
		return
	}
	if req.Cost < 0 || req.Cost > int(nav.CostImpassable) {
		writeError(w, "cost must be between 0 and 255", http.StatusBadRequest)
		return
	}

	o := nav.Obstacle{
		ID:         nav.ObstacleID(req.ID),
		Transform:  transformOf(req.Position, req.Scale),
		HalfExtent: req.HalfExtent,
		Cost:       uint8(req.Cost),
	}
	if err := h.engine.AddObstacle(o); err != nil {
		writeEngineError(w, err)
		return
	}
	log.Printf("🧱 Obstacle %s added at (%.1f, %.1f)", o.ID, req.Position.X, req.Position.Z)

	added, _ := h.findObstacle(o.ID)
	writeJSONStatus(w, http.StatusCreated, h.obstacleResponse(added))
}

func (h *routerHandlers) handleMoveObstacle(w http.ResponseWriter, r *http.Request) {
	id := nav.ObstacleID(chi.URLParam(r, "id"))
	var req struct {
		Position nav.Vec3  `json:"position"`
		Scale    *nav.Vec3 `json:"scale"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.engine.MoveObstacle(id, transformOf(req.Position, req.Scale)); err != nil {
		writeEngineError(w, err)
		return
	}
	moved, _ := h.findObstacle(id)
	writeJSON(w, h.obstacleResponse(moved))
}

func (h *routerHandlers) handleRemoveObstacle(w http.ResponseWriter, r *http.Request) {
	id := nav.ObstacleID(chi.URLParam(r, "id"))
	if err := h.engine.RemoveObstacle(id); err != nil {
		writeEngineError(w, err)
		return
	}
	log.Printf("🧱 Obstacle %s removed", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *routerHandlers) findObstacle(id nav.ObstacleID) (nav.Obstacle, bool) {
	for _, o := range h.engine.Obstacles() {
		if o.ID == id {
			return o, true
		}
	}
	return nav.Obstacle{ID: id}, false
}

func (h *routerHandlers) obstacleResponse(o nav.Obstacle) obstacleResponse {
	return obstacleResponse{
		ID:         o.ID,
		Transform:  o.Transform,
		HalfExtent: o.HalfExtent,
		Cost:       o.Cost,
		Footprint:  h.engine.ObstacleFootprint(o.ID),
	}
}

// =============================================================================
// ORDERS & FIELDS
// =============================================================================

func (h *routerHandlers) handleIssueOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Units       []string `json:"units"`
		Destination nav.Vec3 `json:"destination"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	ev, err := h.engine.IssueMoveOrder(r.Context(), req.Units, req.Destination)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, ev)
}

func (h *routerHandlers) handleGetField(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	f, ok := h.engine.Field(id)
	if !ok {
		writeError(w, "field not found", http.StatusNotFound)
		return
	}

	cells := make([]cellResponse, len(f.Cells))
	for i, c := range f.Cells {
		cells[i] = newCellResponse(c)
	}
	writeJSON(w, fieldResponse{
		ID:           id,
		Size:         f.Size,
		CellDiameter: f.CellDiameter,
		Destination:  f.DestinationCell.Index,
		GridRevision: f.GridRevision,
		Units:        f.Units,
		Stats:        f.Stats(),
		Cells:        cells,
	})
}

func (h *routerHandlers) handleSteer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pos, err := queryPosition(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	dir, err := h.engine.SteeringAt(id, pos)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"field":     id,
		"direction": dir,
		"vector":    dir.Unit(),
	})
}

func (h *routerHandlers) handleFieldOverlay(w http.ResponseWriter, r *http.Request) {
	f, ok := h.engine.Field(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, "field not found", http.StatusNotFound)
		return
	}
	png, err := debugdraw.RenderField(f, overlayOptions(r))
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writePNG(w, png)
}

// =============================================================================
// UNITS
// =============================================================================

func (h *routerHandlers) handleListUnits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Units())
}

func (h *routerHandlers) handleAddUnit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID       string   `json:"id"` // empty = generated
		Position nav.Vec3 `json:"position"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.engine.AddUnit(req.ID, req.Position)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, u)
}

func (h *routerHandlers) handleGetUnit(w http.ResponseWriter, r *http.Request) {
	u, ok := h.engine.Unit(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, "unit not found", http.StatusNotFound)
		return
	}
	writeJSON(w, u)
}

func (h *routerHandlers) handleRemoveUnit(w http.ResponseWriter, r *http.Request) {
	if !h.engine.RemoveUnit(chi.URLParam(r, "id")) {
		writeError(w, "unit not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, nav.ErrUnknownObstacle),
		errors.Is(err, nav.ErrFieldNotFound),
		errors.Is(err, sim.ErrUnknownUnit):
		return http.StatusNotFound
	case errors.Is(err, nav.ErrDuplicateObstacle),
		errors.Is(err, sim.ErrDuplicateUnit):
		return http.StatusConflict
	case errors.Is(err, nav.ErrMissingExtent),
		errors.Is(err, nav.ErrOutsideGrid),
		errors.Is(err, sim.ErrNoUnits),
		errors.Is(err, sim.ErrOrderTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, sim.ErrUnitLimit),
		errors.Is(err, sim.ErrFieldLimit):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Printf("❌ Engine error: %v", err)
	}
	writeError(w, err.Error(), code)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

// queryPosition reads ?x=&z= as a ground-plane world position.
func queryPosition(r *http.Request) (nav.Vec3, error) {
	q := r.URL.Query()
	x, err := strconv.ParseFloat(q.Get("x"), 64)
	if err != nil {
		return nav.Vec3{}, fmt.Errorf("invalid x: %q", q.Get("x"))
	}
	z, err := strconv.ParseFloat(q.Get("z"), 64)
	if err != nil {
		return nav.Vec3{}, fmt.Errorf("invalid z: %q", q.Get("z"))
	}
	return nav.Vec3{X: x, Z: z}, nil
}

func transformOf(pos nav.Vec3, scale *nav.Vec3) nav.Transform {
	t := nav.NewTransform(pos)
	if scale != nil {
		t.Scale = *scale
	}
	return t
}

// overlayOptions reads ?px=, ?arrows= and ?heatmap= on top of the defaults.
func overlayOptions(r *http.Request) debugdraw.Options {
	opts := debugdraw.DefaultOptions()
	q := r.URL.Query()
	if px, err := strconv.Atoi(q.Get("px")); err == nil && px > 0 {
		opts.CellPixels = px
	}
	if q.Get("arrows") == "false" {
		opts.Arrows = false
	}
	if q.Get("heatmap") == "true" {
		opts.Heatmap = true
	}
	return opts
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}
