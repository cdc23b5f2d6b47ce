package dispatch

import (
	"context"
	"fmt"
	"sync"

	"goxeld/internal/engine"
	"goxeld/internal/render"
	"goxeld/internal/wire"
)

// registerEngineMethods wires the handlers that reach the voxel engine or
// the embedded script runtime (spec.md §4.4). Methods registered with
// mutates=true run with the project lock held; the rest run lock-free but
// still on the general worker pool, except execute_script which runs on the
// script pool and holds scriptMu across the call to serialize the script
// runtime.
func (d *Dispatcher) registerEngineMethods() {
	d.register("create_project", KindEngine, true, "create a new project, resetting engine state first", handleCreateProject)
	d.register("load_project", KindEngine, true, "load a project from disk", handleLoadProject)
	d.register("save_project", KindEngine, true, "save the open project to disk", handleSaveProject)

	d.register("add_voxel", KindEngine, true, "add or overwrite a voxel", handleAddVoxel)
	d.register("remove_voxel", KindEngine, true, "remove a voxel", handleRemoveVoxel)
	d.register("get_voxel", KindEngine, false, "read a voxel's color", handleGetVoxel)
	d.register("paint_voxel", KindEngine, true, "repaint an existing voxel", handlePaintVoxel)
	d.register("flood_fill", KindEngine, true, "flood-fill connected same-color voxels", handleFloodFill)
	d.register("procedural_shape", KindEngine, true, "stamp a procedural shape of voxels", handleProceduralShape)

	d.register("create_layer", KindEngine, true, "create a new layer", handleCreateLayer)
	d.register("delete_layer", KindEngine, true, "delete a layer", handleDeleteLayer)
	d.register("merge_layers", KindEngine, true, "merge one layer into another", handleMergeLayers)
	d.register("set_layer_visibility", KindEngine, true, "toggle a layer's visibility", handleSetLayerVisibility)
	d.register("get_layer_count", KindEngine, false, "report the number of layers", handleGetLayerCount)

	d.register("get_project_bounds", KindEngine, false, "report the project's voxel-grid bounds", handleGetProjectBounds)
	d.register("is_read_only", KindEngine, false, "report whether the project is read-only", handleIsReadOnly)

	d.register("export_project", KindEngine, false, "export the project to a file format", handleExportProject)
	d.register("render_to_file", KindEngine, false, "render the project to an image file", handleRenderToFile)
	d.register("render_scene", KindEngine, false, "render the project to an image file (file-transfer mode)", handleRenderToFile)
	d.register("get_render_info", KindEngine, false, "look up a registered render entry by path", handleGetRenderInfo)
	d.register("list_renders", KindEngine, false, "list all registered render entries", handleListRenders)

	d.register("bulk_get_voxels_region", KindEngine, false, "read all voxels in a bounding region", handleBulkGetVoxelsRegion)
	d.register("bulk_get_layer_voxels", KindEngine, false, "read all voxels on a layer", handleBulkGetLayerVoxels)
	d.register("bulk_get_bounding_box", KindEngine, false, "report the tightest box containing all voxels", handleBulkGetBoundingBox)

	d.register("color_histogram", KindEngine, false, "count voxels per color", handleColorHistogram)
	d.register("find_voxels_by_color", KindEngine, false, "find all voxels matching a color", handleFindVoxelsByColor)
	d.register("unique_colors", KindEngine, false, "list every distinct color in use", handleUniqueColors)

	d.register("batch_operations", KindEngine, true, "run a sequence of mutating operations atomically", handleBatchOperations)
	d.register("execute_script", KindScript, true, "run script code or a script file", handleExecuteScript)
}

func voxelToValue(v engine.Voxel) wire.Value {
	obj := wire.NewObject()
	obj.Set("x", wire.IntValue(int64(v.X)))
	obj.Set("y", wire.IntValue(int64(v.Y)))
	obj.Set("z", wire.IntValue(int64(v.Z)))
	obj.Set("color", colorToValue(v.Color))
	return wire.ObjectValue(obj)
}

func colorToValue(c engine.RGBA) wire.Value {
	obj := wire.NewObject()
	obj.Set("r", wire.IntValue(int64(c.R)))
	obj.Set("g", wire.IntValue(int64(c.G)))
	obj.Set("b", wire.IntValue(int64(c.B)))
	obj.Set("a", wire.IntValue(int64(c.A)))
	return wire.ObjectValue(obj)
}

// colorToArrayValue renders c as the [r,g,b,a] array form spec.md §8
// scenario 2 requires for add_voxel/get_voxel results.
func colorToArrayValue(c engine.RGBA) wire.Value {
	return wire.ArrayValue([]wire.Value{
		wire.IntValue(int64(c.R)),
		wire.IntValue(int64(c.G)),
		wire.IntValue(int64(c.B)),
		wire.IntValue(int64(c.A)),
	})
}

func boundsToValue(b engine.Bounds) wire.Value {
	obj := wire.NewObject()
	obj.Set("w", wire.IntValue(int64(b.W)))
	obj.Set("h", wire.IntValue(int64(b.H)))
	obj.Set("d", wire.IntValue(int64(b.D)))
	return wire.ObjectValue(obj)
}

func internalErr(err error) *wire.RPCError {
	return wire.NewRPCError(wire.CodeInternalError, err.Error(), nil)
}

func invalidParamsErr(msg string) *wire.RPCError {
	return wire.NewRPCError(wire.CodeInvalidParams, msg, nil)
}

func handleCreateProject(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	name, ok := paramString(req.Params, 0, "name")
	if !ok {
		return wire.Value{}, invalidParamsErr("create_project: missing required string param \"name\"")
	}
	w := paramIntDefault(req.Params, 1, "width", 64)
	h := paramIntDefault(req.Params, 2, "height", 64)
	dep := paramIntDefault(req.Params, 3, "depth", 64)

	// spec.md §4.4: create_project always resets engine state before
	// opening the new project, even if no project was previously open.
	if err := d.eng.Reset(ctx, "create_project"); err != nil {
		return wire.Value{}, internalErr(err)
	}
	if err := d.eng.CreateProject(ctx, name, int(w), int(h), int(dep)); err != nil {
		return wire.Value{}, internalErr(err)
	}

	obj := wire.NewObject()
	obj.Set("success", wire.True)
	obj.Set("name", wire.StringValue(name))
	obj.Set("width", wire.IntValue(w))
	obj.Set("height", wire.IntValue(h))
	obj.Set("depth", wire.IntValue(dep))
	return wire.ObjectValue(obj), nil
}

func handleLoadProject(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	path, ok := paramString(req.Params, 0, "path")
	if !ok {
		return wire.Value{}, invalidParamsErr("load_project: missing required string param \"path\"")
	}
	if err := d.eng.LoadProject(ctx, path); err != nil {
		return wire.Value{}, internalErr(err)
	}
	return wire.True, nil
}

func handleSaveProject(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	path, ok := paramString(req.Params, 0, "path")
	if !ok {
		return wire.Value{}, invalidParamsErr("save_project: missing required string param \"path\"")
	}
	if err := d.eng.SaveProject(ctx, path); err != nil {
		return wire.Value{}, internalErr(err)
	}
	return wire.True, nil
}

func xyz(p wire.Params) (x, y, z int64, ok bool) {
	x, ok = paramInt(p, 0, "x")
	if !ok {
		return
	}
	y, ok = paramInt(p, 1, "y")
	if !ok {
		return
	}
	z, ok = paramInt(p, 2, "z")
	return
}

func handleAddVoxel(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	x, y, z, ok := xyz(req.Params)
	if !ok {
		return wire.Value{}, invalidParamsErr("add_voxel: missing x/y/z")
	}
	color, nextIdx, err := parseColorArg(req.Params, 3)
	if err != nil {
		return wire.Value{}, invalidParamsErr("add_voxel: " + err.Error())
	}
	layerID := paramIntDefault(req.Params, nextIdx, "layer", 0)

	if err := d.eng.AddVoxel(ctx, int(x), int(y), int(z), color, int(layerID)); err != nil {
		return wire.Value{}, internalErr(err)
	}

	obj := wire.NewObject()
	obj.Set("success", wire.True)
	obj.Set("x", wire.IntValue(x))
	obj.Set("y", wire.IntValue(y))
	obj.Set("z", wire.IntValue(z))
	obj.Set("color", colorToArrayValue(color))
	return wire.ObjectValue(obj), nil
}

func handleRemoveVoxel(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	x, y, z, ok := xyz(req.Params)
	if !ok {
		return wire.Value{}, invalidParamsErr("remove_voxel: missing x/y/z")
	}
	layerID := paramIntDefault(req.Params, 3, "layer", 0)
	if err := d.eng.RemoveVoxel(ctx, int(x), int(y), int(z), int(layerID)); err != nil {
		return wire.Value{}, internalErr(err)
	}
	return wire.True, nil
}

func handleGetVoxel(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	x, y, z, ok := xyz(req.Params)
	if !ok {
		return wire.Value{}, invalidParamsErr("get_voxel: missing x/y/z")
	}
	color, exists, err := d.eng.GetVoxel(ctx, int(x), int(y), int(z))
	if err != nil {
		return wire.Value{}, internalErr(err)
	}

	obj := wire.NewObject()
	obj.Set("exists", boolValue(exists))
	obj.Set("color", colorToArrayValue(color))
	return wire.ObjectValue(obj), nil
}

func handlePaintVoxel(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	x, y, z, ok := xyz(req.Params)
	if !ok {
		return wire.Value{}, invalidParamsErr("paint_voxel: missing x/y/z")
	}
	color, nextIdx, err := parseColorArg(req.Params, 3)
	if err != nil {
		return wire.Value{}, invalidParamsErr("paint_voxel: " + err.Error())
	}
	layerID := paramIntDefault(req.Params, nextIdx, "layer", 0)
	if err := d.eng.PaintVoxel(ctx, int(x), int(y), int(z), color, int(layerID)); err != nil {
		return wire.Value{}, internalErr(err)
	}
	return wire.True, nil
}

// handleFloodFill and handleProceduralShape are composed from primitive
// Engine calls rather than dedicated Engine methods: flood_fill and
// procedural_shape appear in the method list but the engine's capability
// surface only exposes single-voxel reads/writes, so the dispatcher builds
// both on top of GetVoxel/AddVoxel.

var floodFillOffsets = [6][3]int64{
	{1, 0, 0}, {-1, 0, 0},
	{0, 1, 0}, {0, -1, 0},
	{0, 0, 1}, {0, 0, -1},
}

func handleFloodFill(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	x, y, z, ok := xyz(req.Params)
	if !ok {
		return wire.Value{}, invalidParamsErr("flood_fill: missing x/y/z")
	}
	newColor, nextIdx, err := parseColorArg(req.Params, 3)
	if err != nil {
		return wire.Value{}, invalidParamsErr("flood_fill: " + err.Error())
	}
	layerID := int(paramIntDefault(req.Params, nextIdx, "layer", 0))
	maxVoxels := int(paramIntDefault(req.Params, nextIdx+1, "max_voxels", 10000))

	origin := [3]int64{x, y, z}
	target, _, err := d.eng.GetVoxel(ctx, int(x), int(y), int(z))
	if err != nil {
		return wire.Value{}, internalErr(err)
	}
	if target == newColor {
		return wire.IntValue(0), nil
	}

	visited := map[[3]int64]bool{origin: true}
	queue := [][3]int64{origin}
	filled := 0

	for len(queue) > 0 && filled < maxVoxels {
		cur := queue[0]
		queue = queue[1:]

		cc, _, err := d.eng.GetVoxel(ctx, int(cur[0]), int(cur[1]), int(cur[2]))
		if err != nil {
			return wire.Value{}, internalErr(err)
		}
		if cc != target {
			continue
		}
		if err := d.eng.AddVoxel(ctx, int(cur[0]), int(cur[1]), int(cur[2]), newColor, layerID); err != nil {
			return wire.Value{}, internalErr(err)
		}
		filled++

		for _, off := range floodFillOffsets {
			next := [3]int64{cur[0] + off[0], cur[1] + off[1], cur[2] + off[2]}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return wire.IntValue(int64(filled)), nil
}

func handleProceduralShape(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	shape, ok := paramString(req.Params, 0, "shape")
	if !ok {
		return wire.Value{}, invalidParamsErr("procedural_shape: missing required string param \"shape\"")
	}
	cx, ok := paramInt(req.Params, 1, "cx")
	if !ok {
		return wire.Value{}, invalidParamsErr("procedural_shape: missing cx")
	}
	cy, ok := paramInt(req.Params, 2, "cy")
	if !ok {
		return wire.Value{}, invalidParamsErr("procedural_shape: missing cy")
	}
	cz, ok := paramInt(req.Params, 3, "cz")
	if !ok {
		return wire.Value{}, invalidParamsErr("procedural_shape: missing cz")
	}
	size := paramIntDefault(req.Params, 4, "size", 4)
	color, nextIdx, err := parseColorArg(req.Params, 5)
	if err != nil {
		return wire.Value{}, invalidParamsErr("procedural_shape: " + err.Error())
	}
	layerID := int(paramIntDefault(req.Params, nextIdx, "layer", 0))

	placed := 0
	r := size
	for dx := -r; dx <= r; dx++ {
		for dy := -r; dy <= r; dy++ {
			for dz := -r; dz <= r; dz++ {
				if !shapeContains(shape, dx, dy, dz, r) {
					continue
				}
				if err := d.eng.AddVoxel(ctx, int(cx)+int(dx), int(cy)+int(dy), int(cz)+int(dz), color, layerID); err != nil {
					return wire.Value{}, internalErr(err)
				}
				placed++
			}
		}
	}
	return wire.IntValue(int64(placed)), nil
}

func shapeContains(shape string, dx, dy, dz, r int64) bool {
	switch shape {
	case "sphere":
		return dx*dx+dy*dy+dz*dz <= r*r
	case "cube":
		return true
	default:
		return dx*dx+dy*dy+dz*dz <= r*r
	}
}

func handleCreateLayer(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	name := paramStringDefault(req.Params, 0, "name", "")
	colorVal, hasColor := paramValue(req.Params, 1, "color")
	color := engine.RGBA{A: 255}
	if hasColor {
		parsed, err := ParseColor(colorVal)
		if err != nil {
			return wire.Value{}, invalidParamsErr(err.Error())
		}
		color = parsed
	}
	visible := paramBoolDefault(req.Params, 2, "visible", true)

	id, err := d.eng.CreateLayer(ctx, name, color, visible)
	if err != nil {
		return wire.Value{}, internalErr(err)
	}
	return wire.IntValue(int64(id)), nil
}

func layerRef(p wire.Params) (string, bool) {
	if s, ok := paramString(p, 0, "layer"); ok {
		return s, true
	}
	if n, ok := paramInt(p, 0, "layer"); ok {
		return fmt.Sprint(n), true
	}
	return "", false
}

func handleDeleteLayer(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	layer, ok := layerRef(req.Params)
	if !ok {
		return wire.Value{}, invalidParamsErr("delete_layer: missing layer")
	}
	if err := d.eng.DeleteLayer(ctx, layer); err != nil {
		return wire.Value{}, internalErr(err)
	}
	return wire.True, nil
}

func handleMergeLayers(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	src, ok := paramString(req.Params, 0, "source")
	if !ok {
		return wire.Value{}, invalidParamsErr("merge_layers: missing source")
	}
	dst, ok := paramString(req.Params, 1, "target")
	if !ok {
		return wire.Value{}, invalidParamsErr("merge_layers: missing target")
	}
	if err := d.eng.MergeLayers(ctx, src, dst); err != nil {
		return wire.Value{}, internalErr(err)
	}
	return wire.True, nil
}

func handleSetLayerVisibility(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	layer, ok := layerRef(req.Params)
	if !ok {
		return wire.Value{}, invalidParamsErr("set_layer_visibility: missing layer")
	}
	visible := paramBoolDefault(req.Params, 1, "visible", true)
	if err := d.eng.SetLayerVisibility(ctx, layer, visible); err != nil {
		return wire.Value{}, internalErr(err)
	}
	return wire.True, nil
}

func handleGetLayerCount(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	n, err := d.eng.GetLayerCount(ctx)
	if err != nil {
		return wire.Value{}, internalErr(err)
	}
	return wire.IntValue(int64(n)), nil
}

func handleGetProjectBounds(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	b, err := d.eng.GetProjectBounds(ctx)
	if err != nil {
		return wire.Value{}, internalErr(err)
	}
	return boundsToValue(b), nil
}

func handleIsReadOnly(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	ro, err := d.eng.IsReadOnly(ctx)
	if err != nil {
		return wire.Value{}, internalErr(err)
	}
	return boolValue(ro), nil
}

func handleExportProject(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	path, ok := paramString(req.Params, 0, "path")
	if !ok {
		return wire.Value{}, invalidParamsErr("export_project: missing required string param \"path\"")
	}
	format := paramStringDefault(req.Params, 1, "format", "")
	if err := d.eng.ExportProject(ctx, path, format); err != nil {
		return wire.Value{}, internalErr(err)
	}
	return wire.True, nil
}

func handleRenderToFile(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	format := paramStringDefault(req.Params, 0, "format", "png")
	width := int(paramIntDefault(req.Params, 1, "width", 512))
	height := int(paramIntDefault(req.Params, 2, "height", 512))
	sessionID := paramStringDefault(req.Params, 3, "session_id", "")

	opts := engine.RenderOptions{Width: width, Height: height, Format: format, Quality: 90}

	var path string
	if d.renders != nil {
		path = d.renders.CreatePath(sessionID, format)
	} else {
		path = paramStringDefault(req.Params, 4, "path", "")
	}
	if path == "" {
		return wire.Value{}, invalidParamsErr("render_to_file: no render manager configured and no explicit path given")
	}

	if err := d.eng.RenderToFile(ctx, path, opts); err != nil {
		return wire.Value{}, internalErr(err)
	}

	obj := wire.NewObject()
	obj.Set("path", wire.StringValue(path))
	if d.renders != nil {
		entry, err := d.renders.Register(path, sessionID, format, width, height)
		if err != nil {
			return wire.Value{}, internalErr(err)
		}
		obj.Set("checksum", wire.StringValue(entry.Checksum))
		obj.Set("size", wire.IntValue(entry.Size))
	}
	return wire.ObjectValue(obj), nil
}

func renderEntryToValue(e render.Entry) wire.Value {
	obj := wire.NewObject()
	obj.Set("path", wire.StringValue(e.Path))
	obj.Set("session_id", wire.StringValue(e.SessionID))
	obj.Set("format", wire.StringValue(e.Format))
	obj.Set("width", wire.IntValue(int64(e.Width)))
	obj.Set("height", wire.IntValue(int64(e.Height)))
	obj.Set("checksum", wire.StringValue(e.Checksum))
	obj.Set("size", wire.IntValue(e.Size))
	obj.Set("created_at", wire.IntValue(e.CreatedAt.Unix()))
	obj.Set("expires_at", wire.IntValue(e.ExpiresAt.Unix()))
	return wire.ObjectValue(obj)
}

// handleGetRenderInfo and handleListRenders are the render manager's
// read-only query methods (spec.md §4.4 groups "render info/list" alongside
// bulk reads and color analysis as lock-free). Once an entry expires past
// its fixed TTL, render.Manager.Get reports it absent and this returns a
// not-found error, matching spec.md §8 scenario 5.
func handleGetRenderInfo(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	path, ok := paramString(req.Params, 0, "path")
	if !ok {
		return wire.Value{}, invalidParamsErr("get_render_info: missing required string param \"path\"")
	}
	if d.renders == nil {
		return wire.Value{}, internalErr(fmt.Errorf("get_render_info: no render manager configured"))
	}
	entry, ok := d.renders.Get(path)
	if !ok {
		return wire.Value{}, wire.NewRPCError(wire.CodeInternalError, fmt.Sprintf("get_render_info: no render entry registered for %q", path), nil)
	}
	return renderEntryToValue(entry), nil
}

func handleListRenders(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	if d.renders == nil {
		return wire.ArrayValue(nil), nil
	}
	entries := d.renders.List()
	out := make([]wire.Value, 0, len(entries))
	for _, e := range entries {
		out = append(out, renderEntryToValue(e))
	}
	return wire.ArrayValue(out), nil
}

func parseVec3(v wire.Value) ([3]int, error) {
	if v.Kind != wire.KindArray || len(v.Arr) != 3 {
		return [3]int{}, fmt.Errorf("expected a 3-element array")
	}
	var out [3]int
	for i, c := range v.Arr {
		if c.Kind != wire.KindInt {
			return [3]int{}, fmt.Errorf("array component must be an integer")
		}
		out[i] = int(c.Int)
	}
	return out, nil
}

func handleBulkGetVoxelsRegion(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	minVal, ok := paramValue(req.Params, 0, "min")
	if !ok {
		return wire.Value{}, invalidParamsErr("bulk_get_voxels_region: missing min")
	}
	maxVal, ok := paramValue(req.Params, 1, "max")
	if !ok {
		return wire.Value{}, invalidParamsErr("bulk_get_voxels_region: missing max")
	}
	min, err := parseVec3(minVal)
	if err != nil {
		return wire.Value{}, invalidParamsErr("bulk_get_voxels_region: min: " + err.Error())
	}
	max, err := parseVec3(maxVal)
	if err != nil {
		return wire.Value{}, invalidParamsErr("bulk_get_voxels_region: max: " + err.Error())
	}
	voxels, err := d.eng.BulkGetVoxelsRegion(ctx, min, max)
	if err != nil {
		return wire.Value{}, internalErr(err)
	}
	out := make([]wire.Value, len(voxels))
	for i, v := range voxels {
		out[i] = voxelToValue(v)
	}
	return wire.ArrayValue(out), nil
}

func handleBulkGetLayerVoxels(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	layerID, ok := paramInt(req.Params, 0, "layer")
	if !ok {
		return wire.Value{}, invalidParamsErr("bulk_get_layer_voxels: missing layer")
	}
	voxels, err := d.eng.BulkGetLayerVoxels(ctx, int(layerID))
	if err != nil {
		return wire.Value{}, internalErr(err)
	}
	out := make([]wire.Value, len(voxels))
	for i, v := range voxels {
		out[i] = voxelToValue(v)
	}
	return wire.ArrayValue(out), nil
}

func handleBulkGetBoundingBox(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	b, err := d.eng.BulkGetBoundingBox(ctx)
	if err != nil {
		return wire.Value{}, internalErr(err)
	}
	return boundsToValue(b), nil
}

func handleColorHistogram(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	counts, err := d.eng.ColorHistogram(ctx)
	if err != nil {
		return wire.Value{}, internalErr(err)
	}
	out := make([]wire.Value, len(counts))
	for i, c := range counts {
		entry := wire.NewObject()
		entry.Set("color", colorToValue(c.Color))
		entry.Set("count", wire.IntValue(int64(c.Count)))
		out[i] = wire.ObjectValue(entry)
	}
	return wire.ArrayValue(out), nil
}

func handleFindVoxelsByColor(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	colorVal, ok := paramValue(req.Params, 0, "color")
	if !ok {
		return wire.Value{}, invalidParamsErr("find_voxels_by_color: missing color")
	}
	color, err := ParseColor(colorVal)
	if err != nil {
		return wire.Value{}, invalidParamsErr(err.Error())
	}
	voxels, err := d.eng.FindVoxelsByColor(ctx, color)
	if err != nil {
		return wire.Value{}, internalErr(err)
	}
	out := make([]wire.Value, len(voxels))
	for i, v := range voxels {
		out[i] = voxelToValue(v)
	}
	return wire.ArrayValue(out), nil
}

func handleUniqueColors(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	colors, err := d.eng.UniqueColors(ctx)
	if err != nil {
		return wire.Value{}, internalErr(err)
	}
	out := make([]wire.Value, len(colors))
	for i, c := range colors {
		out[i] = colorToValue(c)
	}
	return wire.ArrayValue(out), nil
}

// handleBatchOperations runs a list of sub-requests against the already
// lock-held dispatcher, stopping at the first failure (spec.md §4.4:
// "atomically" means "serialized under one lock acquisition", not
// transactional rollback — the engine has no undo).
func handleBatchOperations(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	opsVal, ok := paramValue(req.Params, 0, "operations")
	if !ok || opsVal.Kind != wire.KindArray {
		return wire.Value{}, invalidParamsErr("batch_operations: missing required array param \"operations\"")
	}

	results := make([]wire.Value, 0, len(opsVal.Arr))
	for i, opVal := range opsVal.Arr {
		if opVal.Kind != wire.KindObject {
			return wire.Value{}, invalidParamsErr(fmt.Sprintf("batch_operations: operation %d is not an object", i))
		}
		methodVal, ok := opVal.Obj.Get("method")
		if !ok || methodVal.Kind != wire.KindString {
			return wire.Value{}, invalidParamsErr(fmt.Sprintf("batch_operations: operation %d missing \"method\"", i))
		}
		spec, ok := d.methods[methodVal.Str]
		if !ok {
			return wire.Value{}, wire.NewRPCError(wire.CodeMethodNotFound, fmt.Sprintf("batch_operations: method not found: %s", methodVal.Str), nil)
		}

		params := wire.Params{Kind: wire.ParamsNone}
		if paramsVal, ok := opVal.Obj.Get("params"); ok && paramsVal.Kind == wire.KindObject {
			params = wire.Params{Kind: wire.ParamsObject, Obj: paramsVal.Obj}
		} else if ok && paramsVal.Kind == wire.KindArray {
			params = wire.Params{Kind: wire.ParamsArray, Arr: paramsVal.Arr}
		}

		subReq := wire.Request{Method: methodVal.Str, Params: params, ID: req.ID}
		val, rpcErr := spec.handler(ctx, d, subReq)
		if rpcErr != nil {
			return wire.Value{}, wire.NewRPCError(rpcErr.Code, fmt.Sprintf("batch_operations: operation %d (%s): %s", i, methodVal.Str, rpcErr.Message), nil)
		}
		results = append(results, val)
	}
	return wire.ArrayValue(results), nil
}

// scriptMu is the process-wide mutex that serializes every call into the
// script runtime, which is not re-entrant.
var scriptMu sync.Mutex

func handleExecuteScript(ctx context.Context, d *Dispatcher, req wire.Request) (wire.Value, *wire.RPCError) {
	if d.script == nil {
		return wire.Value{}, wire.NewRPCError(wire.CodeInternalError, "script engine not wired", nil)
	}
	scriptMu.Lock()
	defer scriptMu.Unlock()

	var (
		result any
		err    error
	)
	if path, ok := paramString(req.Params, 0, "path"); ok {
		result, err = d.script.RunFromFile(ctx, path)
	} else if code, ok := paramString(req.Params, 0, "code"); ok {
		name := paramStringDefault(req.Params, 1, "name", "<script>")
		result, err = d.script.RunFromString(ctx, code, name)
	} else {
		return wire.Value{}, invalidParamsErr("execute_script: requires either \"code\" or \"path\"")
	}
	if err != nil {
		return wire.Value{}, internalErr(err)
	}
	return goValueToWire(result), nil
}

// goValueToWire converts a script result (a bare any from the embedded
// runtime) into a wire.Value, falling back to its string form for types
// the wire codec has no native representation for.
func goValueToWire(v any) wire.Value {
	switch val := v.(type) {
	case nil:
		return wire.Null
	case bool:
		return boolValue(val)
	case string:
		return wire.StringValue(val)
	case int:
		return wire.IntValue(int64(val))
	case int64:
		return wire.IntValue(val)
	case float64:
		return wire.FloatValue(val)
	default:
		return wire.StringValue(fmt.Sprint(val))
	}
}
