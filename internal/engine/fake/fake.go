// Package fake provides an in-memory Engine and ScriptEngine (spec.md §6.2
// treats both as external collaborators reachable through a narrow
// interface; nothing about their real implementation is in scope here).
// Used both by internal/dispatch's tests and as cmd/goxeld's default
// runtime implementation, since no production engine ships in this module.
package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"goxeld/internal/engine"
)

type voxelKey struct{ x, y, z, layer int }

type layer struct {
	id      int
	name    string
	color   engine.RGBA
	visible bool
}

// Engine is a minimal in-memory voxel store implementing engine.Engine.
type Engine struct {
	mu sync.Mutex

	hasProject bool
	name       string
	bounds     engine.Bounds
	readOnly   bool

	voxels     map[voxelKey]engine.RGBA
	layers     map[int]*layer
	nextLayer  int

	resetCount int
}

// New creates an empty Engine with no open project.
func New() *Engine {
	return &Engine{
		voxels:    make(map[voxelKey]engine.RGBA),
		layers:    make(map[int]*layer),
		nextLayer: 1,
	}
}

// ResetCount reports how many times Reset has been called, for tests that
// assert create_project performs its mandatory reset-before-create.
func (e *Engine) ResetCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resetCount
}

func (e *Engine) CreateProject(ctx context.Context, name string, w, h, d int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hasProject = true
	e.name = name
	e.bounds = engine.Bounds{W: w, H: h, D: d}
	e.voxels = make(map[voxelKey]engine.RGBA)
	e.layers = map[int]*layer{0: {id: 0, name: "default", visible: true}}
	e.nextLayer = 1
	return nil
}

func (e *Engine) LoadProject(ctx context.Context, path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if path == "" {
		return fmt.Errorf("fake engine: empty path")
	}
	e.hasProject = true
	e.name = path
	return nil
}

func (e *Engine) SaveProject(ctx context.Context, path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasProject {
		return fmt.Errorf("fake engine: no open project")
	}
	return nil
}

func (e *Engine) requireProject() error {
	if !e.hasProject {
		return fmt.Errorf("fake engine: no open project")
	}
	return nil
}

func (e *Engine) AddVoxel(ctx context.Context, x, y, z int, color engine.RGBA, layerID int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireProject(); err != nil {
		return err
	}
	e.voxels[voxelKey{x, y, z, layerID}] = color
	return nil
}

func (e *Engine) RemoveVoxel(ctx context.Context, x, y, z int, layerID int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireProject(); err != nil {
		return err
	}
	delete(e.voxels, voxelKey{x, y, z, layerID})
	return nil
}

func (e *Engine) GetVoxel(ctx context.Context, x, y, z int) (engine.RGBA, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireProject(); err != nil {
		return engine.RGBA{}, false, err
	}
	for layerID := 0; layerID < e.nextLayer; layerID++ {
		if c, ok := e.voxels[voxelKey{x, y, z, layerID}]; ok {
			return c, true, nil
		}
	}
	return engine.RGBA{}, false, nil
}

func (e *Engine) PaintVoxel(ctx context.Context, x, y, z int, color engine.RGBA, layerID int) error {
	return e.AddVoxel(ctx, x, y, z, color, layerID)
}

func (e *Engine) CreateLayer(ctx context.Context, name string, color engine.RGBA, visible bool) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireProject(); err != nil {
		return 0, err
	}
	id := e.nextLayer
	e.nextLayer++
	e.layers[id] = &layer{id: id, name: name, color: color, visible: visible}
	return id, nil
}

func (e *Engine) findLayer(idOrName string) *layer {
	for _, l := range e.layers {
		if fmt.Sprint(l.id) == idOrName || l.name == idOrName {
			return l
		}
	}
	return nil
}

func (e *Engine) DeleteLayer(ctx context.Context, idOrName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	l := e.findLayer(idOrName)
	if l == nil {
		return fmt.Errorf("fake engine: layer %q not found", idOrName)
	}
	delete(e.layers, l.id)
	return nil
}

func (e *Engine) MergeLayers(ctx context.Context, src, dst string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	srcLayer := e.findLayer(src)
	dstLayer := e.findLayer(dst)
	if srcLayer == nil || dstLayer == nil {
		return fmt.Errorf("fake engine: merge_layers: layer not found")
	}
	for k, v := range e.voxels {
		if k.layer == srcLayer.id {
			k.layer = dstLayer.id
			e.voxels[k] = v
		}
	}
	delete(e.layers, srcLayer.id)
	return nil
}

func (e *Engine) SetLayerVisibility(ctx context.Context, idOrName string, visible bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	l := e.findLayer(idOrName)
	if l == nil {
		return fmt.Errorf("fake engine: layer %q not found", idOrName)
	}
	l.visible = visible
	return nil
}

func (e *Engine) GetLayerCount(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.layers), nil
}

func (e *Engine) GetProjectBounds(ctx context.Context) (engine.Bounds, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireProject(); err != nil {
		return engine.Bounds{}, err
	}
	return e.bounds, nil
}

func (e *Engine) IsReadOnly(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readOnly, nil
}

func (e *Engine) ExportProject(ctx context.Context, path, format string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requireProject()
}

func (e *Engine) RenderToFile(ctx context.Context, path string, opts engine.RenderOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requireProject()
}

func (e *Engine) BulkGetVoxelsRegion(ctx context.Context, min, max [3]int) ([]engine.Voxel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []engine.Voxel
	for k, c := range e.voxels {
		if k.x >= min[0] && k.x <= max[0] && k.y >= min[1] && k.y <= max[1] && k.z >= min[2] && k.z <= max[2] {
			out = append(out, engine.Voxel{X: k.x, Y: k.y, Z: k.z, Color: c})
		}
	}
	sortVoxels(out)
	return out, nil
}

func (e *Engine) BulkGetLayerVoxels(ctx context.Context, layerID int) ([]engine.Voxel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []engine.Voxel
	for k, c := range e.voxels {
		if k.layer == layerID {
			out = append(out, engine.Voxel{X: k.x, Y: k.y, Z: k.z, Color: c})
		}
	}
	sortVoxels(out)
	return out, nil
}

func (e *Engine) BulkGetBoundingBox(ctx context.Context) (engine.Bounds, error) {
	return e.GetProjectBounds(ctx)
}

func (e *Engine) ColorHistogram(ctx context.Context) ([]engine.ColorCount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	counts := make(map[engine.RGBA]int)
	for _, c := range e.voxels {
		counts[c]++
	}
	out := make([]engine.ColorCount, 0, len(counts))
	for c, n := range counts {
		out = append(out, engine.ColorCount{Color: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out, nil
}

func (e *Engine) FindVoxelsByColor(ctx context.Context, color engine.RGBA) ([]engine.Voxel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []engine.Voxel
	for k, c := range e.voxels {
		if c == color {
			out = append(out, engine.Voxel{X: k.x, Y: k.y, Z: k.z, Color: c})
		}
	}
	sortVoxels(out)
	return out, nil
}

func (e *Engine) UniqueColors(ctx context.Context) ([]engine.RGBA, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	seen := make(map[engine.RGBA]bool)
	var out []engine.RGBA
	for _, c := range e.voxels {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out, nil
}

func (e *Engine) Reset(ctx context.Context, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hasProject = false
	e.voxels = make(map[voxelKey]engine.RGBA)
	e.layers = make(map[int]*layer)
	e.nextLayer = 1
	e.resetCount++
	return nil
}

func sortVoxels(vs []engine.Voxel) {
	sort.Slice(vs, func(i, j int) bool {
		if vs[i].X != vs[j].X {
			return vs[i].X < vs[j].X
		}
		if vs[i].Y != vs[j].Y {
			return vs[i].Y < vs[j].Y
		}
		return vs[i].Z < vs[j].Z
	})
}

// ScriptEngine is a minimal ScriptEngine implementation that evaluates
// nothing: it records the last invocation and returns a canned result,
// enough for dispatcher tests that only need to verify serialization and
// the single-process-wide-mutex policy around execute_script.
type ScriptEngine struct {
	mu       sync.Mutex
	LastCode string
	LastName string
	LastPath string
	Result   any
	Err      error
}

func NewScriptEngine() *ScriptEngine { return &ScriptEngine{Result: "ok"} }

func (s *ScriptEngine) RunFromString(ctx context.Context, code, name string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastCode, s.LastName = code, name
	return s.Result, s.Err
}

func (s *ScriptEngine) RunFromFile(ctx context.Context, path string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastPath = path
	return s.Result, s.Err
}
