// Package engine declares the narrow capability interfaces the daemon
// runtime uses to reach the voxel editing engine and its embedded script
// runtime (spec.md §6.2). Both are external collaborators: this package
// only names the calls the dispatcher makes, plus the value types that
// cross that boundary. The production implementation lives outside this
// module's scope; internal/engine/fake supplies an in-memory stand-in used
// by tests.
package engine

import "context"

// RGBA is a color with components in [0, 255].
type RGBA struct {
	R, G, B, A uint8
}

// Bounds is a project's voxel-grid extent.
type Bounds struct {
	W, H, D int
}

// Camera describes an optional render viewpoint. A nil *Camera tells the
// engine to use its default framing.
type Camera struct {
	PosX, PosY, PosZ    float64
	TargetX, TargetY, TargetZ float64
	FOVDegrees          float64
}

// RenderOptions configures render_to_file.
type RenderOptions struct {
	Width, Height int
	Format        string
	Quality       int
	Camera        *Camera
	BGColor       *RGBA
}

// Voxel pairs a grid coordinate with its color, the shape bulk-read calls
// return.
type Voxel struct {
	X, Y, Z int
	Color   RGBA
}

// ColorCount pairs a color with how many voxels carry it (color_histogram).
type ColorCount struct {
	Color RGBA
	Count int
}

// Engine is the voxel editing engine's capability surface (spec.md §6.2).
// Every mutating method is only ever called while the caller holds the
// project lock; Reset is the one exception, called from create_project's
// reset-before-create step, which itself holds the lock across both calls.
type Engine interface {
	CreateProject(ctx context.Context, name string, w, h, d int) error
	LoadProject(ctx context.Context, path string) error
	SaveProject(ctx context.Context, path string) error

	AddVoxel(ctx context.Context, x, y, z int, color RGBA, layer int) error
	RemoveVoxel(ctx context.Context, x, y, z int, layer int) error
	GetVoxel(ctx context.Context, x, y, z int) (color RGBA, exists bool, err error)
	PaintVoxel(ctx context.Context, x, y, z int, color RGBA, layer int) error

	CreateLayer(ctx context.Context, name string, color RGBA, visible bool) (int, error)
	DeleteLayer(ctx context.Context, idOrName string) error
	MergeLayers(ctx context.Context, src, dst string) error
	SetLayerVisibility(ctx context.Context, idOrName string, visible bool) error
	GetLayerCount(ctx context.Context) (int, error)

	GetProjectBounds(ctx context.Context) (Bounds, error)
	IsReadOnly(ctx context.Context) (bool, error)

	ExportProject(ctx context.Context, path, format string) error
	RenderToFile(ctx context.Context, path string, opts RenderOptions) error

	BulkGetVoxelsRegion(ctx context.Context, min, max [3]int) ([]Voxel, error)
	BulkGetLayerVoxels(ctx context.Context, layer int) ([]Voxel, error)
	BulkGetBoundingBox(ctx context.Context) (Bounds, error)

	ColorHistogram(ctx context.Context) ([]ColorCount, error)
	FindVoxelsByColor(ctx context.Context, color RGBA) ([]Voxel, error)
	UniqueColors(ctx context.Context) ([]RGBA, error)

	// Reset drops process-wide singleton state (image, tool, layer
	// volumes). reason names why the reset is happening, e.g.
	// "create_project" or "idle_sweep".
	Reset(ctx context.Context, reason string) error
}

// ScriptEngine is the embedded scripting runtime's capability surface
// (spec.md §6.2). It is treated as single-threaded: the dispatcher runs
// execute_script on the script pool and holds a single process-wide mutex
// around each call, never calling RunFromString/RunFromFile concurrently.
type ScriptEngine interface {
	RunFromString(ctx context.Context, code, name string) (any, error)
	RunFromFile(ctx context.Context, path string) (any, error)
}
