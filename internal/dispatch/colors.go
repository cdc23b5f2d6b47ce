package dispatch

import (
	"fmt"
	"strconv"
	"strings"

	"goxeld/internal/engine"
	"goxeld/internal/wire"
)

// ParseColor decodes a color parameter in any of the encodings spec.md
// §4.4 allows: an array [r,g,b] or [r,g,b,a] of integers 0..255 or floats
// 0..1; a hex string "#RRGGBB" or "#RRGGBBAA"; or an object {r,g,b,a?}.
// Out-of-range components are clamped; a missing alpha defaults to 255.
func ParseColor(v wire.Value) (engine.RGBA, error) {
	switch v.Kind {
	case wire.KindArray:
		return parseColorArray(v.Arr)
	case wire.KindString:
		return parseColorHex(v.Str)
	case wire.KindObject:
		return parseColorObject(v.Obj)
	default:
		return engine.RGBA{}, fmt.Errorf("color: unsupported value kind")
	}
}

// parseColorArg decodes a color starting at positional index idx, accepting
// either a single composite value (array/hex string/object, the named-params
// form) or spec.md §8 scenario 2's flat positional r,g,b,a scalars spliced
// into a larger argument list. It returns the index immediately following
// whatever form it consumed, so callers can locate a trailing optional
// argument (e.g. layer) at the right position regardless of which form was
// used. Named-object params never take the flat-scalar branch, since p.Kind
// is ParamsObject there.
func parseColorArg(p wire.Params, idx int) (engine.RGBA, int, error) {
	if p.Kind == wire.ParamsArray && idx+4 <= len(p.Arr) && allScalar(p.Arr[idx:idx+4]) {
		c, err := parseColorArray(p.Arr[idx : idx+4])
		return c, idx + 4, err
	}
	v, ok := paramValue(p, idx, "color")
	if !ok {
		return engine.RGBA{}, idx, fmt.Errorf("missing color")
	}
	c, err := ParseColor(v)
	return c, idx + 1, err
}

func allScalar(vs []wire.Value) bool {
	for _, v := range vs {
		if v.Kind != wire.KindInt && v.Kind != wire.KindFloat {
			return false
		}
	}
	return true
}

func parseColorArray(arr []wire.Value) (engine.RGBA, error) {
	if len(arr) != 3 && len(arr) != 4 {
		return engine.RGBA{}, fmt.Errorf("color: array must have 3 or 4 components, got %d", len(arr))
	}

	normalized := false
	for _, c := range arr {
		if c.Kind == wire.KindFloat {
			normalized = true
			break
		}
	}

	comp := func(v wire.Value) (uint8, error) {
		switch v.Kind {
		case wire.KindInt:
			if normalized {
				return clampFloat(float64(v.Int)), nil
			}
			return clampInt(v.Int), nil
		case wire.KindFloat:
			return clampFloat(v.Float), nil
		default:
			return 0, fmt.Errorf("color: array component must be numeric")
		}
	}

	r, err := comp(arr[0])
	if err != nil {
		return engine.RGBA{}, err
	}
	g, err := comp(arr[1])
	if err != nil {
		return engine.RGBA{}, err
	}
	b, err := comp(arr[2])
	if err != nil {
		return engine.RGBA{}, err
	}
	a := uint8(255)
	if len(arr) == 4 {
		a, err = comp(arr[3])
		if err != nil {
			return engine.RGBA{}, err
		}
	}
	return engine.RGBA{R: r, G: g, B: b, A: a}, nil
}

func parseColorHex(s string) (engine.RGBA, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 && len(s) != 8 {
		return engine.RGBA{}, fmt.Errorf("color: hex string must be #RRGGBB or #RRGGBBAA, got %q", s)
	}
	component := func(hex string) (uint8, error) {
		n, err := strconv.ParseUint(hex, 16, 8)
		if err != nil {
			return 0, fmt.Errorf("color: invalid hex component %q: %w", hex, err)
		}
		return uint8(n), nil
	}

	r, err := component(s[0:2])
	if err != nil {
		return engine.RGBA{}, err
	}
	g, err := component(s[2:4])
	if err != nil {
		return engine.RGBA{}, err
	}
	b, err := component(s[4:6])
	if err != nil {
		return engine.RGBA{}, err
	}
	a := uint8(255)
	if len(s) == 8 {
		a, err = component(s[6:8])
		if err != nil {
			return engine.RGBA{}, err
		}
	}
	return engine.RGBA{R: r, G: g, B: b, A: a}, nil
}

func parseColorObject(obj *wire.Object) (engine.RGBA, error) {
	if obj == nil {
		return engine.RGBA{}, fmt.Errorf("color: missing object")
	}
	comp := func(key string, required bool) (uint8, bool, error) {
		v, ok := obj.Get(key)
		if !ok {
			if required {
				return 0, false, fmt.Errorf("color: object missing field %q", key)
			}
			return 0, false, nil
		}
		switch v.Kind {
		case wire.KindInt:
			return clampInt(v.Int), true, nil
		case wire.KindFloat:
			if v.Float <= 1.0 {
				return clampFloat(v.Float), true, nil
			}
			return clampInt(int64(v.Float)), true, nil
		default:
			return 0, false, fmt.Errorf("color: field %q must be numeric", key)
		}
	}

	r, _, err := comp("r", true)
	if err != nil {
		return engine.RGBA{}, err
	}
	g, _, err := comp("g", true)
	if err != nil {
		return engine.RGBA{}, err
	}
	b, _, err := comp("b", true)
	if err != nil {
		return engine.RGBA{}, err
	}
	a, present, err := comp("a", false)
	if err != nil {
		return engine.RGBA{}, err
	}
	if !present {
		a = 255
	}
	return engine.RGBA{R: r, G: g, B: b, A: a}, nil
}

func clampInt(v int64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func clampFloat(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 255
	}
	return uint8(v*255.0 + 0.5)
}
