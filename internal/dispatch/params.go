package dispatch

import "goxeld/internal/wire"

// paramInt reads a required integer parameter at positional index idx or
// named key.
func paramInt(p wire.Params, idx int, key string) (int64, bool) {
	v, ok := p.Get(idx, key)
	if !ok {
		return 0, false
	}
	switch v.Kind {
	case wire.KindInt:
		return v.Int, true
	case wire.KindFloat:
		return int64(v.Float), true
	default:
		return 0, false
	}
}

// paramIntDefault reads an optional integer parameter, returning def if
// absent or the wrong type.
func paramIntDefault(p wire.Params, idx int, key string, def int64) int64 {
	v, ok := paramInt(p, idx, key)
	if !ok {
		return def
	}
	return v
}

func paramString(p wire.Params, idx int, key string) (string, bool) {
	v, ok := p.Get(idx, key)
	if !ok || v.Kind != wire.KindString {
		return "", false
	}
	return v.Str, true
}

func paramStringDefault(p wire.Params, idx int, key, def string) string {
	v, ok := paramString(p, idx, key)
	if !ok {
		return def
	}
	return v
}

func paramBoolDefault(p wire.Params, idx int, key string, def bool) bool {
	v, ok := p.Get(idx, key)
	if !ok || v.Kind != wire.KindBool {
		return def
	}
	return v.Bool
}

func paramValue(p wire.Params, idx int, key string) (wire.Value, bool) {
	return p.Get(idx, key)
}
