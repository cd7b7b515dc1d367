package diffs

import "strconv"

// Apply replays entries against a snapshot and returns the
// reconstruction. It exists to verify that Diff output is lossless; the
// handler pipelines never mutate snapshots.
func Apply(base map[string]any, entries []Entry) map[string]any {
	out, _ := clone(base).(map[string]any)
	if out == nil {
		out = make(map[string]any)
	}
	for _, entry := range entries {
		applyEntry(out, entry)
	}
	return out
}

func applyEntry(root map[string]any, entry Entry) {
	switch entry.Kind {
	case KindNew, KindEdited:
		setAt(root, entry.Path, func(any) any { return clone(entry.After) })
	case KindDeleted:
		if len(entry.Path) == 0 {
			return
		}
		parent, last := entry.Path[:len(entry.Path)-1], entry.Path[len(entry.Path)-1]
		setAt(root, parent, func(container any) any {
			if m, ok := container.(map[string]any); ok {
				delete(m, last)
			}
			return container
		})
	case KindArray:
		if entry.Item == nil {
			return
		}
		item := *entry.Item
		index := entry.Index
		setAt(root, entry.Path, func(container any) any {
			list, _ := container.([]any)
			switch item.Kind {
			case KindNew:
				for len(list) <= index {
					list = append(list, nil)
				}
				list[index] = clone(item.After)
			case KindDeleted:
				if len(list) > index {
					list = list[:index]
				}
			}
			return list
		})
	}
}

// setAt walks path into root and replaces the value at the end with
// whatever fn returns. Numeric segments index into slices.
func setAt(root map[string]any, path []string, fn func(any) any) {
	if len(path) == 0 {
		// the root snapshot itself; only map-valued edits land here
		if m, ok := fn(root).(map[string]any); ok && len(m) > 0 {
			for key, value := range m {
				root[key] = value
			}
		}
		return
	}
	descend(root, path, fn)
}

func descend(container any, path []string, fn func(any) any) any {
	if len(path) == 0 {
		return fn(container)
	}
	segment := path[0]
	switch c := container.(type) {
	case map[string]any:
		c[segment] = descend(c[segment], path[1:], fn)
		return c
	case []any:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 {
			return c
		}
		for len(c) <= index {
			c = append(c, nil)
		}
		c[index] = descend(c[index], path[1:], fn)
		return c
	default:
		m := make(map[string]any)
		m[segment] = descend(nil, path[1:], fn)
		return m
	}
}

func clone(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = clone(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = clone(item)
		}
		return out
	default:
		return v
	}
}
