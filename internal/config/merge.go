package config

// Merge deep-merges override onto base. Where both sides hold an object under
// the same key the merge recurses; in every other case the override wins.
// Neither argument is modified.
func Merge(base, override Value) Value {
	if !base.IsObject() || !override.IsObject() {
		return override
	}
	keys := base.Keys()
	fields := make(map[string]Value, len(base.fields)+len(override.fields))
	for k, v := range base.fields {
		fields[k] = v
	}
	for _, k := range override.keys {
		ov := override.fields[k]
		if bv, ok := base.fields[k]; ok {
			fields[k] = Merge(bv, ov)
			continue
		}
		keys = append(keys, k)
		fields[k] = ov
	}
	return Object(keys, fields)
}
