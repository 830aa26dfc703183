package lookup

import (
	"strings"

	"github.com/tidwall/gjson"
)

// SettingsData is the parsed form of a settings payload.
type SettingsData struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data"`
}

// EmptySettings is what an unparseable payload degrades to.
func EmptySettings() SettingsData {
	return SettingsData{Data: map[string]any{}}
}

// Clone returns a copy of d that shares no maps or slices with it.
func (d SettingsData) Clone() SettingsData {
	out := d
	out.Data = make(map[string]any, len(d.Data))
	for k, v := range d.Data {
		out.Data[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(v))
		for k, inner := range v {
			m[k] = cloneValue(inner)
		}
		return m
	case []any:
		s := make([]any, len(v))
		for i, inner := range v {
			s[i] = cloneValue(inner)
		}
		return s
	}
	return v
}

// ParseSettingsData parses a settings payload such as
// {"Name":"Easy","Description":"…","Settings":{"x":1}}. The second return value
// is false when the payload could not be parsed; the data is then EmptySettings.
//
// The data bag is taken from "Settings", "settings" or "data". Without any of
// those keys it is the payload minus its name and description.
func ParseSettingsData(raw string) (SettingsData, bool) {
	obj, ok := ParseObject(raw)
	if !ok {
		return EmptySettings(), false
	}
	out := SettingsData{
		Name:        pick(obj, "Name", "name").String(),
		Description: pick(obj, "Description", "description").String(),
		Data:        map[string]any{},
	}
	if bag := pick(obj, "Settings", "settings", "data"); bag.Exists() {
		if m, ok := bag.Value().(map[string]any); ok {
			out.Data = m
		}
		return out, true
	}
	obj.ForEach(func(key, value gjson.Result) bool {
		switch strings.ToLower(key.String()) {
		case "name", "description":
		default:
			out.Data[key.String()] = value.Value()
		}
		return true
	})
	return out, true
}

// ParseObject accepts a JSON object, or a JSON string that itself holds one.
func ParseObject(raw string) (gjson.Result, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !gjson.Valid(raw) {
		return gjson.Result{}, false
	}
	v := gjson.Parse(raw)
	if v.Type == gjson.String {
		inner := strings.TrimSpace(v.String())
		if !gjson.Valid(inner) {
			return gjson.Result{}, false
		}
		v = gjson.Parse(inner)
	}
	if !v.IsObject() {
		return gjson.Result{}, false
	}
	return v, true
}

func pick(obj gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := obj.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}
