package storage

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/b-open-io/gamedata/lookup"
)

// contextNestingKeys hold the attribute bag when the payload wraps it.
var contextNestingKeys = []string{"Contexts", "contexts", "Context", "context"}

// ParseContext parses a context payload, either a JSON object or a JSON string
// holding one. Name and description are lifted out of the attribute bag. A
// payload that cannot be parsed yields an empty context.
func ParseContext(raw string) TokenContext {
	out := TokenContext{Attributes: map[string]string{}}
	obj, ok := lookup.ParseObject(raw)
	if !ok {
		return out
	}
	out.Name = first(obj, "Name", "name").String()
	out.Description = first(obj, "Description", "description").String()

	bag := obj
	for _, k := range contextNestingKeys {
		if nested := obj.Get(k); nested.IsObject() {
			bag = nested
			break
		}
	}
	bag.ForEach(func(key, value gjson.Result) bool {
		switch strings.ToLower(key.String()) {
		case "name", "description":
			return true
		}
		out.Attributes[key.String()] = value.String()
		return true
	})
	return out
}

func first(obj gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := obj.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}
