package resolver

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// IgnoreTarget is the alias value that turns a request into an empty module
const IgnoreTarget = "false"

// applyAlias rewrites request with the longest matching alias. A key ending in "$" only
// matches the request exactly; other keys also match the request followed by a path.
func applyAlias(request string, alias map[string]string) (string, bool) {
	if len(alias) == 0 {
		return request, false
	}
	keys := make([]string, 0, len(alias))
	for k := range alias {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	for _, key := range keys {
		target := alias[key]
		if exact, ok := strings.CutSuffix(key, "$"); ok {
			if request != exact {
				continue
			}
			return target, target == IgnoreTarget
		}
		if request == key {
			return target, target == IgnoreTarget
		}
		if rest, ok := strings.CutPrefix(request, key+"/"); ok {
			if target == IgnoreTarget {
				return "", true
			}
			return strings.TrimSuffix(target, "/") + "/" + rest, false
		}
	}
	return request, false
}

type aliasFile struct {
	Alias map[string]interface{} `toml:"alias"`
}

// LoadAliasFile reads an [alias] table. Values are strings or false; relative string
// values are made absolute against the file's directory.
//
//	[alias]
//	"react" = "preact/compat"
//	"@app" = "./src"
//	"fs" = false
func LoadAliasFile(path string) (map[string]string, error) {
	var f aliasFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("failed to parse alias file: %w", err)
	}

	base := filepath.Dir(path)
	out := make(map[string]string, len(f.Alias))
	for key, value := range f.Alias {
		switch v := value.(type) {
		case string:
			if isRelative(v) {
				v = filepath.Join(base, v)
			}
			out[key] = v
		case bool:
			if v {
				return nil, fmt.Errorf("alias %q: only false is allowed as a boolean", key)
			}
			out[key] = IgnoreTarget
		default:
			return nil, fmt.Errorf("alias %q: unsupported value %v", key, value)
		}
	}
	return out, nil
}
