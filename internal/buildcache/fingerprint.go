package buildcache

import (
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"

	"bundlegraph/internal/module"
)

// Prefixes distinguish the three kinds of recorded paths in a fingerprint map
const (
	filePrefix    = "f:"
	contextPrefix = "d:"
	missingPrefix = "m:"
	absent        = "-"
)

// HashContent returns the hex blake2b-256 digest of data
func HashContent(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hashFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return absent
	}
	return HashContent(data)
}

// hashDir digests the sorted entry names of a directory tree
func hashDir(dir string) string {
	var names []string
	err := fs.WalkDir(os.DirFS(dir), ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != "." {
			names = append(names, p)
		}
		return nil
	})
	if err != nil {
		return absent
	}
	sort.Strings(names)
	return HashContent([]byte(strings.Join(names, "\n")))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}

// Fingerprint records the current state of every path a build depended on
func Fingerprint(info module.BuildInfo) map[string]string {
	out := make(map[string]string, len(info.FileDependencies)+len(info.ContextDependencies)+len(info.MissingDependencies))
	for p := range info.FileDependencies {
		out[filePrefix+p] = hashFile(p)
	}
	for p := range info.BuildDependencies {
		out[filePrefix+p] = hashFile(p)
	}
	for p := range info.ContextDependencies {
		out[contextPrefix+p] = hashDir(p)
	}
	for p := range info.MissingDependencies {
		if exists(p) {
			out[missingPrefix+p] = "present"
		} else {
			out[missingPrefix+p] = absent
		}
	}
	return out
}

// StillValid reports whether every recorded path is unchanged
func StillValid(fingerprints map[string]string) bool {
	for key, want := range fingerprints {
		var got string
		switch {
		case strings.HasPrefix(key, filePrefix):
			got = hashFile(strings.TrimPrefix(key, filePrefix))
		case strings.HasPrefix(key, contextPrefix):
			got = hashDir(strings.TrimPrefix(key, contextPrefix))
		case strings.HasPrefix(key, missingPrefix):
			got = absent
			if exists(strings.TrimPrefix(key, missingPrefix)) {
				got = "present"
			}
		default:
			return false
		}
		if got != want {
			return false
		}
	}
	return true
}
