package export

import "sort"

// DirectorySummary is the module count of one directory
type DirectorySummary struct {
	Path        string `json:"path" yaml:"path"`
	ModuleCount int    `json:"moduleCount" yaml:"moduleCount"`
}

// Bridge counts connections from modules of one directory to modules of another
type Bridge struct {
	From  string `json:"from" yaml:"from"`
	To    string `json:"to" yaml:"to"`
	Count int    `json:"count" yaml:"count"`
}

// Summarize groups modules by directory in lexical order. Modules without a directory
// (ignored requests) are listed under "-".
func Summarize(exp *GraphExport) []DirectorySummary {
	counts := make(map[string]int)
	for _, m := range exp.Modules {
		counts[directoryKey(m)]++
	}
	out := make([]DirectorySummary, 0, len(counts))
	for path, n := range counts {
		out = append(out, DirectorySummary{Path: path, ModuleCount: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Bridges returns the cross-directory connection counts, most used first
func Bridges(exp *GraphExport) []Bridge {
	dirOf := make(map[string]string, len(exp.Modules))
	for _, m := range exp.Modules {
		dirOf[m.Identifier] = directoryKey(m)
	}

	counts := make(map[[2]string]int)
	for _, m := range exp.Modules {
		for _, c := range m.Connections {
			to, ok := dirOf[c.Target]
			from := directoryKey(m)
			if !ok || to == from {
				continue
			}
			counts[[2]string{from, to}]++
		}
	}

	out := make([]Bridge, 0, len(counts))
	for k, n := range counts {
		out = append(out, Bridge{From: k[0], To: k[1], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

func directoryKey(m ExportModule) string {
	if m.Directory == "" {
		return "-"
	}
	return m.Directory
}
