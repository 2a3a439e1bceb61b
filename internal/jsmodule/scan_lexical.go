//go:build !cgo

package jsmodule

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"bundlegraph/internal/module"
)

// Without cgo there is no tree-sitter. Requests are found by pattern matching, which
// does not skip comments or string contents.

var (
	importRe    = regexp.MustCompile(`\bimport\s+(type\s+)?(?:[\w$*{}\s,]+?\s*from\s*)?['"]([^'"\n]+)['"]`)
	reexportRe  = regexp.MustCompile(`\bexport\s+(type\s+)?(?:\*(?:\s+as\s+[\w$]+)?|\{[^}]*\})\s*from\s*['"]([^'"\n]+)['"]`)
	exportRe    = regexp.MustCompile(`(?m)^\s*export\b`)
	dynamicRe   = regexp.MustCompile(`\bimport\s*\(\s*['"` + "`" + `]([^'"` + "`" + `\n$]+)['"` + "`" + `]\s*\)`)
	requireRe   = regexp.MustCompile(`(?:^|[^.\w$])require\s*\(\s*['"]([^'"\n]+)['"]\s*\)`)
	contextRe   = regexp.MustCompile(`\brequire\.context\s*\(\s*['"]([^'"\n]+)['"]\s*(?:,\s*(true|false)\s*)?(?:,\s*/((?:\\.|[^/\\\n])+)/[a-z]*\s*)?\)`)
	selfRe      = regexp.MustCompile(`(?:^|[^.\w$])((?:module\.)?exports)(?:\.([\w$]+))?\s*=[^=]`)
	commonJSUse = regexp.MustCompile(`(?:^|[^.\w$])(?:require\s*\(|module\.exports\b|exports\.)`)
)

// Precise reports whether scanning uses a full parser
func Precise() bool {
	return false
}

// Scan collects the requests of source in source order
func Scan(ctx context.Context, source []byte, lang Language) (*ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src := string(source)
	res := &ScanResult{}

	for _, m := range importRe.FindAllStringSubmatchIndex(src, -1) {
		res.ESM = true
		if m[2] < 0 {
			res.Requests = append(res.Requests, Request{Kind: module.DepESMImport, Specifier: src[m[4]:m[5]], Offset: m[0]})
		}
	}
	for _, m := range reexportRe.FindAllStringSubmatchIndex(src, -1) {
		res.ESM = true
		if m[2] < 0 {
			res.Requests = append(res.Requests, Request{Kind: module.DepESMReexport, Specifier: src[m[4]:m[5]], Offset: m[0]})
		}
	}
	if exportRe.MatchString(src) {
		res.ESM = true
	}
	for _, m := range dynamicRe.FindAllStringSubmatchIndex(src, -1) {
		res.ESM = true
		res.Requests = append(res.Requests, Request{Kind: module.DepDynamicImport, Specifier: src[m[2]:m[3]], Offset: m[0]})
	}
	for _, m := range requireRe.FindAllStringSubmatchIndex(src, -1) {
		res.Requests = append(res.Requests, Request{Kind: module.DepRequire, Specifier: src[m[2]:m[3]], Offset: m[2]})
	}
	for _, m := range contextRe.FindAllStringSubmatchIndex(src, -1) {
		req := Request{Kind: module.DepContext, Specifier: src[m[2]:m[3]], Recursive: true, Pattern: DefaultContextPattern, Offset: m[0]}
		if m[4] >= 0 {
			req.Recursive = src[m[4]:m[5]] == "true"
		}
		if m[6] >= 0 {
			req.Pattern = src[m[6]:m[7]]
		}
		res.Requests = append(res.Requests, req)
	}
	for _, m := range selfRe.FindAllStringSubmatchIndex(src, -1) {
		names := []string{"exports"}
		if m[4] >= 0 {
			names = append(names, src[m[4]:m[5]])
		}
		res.Requests = append(res.Requests, Request{Kind: module.DepSelfReference, Names: names, Offset: m[2]})
	}
	res.CommonJS = commonJSUse.MatchString(src) || strings.Contains(src, "require.context(")

	sort.SliceStable(res.Requests, func(i, j int) bool { return res.Requests[i].Offset < res.Requests[j].Offset })
	return res, nil
}
