//go:build cgo

package jsmodule

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"bundlegraph/internal/module"
)

// parsers are not safe for concurrent use; builds run in parallel
var parsers = sync.Pool{New: func() any { return sitter.NewParser() }}

// Precise reports whether scanning uses a full parser
func Precise() bool {
	return true
}

func getLanguage(lang Language) (*sitter.Language, error) {
	switch lang {
	case LangJavaScript:
		return javascript.GetLanguage(), nil
	case LangTypeScript:
		return typescript.GetLanguage(), nil
	case LangTSX:
		return tsx.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
}

// Scan parses source and collects its requests in source order
func Scan(ctx context.Context, source []byte, lang Language) (*ScanResult, error) {
	tsLang, err := getLanguage(lang)
	if err != nil {
		return nil, err
	}

	p := parsers.Get().(*sitter.Parser)
	defer parsers.Put(p)
	p.SetLanguage(tsLang)

	tree, err := p.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	root := tree.RootNode()

	s := &scanner{source: source, result: &ScanResult{SyntaxErrors: root.HasError()}}
	s.visit(root)
	return s.result, nil
}

type scanner struct {
	source []byte
	result *ScanResult
}

func (s *scanner) add(kind module.DependencyKind, spec string, n *sitter.Node) {
	s.result.Requests = append(s.result.Requests, Request{Kind: kind, Specifier: spec, Offset: int(n.StartByte())})
}

func (s *scanner) visit(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "import_statement":
		s.result.ESM = true
		if spec, ok := s.stringValue(n.ChildByFieldName("source")); ok && !typeOnly(n) {
			s.add(module.DepESMImport, spec, n)
		}
		return
	case "export_statement":
		s.result.ESM = true
		if spec, ok := s.stringValue(n.ChildByFieldName("source")); ok && !typeOnly(n) {
			s.add(module.DepESMReexport, spec, n)
		}
	case "call_expression":
		s.call(n)
	case "assignment_expression":
		s.assignment(n)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		s.visit(n.NamedChild(i))
	}
}

func (s *scanner) call(n *sitter.Node) {
	fn := n.ChildByFieldName("function")
	args := n.ChildByFieldName("arguments")
	if fn == nil || args == nil || args.NamedChildCount() == 0 {
		return
	}
	first, ok := s.stringValue(args.NamedChild(0))

	switch {
	case fn.Type() == "import":
		s.result.ESM = true
		if ok {
			s.add(module.DepDynamicImport, first, n)
		}
	case fn.Type() == "identifier" && fn.Content(s.source) == "require":
		s.result.CommonJS = true
		if ok {
			s.add(module.DepRequire, first, n)
		}
	case fn.Type() == "member_expression" && fn.Content(s.source) == "require.context":
		if !ok {
			return
		}
		req := Request{Kind: module.DepContext, Specifier: first, Recursive: true, Pattern: DefaultContextPattern, Offset: int(n.StartByte())}
		if args.NamedChildCount() > 1 {
			req.Recursive = args.NamedChild(1).Type() != "false"
		}
		if args.NamedChildCount() > 2 {
			if re := args.NamedChild(2); re.Type() == "regex" {
				if pattern := re.ChildByFieldName("pattern"); pattern != nil {
					req.Pattern = pattern.Content(s.source)
				}
			}
		}
		s.result.CommonJS = true
		s.result.Requests = append(s.result.Requests, req)
	}
}

// assignment records module.exports = ..., exports.x = ... and module.exports.x = ...
func (s *scanner) assignment(n *sitter.Node) {
	left := n.ChildByFieldName("left")
	if left == nil || left.Type() != "member_expression" {
		return
	}
	names := exportPath(left.Content(s.source))
	if names == nil {
		return
	}
	s.result.CommonJS = true
	s.result.Requests = append(s.result.Requests, Request{Kind: module.DepSelfReference, Names: names, Offset: int(n.StartByte())})
}

// exportPath turns "module.exports.a" or "exports.a" into ["exports", "a"]
func exportPath(target string) []string {
	parts := strings.Split(strings.ReplaceAll(target, " ", ""), ".")
	if len(parts) >= 2 && parts[0] == "module" && parts[1] == "exports" {
		parts = parts[1:]
	}
	if parts[0] != "exports" || len(parts) > 2 {
		return nil
	}
	return parts
}

// stringValue returns the text of a string literal or a template without substitutions
func (s *scanner) stringValue(n *sitter.Node) (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Type() {
	case "string":
	case "template_string":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if n.NamedChild(i).Type() == "template_substitution" {
				return "", false
			}
		}
	default:
		return "", false
	}
	text := n.Content(s.source)
	if len(text) < 2 {
		return "", false
	}
	return text[1 : len(text)-1], true
}

// typeOnly reports TypeScript's import type / export type, which are erased
func typeOnly(n *sitter.Node) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == "type" {
			return true
		}
	}
	return false
}
