// Package normalize turns a raw snippet into a complete Go file with a
// single authoritative entry point and a synchronous adapter.
package normalize

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/scanner"
	"go/token"
	"strings"
	"unicode"
)

// Wrapped is the result of Wrap.
type Wrapped struct {
	Source    string // complete Go file
	Complete  bool   // input was already a complete file and is returned unchanged
	Package   string
	Entry     string
	SyncEntry string // empty when the file has no synchronous adapter
	BodyLine  int    // first line of the snippet body in Source, 0 when Complete
	Errors    scanner.ErrorList
}

type segKind int

const (
	segStmt segKind = iota
	segImport
	segDecl
)

type segment struct {
	kind       segKind
	text       string
	bareReturn bool
	isReturn   bool
}

// Wrap normalizes source. A source whose first token is a package clause is
// returned unchanged; anything else is treated as a statement list whose
// imports, named functions, methods and type declarations are hoisted to
// package level.
func Wrap(source, namespace, typeName string) Wrapped {
	pkgName := PackageName(namespace)

	if name, ok := packageClause(source); ok {
		return Wrapped{
			Source:    source,
			Complete:  true,
			Package:   name,
			Entry:     typeName,
			SyncEntry: detectSync(source, typeName),
		}
	}

	segs, errs := split(source)

	var imports, decls, body []string
	lastIsReturn := false
	for _, s := range segs {
		switch s.kind {
		case segImport:
			imports = append(imports, s.text)
		case segDecl:
			decls = append(decls, s.text)
		default:
			text := s.text
			if s.bareReturn {
				text = strings.TrimRightFunc(text, unicode.IsSpace) + " nil"
			}
			body = append(body, text)
			lastIsReturn = s.isReturn
		}
	}
	if !lastIsReturn {
		body = append(body, "return nil")
	}

	ctxName, needImport := contextName(imports)
	ctxQual := ctxName + "."
	if ctxName == "." {
		ctxQual = ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "package %s\n\n", pkgName)
	if needImport {
		b.WriteString("import \"context\"\n")
	}
	for _, imp := range imports {
		b.WriteString(strings.TrimSpace(imp))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	for _, d := range decls {
		b.WriteString(strings.TrimSpace(d))
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "func %s(ctx %sContext, params map[string]any) any {\n", typeName, ctxQual)
	for _, stmt := range body {
		b.WriteString(strings.Trim(stmt, "\n"))
		b.WriteString("\n")
	}
	b.WriteString("}\n\n")
	fmt.Fprintf(&b, "func %sSync(params map[string]any) any {\n", typeName)
	fmt.Fprintf(&b, "\treturn %s(%sBackground(), params)\n", typeName, ctxQual)
	b.WriteString("}\n")

	out := gofmt(b.String())

	return Wrapped{
		Source:    out,
		Package:   pkgName,
		Entry:     typeName,
		SyncEntry: typeName + "Sync",
		BodyLine:  entryLine(out, typeName) + 1,
		Errors:    errs,
	}
}

// gofmt reformats src, returning it unchanged when it does not parse.
func gofmt(src string) string {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "snippet.go", src, parser.ParseComments)
	if err != nil {
		return src
	}
	out, err := Print(fset, f)
	if err != nil {
		return src
	}
	return out
}

// Print renders f with gofmt's layout. Unlike go/format it never sorts
// import specs, so imports stay in the order they were written.
func Print(fset *token.FileSet, f *ast.File) (string, error) {
	var buf bytes.Buffer
	cfg := printer.Config{Mode: printer.UseSpaces | printer.TabIndent, Tabwidth: 8}
	if err := cfg.Fprint(&buf, fset, f); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// split scans source and cuts it at semicolons outside any brackets.
// Comments preceding a statement travel with it.
func split(source string) ([]segment, scanner.ErrorList) {
	src := []byte(source)
	fset := token.NewFileSet()
	file := fset.AddFile("snippet.go", -1, len(src))

	var errs scanner.ErrorList
	var s scanner.Scanner
	s.Init(file, src, func(pos token.Position, msg string) { errs.Add(pos, msg) }, 0)

	var segs []segment
	var cur []token.Token
	start := 0
	depth := 0
	// Inside a for/if/switch header, semicolons separate clauses.
	header := false

	flush := func(end, next int) {
		if len(cur) > 0 {
			segs = append(segs, classify(source[start:end], cur))
		}
		cur = nil
		start = next
	}

	for {
		pos, t, lit := s.Scan()
		if t == token.EOF {
			flush(len(src), len(src))
			break
		}
		off := file.Offset(pos)
		switch t {
		case token.FOR, token.IF, token.SWITCH:
			if depth == 0 {
				header = true
			}
		case token.LBRACE:
			if depth == 0 {
				header = false
			}
			depth++
		case token.LPAREN, token.LBRACK:
			depth++
		case token.RPAREN, token.RBRACK, token.RBRACE:
			if depth > 0 {
				depth--
			}
		case token.SEMICOLON:
			if depth == 0 && !(header && lit == ";") {
				header = false
				if lit == ";" {
					flush(off, off+1)
				} else {
					// Automatically inserted at a newline or EOF.
					flush(min(off, len(src)), min(off, len(src)))
				}
				continue
			}
		}
		cur = append(cur, t)
	}
	return segs, errs
}

func classify(text string, toks []token.Token) segment {
	seg := segment{kind: segStmt, text: text}
	switch toks[0] {
	case token.IMPORT:
		seg.kind = segImport
	case token.TYPE:
		seg.kind = segDecl
	case token.FUNC:
		if isFuncDecl(toks) {
			seg.kind = segDecl
		}
	case token.RETURN:
		seg.isReturn = true
		seg.bareReturn = len(toks) == 1
	}
	return seg
}

// isFuncDecl distinguishes "func name(" and "func (recv) name(" from
// function literals.
func isFuncDecl(toks []token.Token) bool {
	if len(toks) < 2 {
		return false
	}
	if toks[1] == token.IDENT {
		return true
	}
	if toks[1] != token.LPAREN {
		return false
	}
	depth := 0
	for i := 1; i < len(toks); i++ {
		switch toks[i] {
		case token.LPAREN:
			depth++
		case token.RPAREN:
			depth--
			if depth == 0 {
				return i+2 < len(toks) &&
					toks[i+1] == token.IDENT &&
					(toks[i+2] == token.LPAREN || toks[i+2] == token.LBRACK)
			}
		}
	}
	return false
}

// packageClause reports whether the first token of source is "package"
// and returns the declared name.
func packageClause(source string) (string, bool) {
	src := []byte(source)
	fset := token.NewFileSet()
	file := fset.AddFile("snippet.go", -1, len(src))
	var s scanner.Scanner
	s.Init(file, src, nil, 0)

	_, t, _ := s.Scan()
	if t != token.PACKAGE {
		return "", false
	}
	_, t, lit := s.Scan()
	if t != token.IDENT {
		return "", true
	}
	return lit, true
}

// detectSync reports the synchronous adapter name if a complete file
// declares one.
func detectSync(source, typeName string) string {
	src := []byte(source)
	fset := token.NewFileSet()
	file := fset.AddFile("snippet.go", -1, len(src))
	var s scanner.Scanner
	s.Init(file, src, nil, 0)

	want := typeName + "Sync"
	prev := token.ILLEGAL
	depth := 0
	for {
		_, t, lit := s.Scan()
		switch t {
		case token.EOF:
			return ""
		case token.LBRACE:
			depth++
		case token.RBRACE:
			depth--
		case token.IDENT:
			if depth == 0 && prev == token.FUNC && lit == want {
				return want
			}
		}
		prev = t
	}
}

// contextName returns the name under which "context" is imported among
// imports, or "context" plus true when the import must be added.
func contextName(imports []string) (string, bool) {
	for _, imp := range imports {
		src := []byte(imp)
		fset := token.NewFileSet()
		file := fset.AddFile("imports.go", -1, len(src))
		var s scanner.Scanner
		s.Init(file, src, nil, 0)

		name := ""
		for {
			_, t, lit := s.Scan()
			if t == token.EOF {
				break
			}
			switch t {
			case token.IDENT:
				name = lit
			case token.PERIOD:
				name = "."
			case token.STRING:
				if lit == `"context"` || lit == "`context`" {
					switch name {
					case "_":
					case "":
						return "context", false
					default:
						return name, false
					}
				}
				name = ""
			case token.SEMICOLON:
				name = ""
			}
		}
	}
	return "context", true
}

// PackageName derives a valid package name from a namespace such as
// "snippet", "tools/scratch" or "my-ns".
func PackageName(namespace string) string {
	ns := strings.TrimSpace(namespace)
	if i := strings.LastIndexAny(ns, "/."); i >= 0 {
		ns = ns[i+1:]
	}
	var b bytes.Buffer
	for i, r := range ns {
		switch {
		case r == '_' || unicode.IsLetter(r):
			b.WriteRune(r)
		case unicode.IsDigit(r):
			if i == 0 {
				b.WriteString("p")
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := b.String()
	if name == "" || name == "_" {
		return "snippet"
	}
	if token.IsKeyword(name) {
		name += "_"
	}
	return name
}

func entryLine(src, typeName string) int {
	prefix := "func " + typeName + "("
	for i, line := range strings.Split(src, "\n") {
		if strings.HasPrefix(line, prefix) {
			return i + 1
		}
	}
	return 0
}
