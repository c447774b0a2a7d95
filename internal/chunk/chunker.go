package chunk

import (
	"context"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	kerrors "github.com/kestrelsearch/kestrel/internal/errors"
)

// CodeChunker extracts function and class chunks from source files
// using tree-sitter. Files in languages without a grammar, and files
// whose parse yields no symbols, fall back to a single file chunk.
//
// CodeChunker is safe for concurrent use; each call parses with its
// own tree-sitter parser.
type CodeChunker struct {
	pool sync.Pool
}

// NewCodeChunker creates a CodeChunker.
func NewCodeChunker() *CodeChunker {
	return &CodeChunker{
		pool: sync.Pool{New: func() any { return sitter.NewParser() }},
	}
}

// Chunk splits content into chunks. The returned slice is ordered by
// StartLine and is never empty for non-empty content.
func (c *CodeChunker) Chunk(ctx context.Context, path string, content []byte) ([]Chunk, error) {
	if len(content) == 0 {
		return nil, nil
	}

	g := grammarFor(LanguageForPath(path))
	if g == nil {
		return []Chunk{FileChunk(content)}, nil
	}

	parser := c.pool.Get().(*sitter.Parser)
	defer c.pool.Put(parser)
	parser.SetLanguage(g.language)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		if ctx.Err() != nil {
			return nil, kerrors.Wrap(err, kerrors.ErrCodeTimeout, "parse canceled")
		}
		return []Chunk{FileChunk(content)}, nil
	}
	defer tree.Close()

	chunks := extract(tree.RootNode(), content, g)
	if len(chunks) == 0 {
		return []Chunk{FileChunk(content)}, nil
	}
	return chunks, nil
}

// extract walks the top level of the AST and emits one chunk per
// function or class declaration.
func extract(root *sitter.Node, source []byte, g *grammar) []Chunk {
	var chunks []Chunk
	imports := collectImports(root, source)

	count := int(root.NamedChildCount())
	for i := 0; i < count; i++ {
		node := root.NamedChild(i)
		switch {
		case g.functionTypes[node.Type()]:
			chunks = append(chunks, functionChunk(node, source, g, ""))
		case g.classTypes[node.Type()]:
			cc, ok := classChunk(node, source, g)
			if !ok {
				continue
			}
			chunks = append(chunks, cc)
			if g.methodsNested {
				chunks = append(chunks, nestedMethods(node, source, g, cc.ClassName)...)
			}
		}
	}

	for i := range chunks {
		chunks[i].Imports = imports
	}
	return chunks
}

func functionChunk(node *sitter.Node, source []byte, g *grammar, className string) Chunk {
	ch := Chunk{
		Type:         TypeFunction,
		Content:      node.Content(source),
		StartLine:    int(node.StartPoint().Row) + 1,
		EndLine:      int(node.EndPoint().Row) + 1,
		FunctionName: nodeName(node, source),
		ClassName:    className,
		Signature:    signature(node, source),
		Docstring:    leadingComments(node, source, g),
	}
	if className == "" && node.Type() == "method_declaration" {
		ch.ClassName = receiverType(node, source)
	}
	return ch
}

// classChunk emits a chunk for a type or class declaration. Go type
// declarations only produce a chunk for struct and interface types;
// aliases and basic named types stay in the file chunk fallback.
func classChunk(node *sitter.Node, source []byte, g *grammar) (Chunk, bool) {
	name := nodeName(node, source)

	if node.Type() == "type_declaration" {
		spec := firstChildOfType(node, "type_spec")
		if spec == nil {
			return Chunk{}, false
		}
		kind := spec.ChildByFieldName("type")
		if kind == nil || (kind.Type() != "struct_type" && kind.Type() != "interface_type") {
			return Chunk{}, false
		}
		name = nodeName(spec, source)
	}

	return Chunk{
		Type:      TypeClass,
		Content:   node.Content(source),
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		ClassName: name,
		Signature: signature(node, source),
		Docstring: leadingComments(node, source, g),
	}, true
}

// nestedMethods emits function chunks for definitions inside a class
// body, for grammars where methods are not top level.
func nestedMethods(class *sitter.Node, source []byte, g *grammar, className string) []Chunk {
	body := class.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	var out []Chunk
	count := int(body.NamedChildCount())
	for i := 0; i < count; i++ {
		node := body.NamedChild(i)
		// Python wraps decorated methods in decorated_definition.
		if node.Type() == "decorated_definition" {
			if def := node.ChildByFieldName("definition"); def != nil {
				node = def
			}
		}
		if g.functionTypes[node.Type()] {
			out = append(out, functionChunk(node, source, g, className))
		}
	}
	return out
}

// nodeName reads the declaration's name field.
func nodeName(node *sitter.Node, source []byte) string {
	name := node.ChildByFieldName("name")
	if name == nil {
		return ""
	}
	return name.Content(source)
}

// signature is the declaration header: everything before the body, on
// one line.
func signature(node *sitter.Node, source []byte) string {
	end := node.EndByte()
	if body := node.ChildByFieldName("body"); body != nil {
		end = body.StartByte()
	}
	sig := string(source[node.StartByte():end])
	sig = strings.Join(strings.Fields(sig), " ")
	return strings.TrimSuffix(sig, " {")
}

// receiverType extracts the receiver's base type from a Go method
// declaration, so methods group under their type.
func receiverType(node *sitter.Node, source []byte) string {
	recv := node.ChildByFieldName("receiver")
	if recv == nil || recv.NamedChildCount() == 0 {
		return ""
	}
	decl := recv.NamedChild(0)
	typ := decl.ChildByFieldName("type")
	if typ == nil {
		return ""
	}
	return strings.TrimPrefix(typ.Content(source), "*")
}

// leadingComments joins the comment block immediately above a
// declaration. A blank line between comment and declaration breaks
// the association.
func leadingComments(node *sitter.Node, source []byte, g *grammar) string {
	var lines []string
	expectRow := int(node.StartPoint().Row) - 1

	for prev := node.PrevNamedSibling(); prev != nil; prev = prev.PrevNamedSibling() {
		if prev.Type() != g.commentType || int(prev.EndPoint().Row) != expectRow {
			break
		}
		lines = append([]string{cleanComment(prev.Content(source))}, lines...)
		expectRow = int(prev.StartPoint().Row) - 1
	}

	// Python docstrings live inside the body as the first expression.
	if len(lines) == 0 && g.methodsNested {
		if doc := pythonDocstring(node, source); doc != "" {
			return doc
		}
	}
	return strings.Join(lines, "\n")
}

func pythonDocstring(node *sitter.Node, source []byte) string {
	body := node.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str.Type() != "string" {
		return ""
	}
	doc := str.Content(source)
	doc = strings.Trim(doc, `"'`)
	return strings.TrimSpace(doc)
}

func cleanComment(text string) string {
	text = strings.TrimPrefix(text, "//")
	if strings.HasPrefix(text, "/*") {
		text = strings.TrimSuffix(strings.TrimPrefix(text, "/*"), "*/")
	}
	text = strings.TrimPrefix(text, "#")
	return strings.TrimSpace(text)
}

// collectImports gathers import paths from the top of the file.
func collectImports(root *sitter.Node, source []byte) []string {
	var imports []string
	count := int(root.NamedChildCount())
	for i := 0; i < count; i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "import_declaration": // Go
			for _, spec := range descendantsOfType(node, "import_spec") {
				if path := spec.ChildByFieldName("path"); path != nil {
					imports = append(imports, strings.Trim(path.Content(source), `"`))
				}
			}
		case "import_statement", "import_from_statement": // Python, JS/TS
			imports = append(imports, strings.Join(strings.Fields(node.Content(source)), " "))
		}
	}
	return imports
}

func firstChildOfType(node *sitter.Node, nodeType string) *sitter.Node {
	count := int(node.NamedChildCount())
	for i := 0; i < count; i++ {
		if child := node.NamedChild(i); child.Type() == nodeType {
			return child
		}
	}
	return nil
}

func descendantsOfType(node *sitter.Node, nodeType string) []*sitter.Node {
	var out []*sitter.Node
	if node.Type() == nodeType {
		out = append(out, node)
	}
	count := int(node.NamedChildCount())
	for i := 0; i < count; i++ {
		out = append(out, descendantsOfType(node.NamedChild(i), nodeType)...)
	}
	return out
}
