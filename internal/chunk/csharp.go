package chunk

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	sitter "github.com/tree-sitter/go-tree-sitter"
	csharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"
)

// ErrUnparsable is returned when the syntax tree cannot be built.
// Callers typically fall back to the line chunker.
var ErrUnparsable = errors.New("source could not be parsed")

// CSharpChunker emits one chunk per method declaration, with the method
// name, the enclosing type name, and the exact 1-based line span. Files
// without any methods produce a single file-level chunk.
type CSharpChunker struct {
	language *sitter.Language
}

func NewCSharpChunker() *CSharpChunker {
	return &CSharpChunker{
		language: sitter.NewLanguage(csharp.Language()),
	}
}

func (c *CSharpChunker) Chunk(path string, source []byte, modTime time.Time) ([]Chunk, error) {
	if strings.TrimSpace(string(source)) == "" {
		return nil, nil
	}

	parser := sitter.NewParser()
	defer parser.Close()

	parser.SetLanguage(c.language)

	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, ErrUnparsable
	}
	defer tree.Close()

	modTime = modTime.UTC()
	var chunks []Chunk

	walkTree(tree.RootNode(), func(n *sitter.Node) bool {
		if n.Kind() != "method_declaration" {
			return true
		}

		nameNode := n.ChildByFieldName("name")
		if nameNode == nil {
			return true
		}

		chunks = append(chunks, Chunk{
			ID:           NewID(),
			FilePath:     path,
			FileName:     filepath.Base(path),
			Content:      nodeText(n, source),
			StartLine:    int(n.StartPosition().Row) + 1,
			EndLine:      int(n.EndPosition().Row) + 1,
			LastModified: modTime,
			Language:     "csharp",
			FunctionName: nodeText(nameNode, source),
			ClassName:    enclosingTypeName(n, source),
			Tags:         []string{"method"},
		})
		return false // method bodies cannot contain further method declarations
	})

	if len(chunks) == 0 {
		text := string(source)
		chunks = append(chunks, Chunk{
			ID:           NewID(),
			FilePath:     path,
			FileName:     filepath.Base(path),
			Content:      text,
			StartLine:    1,
			EndLine:      strings.Count(text, "\n") + 1,
			LastModified: modTime,
			Language:     "csharp",
			Tags:         []string{"file-level"},
		})
	}

	return chunks, nil
}

// enclosingTypeName walks up the tree to find the nearest containing
// type declaration and returns its name.
func enclosingTypeName(node *sitter.Node, source []byte) string {
	for parent := node.Parent(); parent != nil; parent = parent.Parent() {
		switch parent.Kind() {
		case "class_declaration", "struct_declaration", "interface_declaration", "record_declaration":
			if nameNode := parent.ChildByFieldName("name"); nameNode != nil {
				return nodeText(nameNode, source)
			}
		}
	}
	return ""
}

// walkTree visits nodes depth-first. The visitor returns false to skip
// a node's children.
func walkTree(node *sitter.Node, visit func(*sitter.Node) bool) {
	if node == nil {
		return
	}
	if !visit(node) {
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		walkTree(node.Child(i), visit)
	}
}

func nodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}
