package parser

import (
	"github.com/goccy/go-yaml/ast"
	"github.com/goccy/go-yaml/token"
)

// maxAliasHops bounds alias chains so self-referencing anchors terminate.
const maxAliasHops = 32

type anchorDef struct {
	pos  *token.Position
	node ast.Node
}

// anchorTable maps anchor names to their definitions in document order.
type anchorTable map[string][]anchorDef

type anchorCollector struct {
	anchors anchorTable
}

func (c *anchorCollector) Visit(node ast.Node) ast.Visitor {
	if a, ok := node.(*ast.AnchorNode); ok && a.Name != nil {
		c.anchors[nodeText(a.Name)] = append(c.anchors[nodeText(a.Name)], anchorDef{pos: tokenPosition(a), node: a.Value})
	}
	return c
}

// collectAnchors indexes the anchors of one YAML document.
func collectAnchors(body ast.Node) anchorTable {
	c := &anchorCollector{anchors: make(anchorTable)}
	ast.Walk(c, body)
	return c.anchors
}

// resolve returns the value of the closest anchor named name defined
// before pos, or nil when there is none.
func (t anchorTable) resolve(name string, pos *token.Position) ast.Node {
	var found ast.Node
	for _, def := range t[name] {
		if pos != nil && def.pos != nil && !before(def.pos, pos) {
			break
		}
		found = def.node
	}
	return found
}

func before(a, b *token.Position) bool {
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Column < b.Column
}

func tokenPosition(node ast.Node) *token.Position {
	if tk := node.GetToken(); tk != nil {
		return tk.Position
	}
	return nil
}

func nodeText(node ast.Node) string {
	if s, ok := node.(*ast.StringNode); ok {
		return s.Value
	}
	if tk := node.GetToken(); tk != nil {
		return tk.Value
	}
	return node.String()
}

// unwrap strips anchors and tags and follows aliases so callers see the
// underlying value.
func (w *walker) unwrap(node ast.Node) ast.Node {
	for range maxAliasHops {
		switch n := node.(type) {
		case *ast.AnchorNode:
			node = n.Value
		case *ast.TagNode:
			node = n.Value
		case *ast.AliasNode:
			if n.Value == nil {
				return nil
			}
			node = w.anchors.resolve(nodeText(n.Value), tokenPosition(n))
		default:
			return node
		}
	}
	return nil
}

// mappingValues returns the entries of a mapping node, or nil when node is
// not a mapping. A lone key/value pair is treated as a one-entry mapping.
// Entries pulled in through `<<` merge keys follow the explicit ones, so
// lookup prefers explicit keys.
func (w *walker) mappingValues(node ast.Node) []*ast.MappingValueNode {
	return w.mergedValues(node, 0)
}

func (w *walker) mergedValues(node ast.Node, hops int) []*ast.MappingValueNode {
	var values []*ast.MappingValueNode
	switch n := w.unwrap(node).(type) {
	case *ast.MappingNode:
		values = n.Values
	case *ast.MappingValueNode:
		values = []*ast.MappingValueNode{n}
	default:
		return nil
	}

	var explicit, merged []*ast.MappingValueNode
	for _, v := range values {
		if _, ok := v.Key.(*ast.MergeKeyNode); !ok {
			explicit = append(explicit, v)
			continue
		}
		if hops >= maxAliasHops {
			continue
		}
		if seq, ok := w.unwrap(v.Value).(*ast.SequenceNode); ok {
			for _, item := range seq.Values {
				merged = append(merged, w.mergedValues(item, hops+1)...)
			}
			continue
		}
		merged = append(merged, w.mergedValues(v.Value, hops+1)...)
	}
	if merged == nil {
		return explicit
	}
	return append(explicit, merged...)
}

// lookup returns the first entry whose key is name.
func lookup(values []*ast.MappingValueNode, name string) *ast.MappingValueNode {
	for _, v := range values {
		if keyString(v.Key) == name {
			return v
		}
	}
	return nil
}

func keyString(key ast.MapKeyNode) string {
	if key == nil {
		return ""
	}
	if s, ok := key.(*ast.StringNode); ok {
		return s.Value
	}
	if tk := key.GetToken(); tk != nil {
		return tk.Value
	}
	return key.String()
}

// scalarString returns the text of a string scalar (plain, quoted or block).
// Null yields "" and true; other node types yield false.
func (w *walker) scalarString(node ast.Node) (string, bool) {
	switch n := w.unwrap(node).(type) {
	case *ast.StringNode:
		return n.Value, true
	case *ast.LiteralNode:
		if n.Value == nil {
			return "", true
		}
		return n.Value.Value, true
	case *ast.NullNode:
		return "", true
	case nil:
		return "", true
	default:
		return "", false
	}
}
