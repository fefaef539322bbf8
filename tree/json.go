package tree

import (
	"encoding/json"

	"github.com/dhamidi/grove/text"
)

type jsonNode struct {
	Kind     string      `json:"kind" yaml:"kind"`
	Field    string      `json:"field,omitempty" yaml:"field,omitempty"`
	Named    bool        `json:"named,omitempty" yaml:"named,omitempty"`
	Range    jsonRange   `json:"range" yaml:"range"`
	Text     string      `json:"text,omitempty" yaml:"text,omitempty"`
	Error    bool        `json:"error,omitempty" yaml:"error,omitempty"`
	Missing  bool        `json:"missing,omitempty" yaml:"missing,omitempty"`
	Extra    bool        `json:"extra,omitempty" yaml:"extra,omitempty"`
	Children []*jsonNode `json:"children,omitempty" yaml:"children,omitempty"`
}

type jsonRange struct {
	Start jsonPosition `json:"start" yaml:"start"`
	End   jsonPosition `json:"end" yaml:"end"`
}

type jsonPosition struct {
	Byte   int `json:"byte" yaml:"byte"`
	Row    int `json:"row" yaml:"row"`
	Column int `json:"column" yaml:"column"`
}

func position(p text.Position) jsonPosition {
	return jsonPosition{Byte: p.Byte, Row: p.Point.Row, Column: p.Point.Column}
}

func (n Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.toJSON())
}

// MarshalYAML implements yaml.Marshaler.
func (n Node) MarshalYAML() (any, error) {
	return n.toJSON(), nil
}

func (t *Tree) MarshalJSON() ([]byte, error) {
	return t.RootNode().MarshalJSON()
}

func (t *Tree) MarshalYAML() (any, error) {
	return t.RootNode().MarshalYAML()
}

func (n Node) toJSON() *jsonNode {
	jn := &jsonNode{
		Kind:    n.Kind(),
		Field:   n.FieldName(),
		Named:   n.IsNamed(),
		Range:   jsonRange{Start: position(n.StartPosition()), End: position(n.EndPosition())},
		Error:   n.IsError(),
		Missing: n.IsMissing(),
		Extra:   n.IsExtra(),
	}
	children := n.Children()
	if len(children) == 0 {
		jn.Text = n.Text()
		return jn
	}
	jn.Children = make([]*jsonNode, len(children))
	for i, child := range children {
		jn.Children[i] = child.toJSON()
	}
	return jn
}
