// internal/flatten/xml.go - Generic XML element trees for flattening
package flatten

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// ParseXML decodes an XML document into the generic tree Flatten consumes.
// Element namespaces are dropped (the decoder resolves prefixes away),
// attributes become child keys, and an element carrying both attributes or
// children and text keeps the text under "#text". Repeated sibling elements
// become a list, which Flatten turns into indexed path segments.
func ParseXML(data []byte) (interface{}, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	dec := xml.NewDecoder(bytes.NewReader(data))

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, &ParseError{Format: "xml", Err: fmt.Errorf("no root element")}
		}
		if err != nil {
			return nil, &ParseError{Format: "xml", Err: err}
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		content, err := parseElement(dec, start)
		if err != nil {
			return nil, &ParseError{Format: "xml", Err: err}
		}
		return map[string]interface{}{start.Name.Local: content}, nil
	}
}

// parseElement consumes tokens until the matching end tag and returns either
// a scalar string (text-only element) or a nested map.
func parseElement(dec *xml.Decoder, start xml.StartElement) (interface{}, error) {
	children := make(map[string][]interface{})
	var order []string
	var text strings.Builder

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			child, err := parseElement(dec, t)
			if err != nil {
				return nil, err
			}
			name := t.Name.Local
			if _, seen := children[name]; !seen {
				order = append(order, name)
			}
			children[name] = append(children[name], child)

		case xml.CharData:
			text.Write(t)

		case xml.EndElement:
			return buildNode(start, children, order, strings.TrimSpace(text.String())), nil
		}
	}
}

func buildNode(start xml.StartElement, children map[string][]interface{}, order []string, text string) interface{} {
	attrs := elementAttrs(start)

	if len(children) == 0 && len(attrs) == 0 {
		return text
	}

	node := make(map[string]interface{}, len(children)+len(attrs)+1)
	for k, v := range attrs {
		node[k] = v
	}
	for _, name := range order {
		if list := children[name]; len(list) == 1 {
			node[name] = list[0]
		} else {
			node[name] = list
		}
	}
	if text != "" {
		node["#text"] = text
	}
	return node
}

func elementAttrs(start xml.StartElement) map[string]interface{} {
	attrs := make(map[string]interface{})
	for _, a := range start.Attr {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		attrs[a.Name.Local] = a.Value
	}
	return attrs
}

// ExtractSOAPBody unwraps Envelope/Body and returns the content of the first
// response element, so rule paths address fields the way patterns write them
// (cabecera.codMensaje rather than Envelope.Body....). Payloads that are not
// a SOAP envelope come back unchanged.
func ExtractSOAPBody(tree interface{}) interface{} {
	root, ok := tree.(map[string]interface{})
	if !ok {
		return tree
	}

	envelope := childByLocal(root, "Envelope")
	if envelope == nil {
		return tree
	}
	env, ok := envelope.(map[string]interface{})
	if !ok {
		return tree
	}

	body := childByLocal(env, "Body")
	if body == nil {
		return tree
	}
	content, ok := body.(map[string]interface{})
	if !ok {
		return body
	}

	// A well-formed response body holds exactly one operation element.
	var only interface{}
	elements := 0
	for k, v := range content {
		if k == "#text" {
			continue
		}
		elements++
		only = v
	}
	if elements == 1 {
		return only
	}
	return content
}

func childByLocal(node map[string]interface{}, local string) interface{} {
	for k, v := range node {
		if strings.EqualFold(stripNamespace(k), local) {
			return v
		}
	}
	return nil
}
