package normalizer

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// RenderJSON renders maps as an indented JSON array, keeping entry order.
// Bytes that are valid UTF-8 render as strings, other bytes as base64
// strings. JSON has no binary type, so the two are not told apart in the
// output: under a legacy charset "cafe" renders as "cafe" and "café" as
// "Y2Fm6Q==". Clients that need to know use RenderYAML, which tags
// binary values !!binary, or the utf-8 or native encodings.
func RenderJSON(maps []Map) ([]byte, error) {
	return RenderJSONValue(mapList(maps))
}

// RenderJSONValue renders a single value the way RenderJSON renders a list.
func RenderJSONValue(v Value) ([]byte, error) {
	var raw bytes.Buffer
	if err := writeJSON(&raw, v); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, raw.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func mapList(maps []Map) List {
	list := make(List, len(maps))
	for i, m := range maps {
		list[i] = m
	}
	return list
}

func writeJSON(buf *bytes.Buffer, v Value) error {
	switch v := v.(type) {
	case Map:
		buf.WriteByte('{')
		for i, e := range v.entries {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, ok := keyString(e.Key)
			if !ok {
				return fmt.Errorf("map key of type %T", e.Key)
			}
			if err := writeJSONString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeJSON(buf, e.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case List:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Text:
		return writeJSONString(buf, string(v))
	case Bytes:
		if utf8.Valid(v) {
			return writeJSONString(buf, string(v))
		}
		return writeJSONString(buf, base64.StdEncoding.EncodeToString(v))
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(v)))
	case Int:
		buf.WriteString(strconv.FormatInt(int64(v), 10))
	case nil:
		buf.WriteString("null")
	default:
		return fmt.Errorf("unsupported value %T", v)
	}
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode terminates with a newline
	buf.Truncate(buf.Len() - 1)
	return nil
}

// RenderYAML renders maps as a YAML sequence, keeping entry order. Bytes that
// are valid UTF-8 render as strings, other bytes as !!binary.
func RenderYAML(maps []Map) ([]byte, error) {
	return RenderYAMLValue(mapList(maps))
}

// RenderYAMLValue renders a single value as a YAML document.
func RenderYAMLValue(v Value) ([]byte, error) {
	doc, err := yamlNode(v)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func yamlNode(v Value) (*yaml.Node, error) {
	switch v := v.(type) {
	case Map:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, e := range v.entries {
			k, err := yamlNode(e.Key)
			if err != nil {
				return nil, err
			}
			val, err := yamlNode(e.Value)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, k, val)
		}
		return node, nil
	case List:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v {
			child, err := yamlNode(item)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, child)
		}
		return node, nil
	case Text:
		return scalar("!!str", string(v)), nil
	case Bytes:
		if utf8.Valid(v) {
			return scalar("!!str", string(v)), nil
		}
		return scalar("!!binary", base64.StdEncoding.EncodeToString(v)), nil
	case Bool:
		return scalar("!!bool", strconv.FormatBool(bool(v))), nil
	case Int:
		return scalar("!!int", strconv.FormatInt(int64(v), 10)), nil
	case nil:
		return scalar("!!null", "null"), nil
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}
