// Package patch implements an RFC 6902 style JSON-Patch engine over
// JSON-decoded documents (map[string]any / []any trees).
//
// Apply never mutates its input: the document is deep-copied before any
// operation runs, so a failing patch leaves the caller's copy untouched.
package patch

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Operation is a single step of a patch document.
type Operation struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	From  string          `json:"from,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// OpError reports a patch operation that is malformed or cannot be applied
// to the document.
type OpError struct {
	Index  int
	Reason string
}

func (e *OpError) Error() string {
	return fmt.Sprintf("invalid patch operation at index %d: %s", e.Index, e.Reason)
}

// TestFailedError reports a failed "test" operation. It carries the operation
// so callers can include the failing path and expected value in error bodies.
type TestFailedError struct {
	Operation Operation
}

func (e *TestFailedError) Error() string {
	return fmt.Sprintf("test operation failed at path %q", e.Operation.Path)
}

var validOps = map[string]bool{
	"add":     true,
	"remove":  true,
	"replace": true,
	"move":    true,
	"copy":    true,
	"test":    true,
}

// Validate checks the structural well-formedness of a patch document without
// touching any target document.
func Validate(ops []Operation) error {
	for i, op := range ops {
		if !validOps[op.Op] {
			return &OpError{Index: i, Reason: fmt.Sprintf("unknown op %q", op.Op)}
		}
		if _, err := parsePointer(op.Path); err != nil {
			return &OpError{Index: i, Reason: fmt.Sprintf("bad path %q: %v", op.Path, err)}
		}
		switch op.Op {
		case "add", "replace", "test":
			if op.Value == nil {
				return &OpError{Index: i, Reason: fmt.Sprintf("%s operation requires a value", op.Op)}
			}
		case "move", "copy":
			if _, err := parsePointer(op.From); err != nil {
				return &OpError{Index: i, Reason: fmt.Sprintf("bad from %q: %v", op.From, err)}
			}
		}
	}
	return nil
}

// Apply runs the patch document against doc and returns the patched document.
// An empty document is a no-op and returns an equal copy of the input.
func Apply(doc map[string]any, ops []Operation) (map[string]any, error) {
	if err := Validate(ops); err != nil {
		return nil, err
	}

	node := deepCopy(doc)
	for i, op := range ops {
		tokens, _ := parsePointer(op.Path)

		var err error
		switch op.Op {
		case "add":
			var value any
			if err = json.Unmarshal(op.Value, &value); err != nil {
				return nil, &OpError{Index: i, Reason: fmt.Sprintf("bad value: %v", err)}
			}
			node, err = addValue(node, tokens, value)
		case "replace":
			var value any
			if err = json.Unmarshal(op.Value, &value); err != nil {
				return nil, &OpError{Index: i, Reason: fmt.Sprintf("bad value: %v", err)}
			}
			node, err = replaceValue(node, tokens, value)
		case "remove":
			node, err = removeValue(node, tokens)
		case "move":
			fromTokens, _ := parsePointer(op.From)
			var moved any
			moved, err = getValue(node, fromTokens)
			if err == nil {
				node, err = removeValue(node, fromTokens)
			}
			if err == nil {
				node, err = addValue(node, tokens, moved)
			}
		case "copy":
			fromTokens, _ := parsePointer(op.From)
			var copied any
			copied, err = getValue(node, fromTokens)
			if err == nil {
				node, err = addValue(node, tokens, deepCopy(copied))
			}
		case "test":
			var want any
			if err = json.Unmarshal(op.Value, &want); err != nil {
				return nil, &OpError{Index: i, Reason: fmt.Sprintf("bad value: %v", err)}
			}
			var got any
			got, err = getValue(node, tokens)
			if err == nil && !reflect.DeepEqual(got, want) {
				return nil, &TestFailedError{Operation: op}
			}
		}
		if err != nil {
			return nil, &OpError{Index: i, Reason: err.Error()}
		}
	}

	result, ok := node.(map[string]any)
	if !ok {
		return nil, &OpError{Index: len(ops) - 1, Reason: "document root is no longer an object"}
	}
	return result, nil
}

// parsePointer splits a JSON Pointer into its unescaped reference tokens.
// The empty pointer addresses the document root.
func parsePointer(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("pointer must start with '/'")
	}
	parts := strings.Split(path[1:], "/")
	tokens := make([]string, len(parts))
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		p = strings.ReplaceAll(p, "~0", "~")
		tokens[i] = p
	}
	return tokens, nil
}

func getValue(node any, tokens []string) (any, error) {
	if len(tokens) == 0 {
		return node, nil
	}
	token, rest := tokens[0], tokens[1:]
	switch n := node.(type) {
	case map[string]any:
		child, ok := n[token]
		if !ok {
			return nil, fmt.Errorf("path element %q not found", token)
		}
		return getValue(child, rest)
	case []any:
		idx, err := arrayIndex(token, len(n), false)
		if err != nil {
			return nil, err
		}
		return getValue(n[idx], rest)
	default:
		return nil, fmt.Errorf("path element %q does not address an object or array", token)
	}
}

// addValue inserts value at the pointer location, creating map keys and
// inserting into arrays ("-" appends). Adding at the root replaces the
// whole document.
func addValue(node any, tokens []string, value any) (any, error) {
	if len(tokens) == 0 {
		return value, nil
	}
	token, rest := tokens[0], tokens[1:]
	switch n := node.(type) {
	case map[string]any:
		if len(rest) == 0 {
			n[token] = value
			return n, nil
		}
		child, ok := n[token]
		if !ok {
			return nil, fmt.Errorf("path element %q not found", token)
		}
		updated, err := addValue(child, rest, value)
		if err != nil {
			return nil, err
		}
		n[token] = updated
		return n, nil
	case []any:
		idx, err := arrayIndex(token, len(n), len(rest) == 0)
		if err != nil {
			return nil, err
		}
		if len(rest) == 0 {
			out := make([]any, 0, len(n)+1)
			out = append(out, n[:idx]...)
			out = append(out, value)
			out = append(out, n[idx:]...)
			return out, nil
		}
		updated, err := addValue(n[idx], rest, value)
		if err != nil {
			return nil, err
		}
		n[idx] = updated
		return n, nil
	default:
		return nil, fmt.Errorf("path element %q does not address an object or array", token)
	}
}

// replaceValue overwrites the value at an existing pointer location.
func replaceValue(node any, tokens []string, value any) (any, error) {
	if len(tokens) == 0 {
		return value, nil
	}
	if _, err := getValue(node, tokens); err != nil {
		return nil, err
	}
	parent := tokens[:len(tokens)-1]
	last := tokens[len(tokens)-1]
	container, err := getValue(node, parent)
	if err != nil {
		return nil, err
	}
	switch c := container.(type) {
	case map[string]any:
		c[last] = value
	case []any:
		idx, err := arrayIndex(last, len(c), false)
		if err != nil {
			return nil, err
		}
		c[idx] = value
	}
	return node, nil
}

func removeValue(node any, tokens []string) (any, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("cannot remove the document root")
	}
	token, rest := tokens[0], tokens[1:]
	switch n := node.(type) {
	case map[string]any:
		child, ok := n[token]
		if !ok {
			return nil, fmt.Errorf("path element %q not found", token)
		}
		if len(rest) == 0 {
			delete(n, token)
			return n, nil
		}
		updated, err := removeValue(child, rest)
		if err != nil {
			return nil, err
		}
		n[token] = updated
		return n, nil
	case []any:
		idx, err := arrayIndex(token, len(n), false)
		if err != nil {
			return nil, err
		}
		if len(rest) == 0 {
			out := make([]any, 0, len(n)-1)
			out = append(out, n[:idx]...)
			out = append(out, n[idx+1:]...)
			return out, nil
		}
		updated, err := removeValue(n[idx], rest)
		if err != nil {
			return nil, err
		}
		n[idx] = updated
		return n, nil
	default:
		return nil, fmt.Errorf("path element %q does not address an object or array", token)
	}
}

// arrayIndex parses an array reference token. allowEnd permits the "-" token
// and an index equal to the length, which address the append position.
func arrayIndex(token string, length int, allowEnd bool) (int, error) {
	if token == "-" {
		if !allowEnd {
			return 0, fmt.Errorf("'-' is only valid when adding to an array")
		}
		return length, nil
	}
	idx, err := strconv.Atoi(token)
	// reject signs and leading zeros: only the canonical decimal form
	// addresses an array element
	if err != nil || idx < 0 || strconv.Itoa(idx) != token {
		return 0, fmt.Errorf("invalid array index %q", token)
	}
	limit := length
	if allowEnd {
		limit = length + 1
	}
	if idx >= limit {
		return 0, fmt.Errorf("array index %d out of bounds", idx)
	}
	return idx, nil
}

func deepCopy(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = deepCopy(child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = deepCopy(child)
		}
		return out
	default:
		return v
	}
}
