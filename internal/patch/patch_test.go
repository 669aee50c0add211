package patch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func testDoc() map[string]any {
	return map[string]any{
		"id":       "p-1",
		"name":     "Apple",
		"imageURL": "https://example.com/apple.jpg",
		"tags":     []any{"fruit", "red"},
		"meta":     map[string]any{"origin": "ES"},
	}
}

func Test_Apply(t *testing.T) {
	testCases := []struct {
		name     string
		ops      []Operation
		expected map[string]any
	}{
		{
			name:     "empty document is a no-op",
			ops:      nil,
			expected: testDoc(),
		},
		{
			name: "replace top-level field",
			ops: []Operation{
				{Op: "replace", Path: "/name", Value: raw(t, "Grape")},
			},
			expected: func() map[string]any {
				d := testDoc()
				d["name"] = "Grape"
				return d
			}(),
		},
		{
			name: "replace nested field",
			ops: []Operation{
				{Op: "replace", Path: "/meta/origin", Value: raw(t, "FR")},
			},
			expected: func() map[string]any {
				d := testDoc()
				d["meta"].(map[string]any)["origin"] = "FR"
				return d
			}(),
		},
		{
			name: "add new field",
			ops: []Operation{
				{Op: "add", Path: "/price", Value: raw(t, 42)},
			},
			expected: func() map[string]any {
				d := testDoc()
				d["price"] = float64(42)
				return d
			}(),
		},
		{
			name: "add appends to array with dash",
			ops: []Operation{
				{Op: "add", Path: "/tags/-", Value: raw(t, "sweet")},
			},
			expected: func() map[string]any {
				d := testDoc()
				d["tags"] = []any{"fruit", "red", "sweet"}
				return d
			}(),
		},
		{
			name: "add inserts into array at index",
			ops: []Operation{
				{Op: "add", Path: "/tags/1", Value: raw(t, "green")},
			},
			expected: func() map[string]any {
				d := testDoc()
				d["tags"] = []any{"fruit", "green", "red"}
				return d
			}(),
		},
		{
			name: "remove field",
			ops: []Operation{
				{Op: "remove", Path: "/meta"},
			},
			expected: func() map[string]any {
				d := testDoc()
				delete(d, "meta")
				return d
			}(),
		},
		{
			name: "remove array element",
			ops: []Operation{
				{Op: "remove", Path: "/tags/0"},
			},
			expected: func() map[string]any {
				d := testDoc()
				d["tags"] = []any{"red"}
				return d
			}(),
		},
		{
			name: "move field",
			ops: []Operation{
				{Op: "move", Path: "/meta/alias", From: "/name"},
			},
			expected: func() map[string]any {
				d := testDoc()
				delete(d, "name")
				d["meta"].(map[string]any)["alias"] = "Apple"
				return d
			}(),
		},
		{
			name: "copy field",
			ops: []Operation{
				{Op: "copy", Path: "/displayName", From: "/name"},
			},
			expected: func() map[string]any {
				d := testDoc()
				d["displayName"] = "Apple"
				return d
			}(),
		},
		{
			name: "passing test op does not change the document",
			ops: []Operation{
				{Op: "test", Path: "/name", Value: raw(t, "Apple")},
			},
			expected: testDoc(),
		},
		{
			name: "test then replace",
			ops: []Operation{
				{Op: "test", Path: "/name", Value: raw(t, "Apple")},
				{Op: "replace", Path: "/name", Value: raw(t, "Grape")},
			},
			expected: func() map[string]any {
				d := testDoc()
				d["name"] = "Grape"
				return d
			}(),
		},
		{
			name: "escaped pointer tokens",
			ops: []Operation{
				{Op: "add", Path: "/a~1b", Value: raw(t, "slash")},
				{Op: "add", Path: "/c~0d", Value: raw(t, "tilde")},
			},
			expected: func() map[string]any {
				d := testDoc()
				d["a/b"] = "slash"
				d["c~d"] = "tilde"
				return d
			}(),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			doc := testDoc()
			// when
			patched, err := Apply(doc, tc.ops)
			// then
			require.NoError(t, err)
			assert.Equal(t, tc.expected, patched)
			// the input document must never be mutated
			assert.Equal(t, testDoc(), doc)
		})
	}
}

func Test_Apply_TestOperationFailure(t *testing.T) {
	doc := testDoc()
	ops := []Operation{
		{Op: "test", Path: "/name", Value: raw(t, "Orange")},
		{Op: "replace", Path: "/name", Value: raw(t, "Grape")},
	}

	patched, err := Apply(doc, ops)

	require.Error(t, err)
	var testErr *TestFailedError
	require.ErrorAs(t, err, &testErr)
	assert.Equal(t, "/name", testErr.Operation.Path)
	assert.Equal(t, raw(t, "Orange"), testErr.Operation.Value)
	assert.Nil(t, patched)
	assert.Equal(t, testDoc(), doc)
}

func Test_Apply_InvalidOperations(t *testing.T) {
	testCases := []struct {
		name string
		ops  []Operation
	}{
		{
			name: "unknown op",
			ops:  []Operation{{Op: "merge", Path: "/name", Value: raw(t, "x")}},
		},
		{
			name: "path without leading slash",
			ops:  []Operation{{Op: "replace", Path: "name", Value: raw(t, "x")}},
		},
		{
			name: "replace without value",
			ops:  []Operation{{Op: "replace", Path: "/name"}},
		},
		{
			name: "add without value",
			ops:  []Operation{{Op: "add", Path: "/name"}},
		},
		{
			name: "move with bad from",
			ops:  []Operation{{Op: "move", Path: "/name", From: "name"}},
		},
		{
			name: "replace of missing field",
			ops:  []Operation{{Op: "replace", Path: "/nope", Value: raw(t, "x")}},
		},
		{
			name: "remove of missing field",
			ops:  []Operation{{Op: "remove", Path: "/nope"}},
		},
		{
			name: "array index out of bounds",
			ops:  []Operation{{Op: "remove", Path: "/tags/7"}},
		},
		{
			name: "array index with leading zero",
			ops:  []Operation{{Op: "remove", Path: "/tags/01"}},
		},
		{
			name: "array index with explicit sign",
			ops:  []Operation{{Op: "remove", Path: "/tags/+1"}},
		},
		{
			name: "remove of document root",
			ops:  []Operation{{Op: "remove", Path: ""}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			doc := testDoc()
			patched, err := Apply(doc, tc.ops)

			require.Error(t, err)
			var opErr *OpError
			assert.ErrorAs(t, err, &opErr)
			assert.Nil(t, patched)
			assert.Equal(t, testDoc(), doc)
		})
	}
}

func Test_Validate(t *testing.T) {
	ok := []Operation{
		{Op: "test", Path: "/name", Value: raw(t, "Apple")},
		{Op: "replace", Path: "/name", Value: raw(t, "Grape")},
		{Op: "copy", Path: "/alias", From: "/name"},
		{Op: "remove", Path: "/meta"},
	}
	require.NoError(t, Validate(ok))

	bad := []Operation{{Op: "test", Path: "/name"}}
	err := Validate(bad)
	require.Error(t, err)
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, 0, opErr.Index)
}
