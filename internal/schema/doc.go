// Package schema decodes binary static-data blobs using a YAML description of
// their layout. A schema is a tree of typed nodes (scalars, vectors, lists,
// dicts, objects and enums); the decoder walks the schema and the payload in
// lockstep and produces a JSON-like value made of map[string]any, []any,
// int64, float64, bool and string.
//
// Payloads are little-endian. Strings, lists and dicts carry a uint32 length
// prefix. Objects with optional attributes start with a presence bitmap of
// ceil(optional/8) bytes; bit i is set when the i-th optional attribute (in
// declaration order) is present.
package schema
