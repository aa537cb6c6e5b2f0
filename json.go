package scoper

import (
	jsoniter "github.com/json-iterator/go"
)

// jsonAPI sorts map keys, so documents with the same content encode to the
// same bytes. Numbers in args fragments decode as json.Number and are written
// back verbatim.
var jsonAPI = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()
