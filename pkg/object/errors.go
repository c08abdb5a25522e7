package object

import "errors"

// ErrNotFound is returned when an object hash has no corresponding entry in
// the store.
var ErrNotFound = errors.New("object not found")

// ErrCorrupt is returned when a stored object fails to decompress or its
// header cannot be parsed.
var ErrCorrupt = errors.New("corrupt object")
