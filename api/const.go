package api

import "errors"

// Alignment chunks handed out by allocators are always aligned to
// this byte boundary. Slab sizes should be multiples of Alignment,
// and never smaller, since cached chunks double up as free-list
// nodes.
const Alignment = int64(8)

// ErrorOutofMemory arena has exhausted its configured capacity.
var ErrorOutofMemory = errors.New("malloc.outofmemory")
