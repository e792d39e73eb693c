// Package lib supplies small utilities used across gomalloc
// packages, statistical accumulators and host memory probing.
package lib
