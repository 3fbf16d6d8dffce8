// Package unsafehelpers centralises the module's unavoidable usage of the
// `unsafe` standard-library package so that the rest of the codebase stays
// clean and easier to audit.
//
// DISCLAIMER: these helpers deliberately break the Go memory-safety model
// for the sake of zero-allocation conversions. Use only inside this
// repository; they are not part of the public API.
package unsafehelpers

import "unsafe"

// BytesToString converts a byte slice to a string without allocating. The
// caller must guarantee b is never modified for the lifetime of the
// returned string; the wire codec satisfies this because ReadFrame
// allocates a fresh payload per frame and nothing writes to it afterwards,
// so decoded strings may outlive the message they came from.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

// StringToBytes reinterprets string data as a byte slice without copying.
// The result must remain read-only; writing to it mutates immutable string
// storage.
func StringToBytes(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
