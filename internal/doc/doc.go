// Package doc provides the schemaless value model stored in the document
// database.
//
// A document is an Object: a map of field names to Values. Only Null,
// String, Int, Bool, Timestamp, Array and Object implement Value. There is
// no float type; numeric fields such as view counters are int64.
//
// Documents are persisted as canonical JSON (RFC 8785 key order, NFC
// normalized strings, no insignificant whitespace). Timestamps are encoded
// as a single-key object:
//
//	{"$timestamp":"2024-03-01T12:00:00Z"}
//
// The canonical encoding doubles as the input of Version, the content hash
// used as a document etag for conditional writes.
//
// This package imports nothing internal.
package doc
