// Package normalisers turns uploaded file bytes into plain text.
//
// Each subpackage handles one family of formats and reports the file
// types it accepts. Registry dispatches on the document's file type and
// is the driven.TextExtractor the indexer uses. Page boundaries, where a
// format has them, are emitted as form feeds.
package normalisers
