// Package pipeline provides the core value types shared by the contentkit
// components.
//
// # Overview
//
// A project tracks content items. Each item is transformed by an importer,
// which reads the raw source file, and a processor, which turns the
// importer's output into build output:
//
//	source file --(importer)--> OutputType --(processor)--> build output
//
// Importers and processors are described by read-only records
// (ImporterDescription, ProcessorDescription) produced by the type registry.
// A content item never holds a nil description; it holds a Descriptor that is
// exactly one of:
//
//   - Resolved: a description was found in the registry
//   - Missing: a name was requested but nothing in the registry matches it
//   - None: the item is copied verbatim and has no transformation
//
// # Errors
//
// Errors produced by the components are classified (resolution, command,
// build, process, validation) so callers can decide whether a failure is
// per-asset and non-fatal or terminal for the operation.
package pipeline
