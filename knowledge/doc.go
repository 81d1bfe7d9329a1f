// Package knowledge loads the static reference documents of a crew before
// its first task runs.
//
// Documents are read through a LoaderRegistry that routes by file extension:
//   - Plain text (.txt, and any unknown extension)
//   - Markdown (.md), split by heading
//   - CSV (.csv), one "column: value" block per row
//   - JSON / JSONL (.json, .jsonl)
//
// Loader.Load turns a list of sources into a Fragment, the read-only
// placeholder values that seed a run context:
//
//	l := knowledge.NewLoader(knowledge.NewLoaderRegistry(), logger)
//	frag, err := l.Load(ctx, []knowledge.Source{{Name: "style", Path: "knowledge/style.md"}})
//	// frag["knowledge.style"], frag["knowledge"]
//
// A source that does not exist is fatal: Load fails with KNOWLEDGE_MISSING.
package knowledge
