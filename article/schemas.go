// ABOUTME: JSON schemas for every JSON-mode step, embedded from schemas/*.json and compiled once.
// ABOUTME: A response that fails its schema is retried on the next credential like any other bad output.
package article

import (
	"embed"

	"github.com/2389-research/pressroom/llm"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	headingsSchema  = loadSchema("headings")
	semanticSchema  = loadSchema("semantic")
	structureSchema = loadSchema("structure")
	toolSchema      = loadSchema("tool")
	tablesSchema    = loadSchema("tables")
	sourcesSchema   = loadSchema("sources")
	imagesSchema    = loadSchema("images")
	metadataSchema  = loadSchema("metadata")
)

func loadSchema(name string) *llm.Schema {
	doc, err := schemaFS.ReadFile("schemas/" + name + ".json")
	if err != nil {
		panic("missing embedded schema " + name + ": " + err.Error())
	}
	return llm.MustSchema(name, string(doc))
}
