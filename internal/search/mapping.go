package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/cjk"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the bleve mapping for name documents.
//
// Names are mostly Chinese with no word boundaries, so the name field uses
// the CJK bigram analyzer. A second keyword-analyzed copy supports prefix
// and fuzzy queries against the whole name.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = keyword.Name

	docMapping := bleve.NewDocumentMapping()

	contextFieldMapping := bleve.NewTextFieldMapping()
	contextFieldMapping.Analyzer = keyword.Name
	contextFieldMapping.Store = false
	docMapping.AddFieldMappingsAt("context", contextFieldMapping)

	nameFieldMapping := bleve.NewTextFieldMapping()
	nameFieldMapping.Analyzer = cjk.AnalyzerName
	nameFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("name", nameFieldMapping)

	exactFieldMapping := bleve.NewTextFieldMapping()
	exactFieldMapping.Name = "name_exact"
	exactFieldMapping.Analyzer = keyword.Name
	exactFieldMapping.Store = false
	docMapping.AddFieldMappingsAt("name", exactFieldMapping)

	libraryFieldMapping := bleve.NewNumericFieldMapping()
	libraryFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("library", libraryFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}
