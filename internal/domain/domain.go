package domain

import (
	"github.com/yungbote/graphstore/internal/domain/docgraph"
	"github.com/yungbote/graphstore/internal/domain/imports"
)

const (
	ImportRunStatusRunning   = imports.ImportRunStatusRunning
	ImportRunStatusSucceeded = imports.ImportRunStatusSucceeded
	ImportRunStatusPartial   = imports.ImportRunStatusPartial
	ImportRunStatusFailed    = imports.ImportRunStatusFailed
)

type (
	Entity        = docgraph.Entity
	Relation      = docgraph.Relation
	Document      = docgraph.Document
	Chunk         = docgraph.Chunk
	DocumentGraph = docgraph.DocumentGraph
	Properties    = docgraph.Properties

	ImportRun = imports.ImportRun
)

var (
	NewProperties     = docgraph.NewProperties
	PropertiesOf      = docgraph.PropertiesOf
	LoadDocumentGraph = docgraph.LoadDocumentGraph
)
