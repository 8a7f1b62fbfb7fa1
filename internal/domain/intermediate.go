package domain

// Field is one resolved label/value pair of an intermediate record.
type Field struct {
	Label string
	Value string
}

// CategoryBlock groups metadata attributes under one target category.
type CategoryBlock struct {
	Name       string
	Attributes []Field
}

// IntermediateRecord is the mapper's output: everything the serializer needs
// to render one fragment. Standard fields arrive already in render order and
// category/attribute order follows the mapping configuration, so rendering
// the same record always yields the same bytes.
type IntermediateRecord struct {
	NodeType          string
	Action            string
	Standard          []Field
	Categories        []CategoryBlock
	DisplayIdentifier string

	// FileRename is set when the mapped file path had to be normalized and
	// the physical file needs renaming before import.
	FileRename *FileRename
}

// FileRename records an original source path and the normalized path the
// fragment references.
type FileRename struct {
	Original   string
	Normalized string
}

// StandardValue looks up a standard field by label.
func (r IntermediateRecord) StandardValue(label string) (string, bool) {
	for _, f := range r.Standard {
		if f.Label == label {
			return f.Value, true
		}
	}
	return "", false
}
