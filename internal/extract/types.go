// Package extract implements C3: it walks a parsed syntax tree and emits
// the typed code objects, relationships, and import statements a single
// file contributes to the index.
package extract

// ObjectKind is the kind tag carried by a CodeObject.
type ObjectKind string

const (
	KindClass     ObjectKind = "class"
	KindInterface ObjectKind = "interface"
	KindMethod    ObjectKind = "method"
	KindFunction  ObjectKind = "function"
	KindEnum      ObjectKind = "enum"
	KindStruct    ObjectKind = "struct"
	KindVariable  ObjectKind = "variable"
	KindModule    ObjectKind = "module"
	// KindSummary tags a class/struct emitted as a declaration-only
	// summary object because it exceeded the chunking thresholds.
	KindSummary ObjectKind = "summary"
)

// CodeObject is a semantic unit extracted from source (spec.md §3).
type CodeObject struct {
	ID               string
	AbsolutePath     string
	RelativePath     string
	Kind             ObjectKind
	Name             string
	QualifiedName    string
	Language         string
	StartLine        int
	EndLine          int
	Source           string
	Signature        string
	Docstring        string
	ParentID         string
	CyclomaticComplexity int
	Calls            []string
	References       []string
	Embedding        []float32
	ContentChecksum  string
}

// RelationType is a typed edge kind between two entities.
type RelationType string

const (
	RelCalls      RelationType = "CALLS"
	RelExtends    RelationType = "EXTENDS"
	RelImplements RelationType = "IMPLEMENTS"
	RelReferences RelationType = "REFERENCES"
	RelContains   RelationType = "CONTAINS"
	RelImports    RelationType = "IMPORTS"

	RelCalledBy      RelationType = "CALLED_BY"
	RelExtendedBy    RelationType = "EXTENDED_BY"
	RelImplementedBy RelationType = "IMPLEMENTED_BY"
	RelReferencedBy  RelationType = "REFERENCED_BY"
	RelContainedBy   RelationType = "CONTAINED_BY"
	RelImportedBy    RelationType = "IMPORTED_BY"
)

// inverseOf maps every non-inverse relation to its auto-generated inverse
// (spec.md §3 "every non-inverse edge stored must be paired with its
// inverse"). C6 calls Inverse while materializing edges.
var inverseOf = map[RelationType]RelationType{
	RelCalls:      RelCalledBy,
	RelExtends:    RelExtendedBy,
	RelImplements: RelImplementedBy,
	RelReferences: RelReferencedBy,
	RelContains:   RelContainedBy,
	RelImports:    RelImportedBy,
}

// Inverse returns the auto-generated inverse of a relation type, and false
// if rt is already an inverse (or unknown).
func Inverse(rt RelationType) (RelationType, bool) {
	inv, ok := inverseOf[rt]
	return inv, ok
}

// Relationship is a typed edge between two entities (spec.md §3).
type Relationship struct {
	ID         string
	SourceID   string
	TargetID   string
	Type       RelationType
	SourceKind string
	TargetKind string
	Confidence float64
}

// Import is a single import/require statement found in a file, carried
// forward so C3's cross-file pass can resolve module paths to objects.
type Import struct {
	FilePath   string
	ImportPath string
	Alias      string
	Line       int
}

// Result is everything ExtractFile produces for one file.
type Result struct {
	Objects       []*CodeObject
	Relationships []*Relationship
	Imports       []*Import
}
