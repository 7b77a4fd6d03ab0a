package etl

type Kind string

const (
	KindAuthor    Kind = "author"
	KindQuote     Kind = "quote"
	KindTag       Kind = "tag"
	KindBook      Kind = "book"
	KindBookstore Kind = "bookstore"

	RelQuoteTag Kind = "quote_tag"
)

type EnrichmentStatus string

const (
	EnrichmentNone       EnrichmentStatus = ""
	EnrichmentResolved   EnrichmentStatus = "resolved"
	EnrichmentUnresolved EnrichmentStatus = "unresolved"
)

// Field is one attribute of a canonical entity together with the
// source that supplied it, kept so cross-source conflicts stay auditable.
type Field struct {
	Value  any
	Source string
}

// Entity is the source-agnostic shape of a record after transformation.
// DedupKey is derived from normalized natural attributes, never from
// source identifiers.
type Entity struct {
	Kind       Kind
	DedupKey   string
	Fields     map[string]Field
	Enrichment EnrichmentStatus
}

func NewEntity(kind Kind, dedupKey string) Entity {
	return Entity{
		Kind:     kind,
		DedupKey: dedupKey,
		Fields:   map[string]Field{},
	}
}

func (e Entity) Str(name string) string {
	s, _ := e.Fields[name].Value.(string)
	return s
}

func (e Entity) Float(name string) (float64, bool) {
	f, ok := e.Fields[name].Value.(float64)
	return f, ok
}

func (e Entity) Source(name string) string {
	return e.Fields[name].Source
}

func (e Entity) Set(name string, value any, source string) {
	e.Fields[name] = Field{Value: value, Source: source}
}

func (e Entity) Delete(name string) {
	delete(e.Fields, name)
}

// Relation associates two entities by their dedup keys, it carries no
// identity of its own.
type Relation struct {
	Kind      Kind
	LeftKind  Kind
	LeftKey   string
	RightKind Kind
	RightKey  string
}
