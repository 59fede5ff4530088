package models

type SelectorKind string

const (
	KindText      SelectorKind = "TEXT"
	KindLink      SelectorKind = "LINK"
	KindImage     SelectorKind = "IMAGE"
	KindAttribute SelectorKind = "ATTRIBUTE"
)

// Selector names understood by the wrapper extractor.
const (
	SelectorTitle        = "title"
	SelectorAuthors      = "authors"
	SelectorISBN         = "isbn"
	SelectorFormat       = "format"
	SelectorPublisher    = "publisher"
	SelectorPrice        = "price"
	SelectorAttributes   = "attributes"
	SelectorAvailability = "availability"
	SelectorDescription  = "description"
	SelectorImage        = "image"
	SelectorBookCard     = "bookCard"
)

type Selector struct {
	Query  string       `json:"query"`
	Kind   SelectorKind `json:"kind"`
	Target string       `json:"target,omitempty"`
}

// Wrapper is the site-specific selector set induced for one domain.
type Wrapper struct {
	Site      string              `json:"site"`
	Selectors map[string]Selector `json:"selectors"`
}

func NewWrapper(site string) *Wrapper {
	return &Wrapper{Site: site, Selectors: make(map[string]Selector)}
}

// Selector returns the named selector, if the wrapper has one.
func (w *Wrapper) Selector(name string) (Selector, bool) {
	if w == nil || w.Selectors == nil {
		return Selector{}, false
	}
	s, ok := w.Selectors[name]
	return s, ok && s.Query != ""
}

func (w *Wrapper) Set(name string, s Selector) {
	if w.Selectors == nil {
		w.Selectors = make(map[string]Selector)
	}
	if s.Kind == "" {
		s.Kind = KindText
	}
	w.Selectors[name] = s
}
