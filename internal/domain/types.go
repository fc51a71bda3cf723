package domain

// DocType classifies a normalized document. It drives downstream filtering:
// selector retrieval only targets DocTypeHTMLDOM.
type DocType string

const (
	DocTypeSpec    DocType = "spec"
	DocTypeAPI     DocType = "api"
	DocTypeUIUX    DocType = "ui_ux"
	DocTypeHTMLDOM DocType = "html_dom"
)

func (t DocType) IsValid() bool {
	switch t {
	case DocTypeSpec, DocTypeAPI, DocTypeUIUX, DocTypeHTMLDOM:
		return true
	}
	return false
}

func (t DocType) String() string {
	return string(t)
}

// Document is an uploaded file as handed to a knowledge-base build. It is not
// kept after normalization.
type Document struct {
	ID       string `json:"id,omitempty"`
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
}

// NormalizedDocument is the single plain-text rendition of a Document.
type NormalizedDocument struct {
	Text    string  `json:"text"`
	DocType DocType `json:"doc_type"`
}
