// Package intent maps free text to one of the calendar operations using a
// fixed keyword lexicon.
package intent

import "strings"

// Intent is the operation a message asks for.
type Intent string

const (
	None   Intent = "none"
	Query  Intent = "query"
	Create Intent = "create"
	Update Intent = "update"
	Delete Intent = "delete"
)

// Lexicon lists the trigger keywords per intent.
type Lexicon struct {
	Query  []string `yaml:"query"`
	Create []string `yaml:"create"`
	Update []string `yaml:"update"`
	Delete []string `yaml:"delete"`
}

// DefaultLexicon returns the built-in Spanish keywords.
func DefaultLexicon() Lexicon {
	return Lexicon{
		Query:  []string{"consultar", "ver", "revisar", "mostrar", "listar", "qué tengo", "qué hay", "cuáles son", "buscar"},
		Create: []string{"agrega", "añadir", "crear", "nuevo", "programar", "agendar", "planear", "establecer", "fijar", "registrar"},
		Update: []string{"editar", "modificar", "cambiar", "actualizar", "ajustar", "corregir", "actualiza", "reescribir"},
		Delete: []string{"borrar", "eliminar", "quitar", "suprimir", "cancelar", "descartar", "remover", "borra"},
	}
}

// Merge returns l with every non-empty list in o replacing its counterpart.
func (l Lexicon) Merge(o Lexicon) Lexicon {
	if len(o.Query) > 0 {
		l.Query = o.Query
	}
	if len(o.Create) > 0 {
		l.Create = o.Create
	}
	if len(o.Update) > 0 {
		l.Update = o.Update
	}
	if len(o.Delete) > 0 {
		l.Delete = o.Delete
	}
	return l
}

// Classifier checks categories in the order query, create, update, delete.
type Classifier struct {
	order []category
}

type category struct {
	intent   Intent
	keywords []string
}

// NewClassifier builds a classifier over the given lexicon. Keywords are
// lowercased once here.
func NewClassifier(lex Lexicon) *Classifier {
	return &Classifier{order: []category{
		{Query, lower(lex.Query)},
		{Create, lower(lex.Create)},
		{Update, lower(lex.Update)},
		{Delete, lower(lex.Delete)},
	}}
}

// Classify returns the first intent with a keyword contained in text, and
// that keyword. Unmatched text yields None and "".
func (c *Classifier) Classify(text string) (Intent, string) {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return None, ""
	}
	for _, cat := range c.order {
		for _, kw := range cat.keywords {
			if kw != "" && strings.Contains(t, kw) {
				return cat.intent, kw
			}
		}
	}
	return None, ""
}

func lower(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(strings.TrimSpace(s)))
	}
	return out
}
