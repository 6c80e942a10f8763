package term_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rupertlssmith/lojix-sub000/term"
)

func TestListSugarRoundtrips(t *testing.T) {
	elems := []term.Term{term.Int{Val: 1}, term.Int{Val: 2}}
	lst := term.List(elems, nil, term.Pos{})

	h, tl, ok := term.IsCons(lst)
	assert.True(t, ok)
	assert.Equal(t, term.Int{Val: 1}, h)

	h2, tl2, ok := term.IsCons(tl)
	assert.True(t, ok)
	assert.Equal(t, term.Int{Val: 2}, h2)
	assert.True(t, term.IsNil(tl2))
}

func TestFlattenConjunctionRespectsBracketing(t *testing.T) {
	// a, (b, c) parses identically to a, b, c in this grammar; flattening
	// walks the right-nested ','/2 spine regardless of how it was bracketed.
	body := term.Compound{
		Functor: ",",
		Args: []term.Term{
			term.Atom{Name: "a"},
			term.Compound{Functor: ",", Args: []term.Term{
				term.Atom{Name: "b"},
				term.Atom{Name: "c"},
			}},
		},
	}
	goals := term.FlattenConjunction(body)
	assert.Len(t, goals, 3)
	assert.Equal(t, term.Atom{Name: "a"}, goals[0])
}

func TestClauseIndicator(t *testing.T) {
	c := term.Clause{Head: term.Compound{Functor: "app", Args: []term.Term{
		term.Var{Name: "X"}, term.Var{Name: "Y"}, term.Var{Name: "Z"},
	}}}
	assert.Equal(t, term.Indicator{Name: "app", Arity: 3}, c.Indicator())
}

func TestQueryHasNoHead(t *testing.T) {
	q := term.Clause{Body: []term.Term{term.Atom{Name: "true"}}}
	assert.True(t, q.IsQuery())
}
