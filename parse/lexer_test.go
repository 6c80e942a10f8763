package parse_test

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rupertlssmith/lojix-sub000/parse"
)

func lexAll(t *testing.T, src string) []parse.Token {
	t.Helper()
	lx := parse.Lex(strings.NewReader(src), parse.DefaultOpTable())
	defer lx.Close()
	var toks []parse.Token
	for {
		tok, err := lx.NextToken()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if tok.Typ == parse.SPACE || tok.Typ == parse.COMMENT {
			continue
		}
		toks = append(toks, tok)
	}
	return toks
}

func TestLexBasicClause(t *testing.T) {
	toks := lexAll(t, "p(X,1) :- q(X).")
	var types []parse.TokType
	for _, tok := range toks {
		types = append(types, tok.Typ)
	}
	assert.Contains(t, types, parse.IDENT)
	assert.Contains(t, types, parse.VAR)
	assert.Contains(t, types, parse.NUM)
	assert.Contains(t, types, parse.EOC)
}

func TestLexCommentsAreSkippedBySPACEFilter(t *testing.T) {
	toks := lexAll(t, "p. % a trailing comment\n")
	require.Len(t, toks, 2)
	assert.Equal(t, parse.IDENT, toks[0].Typ)
	assert.Equal(t, parse.EOC, toks[1].Typ)
}

func TestLexFloat(t *testing.T) {
	toks := lexAll(t, "3.14.")
	require.GreaterOrEqual(t, len(toks), 2)
	assert.Equal(t, "3.14", toks[0].Val)
	assert.Equal(t, parse.NUM, toks[0].Typ)
}
