package wam_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rupertlssmith/lojix-sub000/wam"
)

func TestBytecodeRoundTrip(t *testing.T) {
	mod, _ := compileProgram(t, `
		app(nil, L, L).
		app(cons(H,T), L, cons(H,R)) :- app(T, L, R).
	`)

	var buf bytes.Buffer
	require.NoError(t, mod.WriteBytecode(&buf))

	got, err := wam.ReadBytecode(&buf)
	require.NoError(t, err)

	assert.Equal(t, wam.Disassemble(mod), wam.Disassemble(got))
}

func TestDisassembleListsPredicatesInNameOrder(t *testing.T) {
	mod, _ := compileProgram(t, "b(1). a(1). c(1).")
	out := wam.Disassemble(mod)
	assert.Contains(t, out, "a/1")
	assert.Contains(t, out, "b/1")
	assert.Contains(t, out, "c/1")
	assert.Less(t, strings.Index(out, "a/1"), strings.Index(out, "b/1"))
	assert.Less(t, strings.Index(out, "b/1"), strings.Index(out, "c/1"))
}
