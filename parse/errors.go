package parse

import "fmt"

// SyntaxError is the error type for all problems the parser detects: bad
// tokens, priority clashes, and missing operands. It carries the token at
// fault and its source position, per spec.md §7 ("Parse error: syntactic
// mismatch, with source position").
type SyntaxError struct {
	Msg string
	Tok Token
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Tok.LineNo, e.Tok.ColNo, e.Msg)
}

func unexpectedf(tok Token, format string, args ...interface{}) *SyntaxError {
	return &SyntaxError{Msg: fmt.Sprintf(format, args...), Tok: tok}
}

func priorityClash(tok Token) *SyntaxError {
	return unexpectedf(tok, "operator priority clash at %q (brackets required)", tok.Val)
}
