// Package compiler provides a lexer, parser and code generator for a small
// C-like language of integers, pointers and functions, targeting x86-64
// assembly in Intel syntax.
//
// Pipeline: source lines → TokenizeLines → Parse → Generate → assembly lines
package compiler
