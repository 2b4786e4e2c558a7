package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/robertkrimen/otto/ast"
	"github.com/robertkrimen/otto/file"
)

// CompileError is one semantic or code generation error, positioned in the
// source when the program carries its file.
type CompileError struct {
	Filename string
	Line     int
	Column   int
	Message  string
}

func (e *CompileError) Error() string {
	if e.Line == 0 {
		if e.Filename == "" {
			return e.Message
		}
		return e.Filename + ": " + e.Message
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.Filename, e.Line, e.Column, e.Message)
}

// ErrorList collects every error found while compiling one program. It is
// returned as the error value when non-empty.
type ErrorList struct {
	Errors []*CompileError
}

func (l *ErrorList) Error() string {
	switch len(l.Errors) {
	case 0:
		return "no errors"
	case 1:
		return l.Errors[0].Error()
	}
	msgs := make([]string, len(l.Errors))
	for i, e := range l.Errors {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d compile errors:\n%s", len(l.Errors), strings.Join(msgs, "\n"))
}

// Unwrap exposes the individual errors to errors.As.
func (l *ErrorList) Unwrap() []error {
	errs := make([]error, len(l.Errors))
	for i, e := range l.Errors {
		errs[i] = e
	}
	return errs
}

// Len returns the number of errors.
func (l *ErrorList) Len() int { return len(l.Errors) }

// Err returns l as an error, or nil when it is empty.
func (l *ErrorList) Err() error {
	if len(l.Errors) == 0 {
		return nil
	}
	return l
}

// reporter positions errors and source-map entries against the program's
// file. Line starts are computed once; file.Position rescans the source on
// every call.
type reporter struct {
	file       *file.File
	filename   string
	list       *ErrorList
	lineStarts []int
}

func (rp *reporter) position(idx file.Idx) (line, column int) {
	if rp.file == nil || idx <= 0 {
		return 0, 0
	}
	src := rp.file.Source()
	offset := int(idx) - rp.file.Base()
	if offset < 0 || offset > len(src) {
		return 0, 0
	}
	if rp.lineStarts == nil {
		rp.lineStarts = []int{0}
		for i := 0; i < len(src); i++ {
			if src[i] == '\n' {
				rp.lineStarts = append(rp.lineStarts, i+1)
			}
		}
	}
	n := sort.Search(len(rp.lineStarts), func(i int) bool { return rp.lineStarts[i] > offset })
	return n, offset - rp.lineStarts[n-1] + 1
}

// errorAt records an error at node.
func (rp *reporter) errorAt(node ast.Node, format string, args ...any) {
	var idx file.Idx
	if node != nil {
		idx = node.Idx0()
	}
	rp.errorAtIdx(idx, format, args...)
}

func (rp *reporter) errorAtIdx(idx file.Idx, format string, args ...any) {
	line, col := rp.position(idx)
	rp.list.Errors = append(rp.list.Errors, &CompileError{
		Filename: rp.filename,
		Line:     line,
		Column:   col,
		Message:  fmt.Sprintf(format, args...),
	})
}
