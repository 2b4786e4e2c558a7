package compiler

import (
	"github.com/robertkrimen/otto/ast"
	"github.com/robertkrimen/otto/token"
)

// ---------------------------------------------------------------------------
// Semantic Analyzer: Pre-codegen semantic checks
// ---------------------------------------------------------------------------

// SemanticAnalyzer performs the static checks the parser leaves to later
// phases: strict-mode restrictions, invalid assignment targets and the
// constructs this runtime does not support. It reports every problem it
// finds rather than stopping at the first.
type SemanticAnalyzer struct {
	*reporter

	strict     bool
	inFunction bool
}

// NewSemanticAnalyzer creates an analyzer that records into list.
func NewSemanticAnalyzer(rp *reporter) *SemanticAnalyzer {
	return &SemanticAnalyzer{reporter: rp}
}

// AnalyzeProgram checks a whole program.
func (s *SemanticAnalyzer) AnalyzeProgram(prog *ast.Program, strict bool) {
	s.strict = strict || hasUseStrict(prog.Body)
	s.analyzeStatements(prog.Body)
}

// hasUseStrict reports whether a body opens with a "use strict" directive.
func hasUseStrict(body []ast.Statement) bool {
	for _, stmt := range body {
		es, ok := stmt.(*ast.ExpressionStatement)
		if !ok {
			return false
		}
		lit, ok := es.Expression.(*ast.StringLiteral)
		if !ok {
			return false
		}
		if lit.Literal == `"use strict"` || lit.Literal == `'use strict'` {
			return true
		}
	}
	return false
}

// functionBody returns the statements of a function literal's body.
func functionBody(lit *ast.FunctionLiteral) []ast.Statement {
	if block, ok := lit.Body.(*ast.BlockStatement); ok {
		return block.List
	}
	if lit.Body == nil {
		return nil
	}
	return []ast.Statement{lit.Body}
}

func isRestrictedName(name string) bool {
	return name == "eval" || name == "arguments"
}

func (s *SemanticAnalyzer) analyzeStatements(stmts []ast.Statement) {
	for _, stmt := range stmts {
		s.analyzeStmt(stmt)
	}
}

func (s *SemanticAnalyzer) analyzeStmt(stmt ast.Statement) {
	switch st := stmt.(type) {
	case nil, *ast.EmptyStatement, *ast.DebuggerStatement, *ast.BranchStatement:
	case *ast.BadStatement:
		s.errorAt(st, "invalid statement")
	case *ast.BlockStatement:
		s.analyzeStatements(st.List)
	case *ast.ExpressionStatement:
		s.analyzeExpr(st.Expression)
	case *ast.VariableStatement:
		for _, e := range st.List {
			s.analyzeExpr(e)
		}
	case *ast.FunctionStatement:
		s.analyzeFunction(st.Function)
	case *ast.IfStatement:
		s.analyzeExpr(st.Test)
		s.analyzeStmt(st.Consequent)
		s.analyzeStmt(st.Alternate)
	case *ast.WhileStatement:
		s.analyzeExpr(st.Test)
		s.analyzeStmt(st.Body)
	case *ast.DoWhileStatement:
		s.analyzeStmt(st.Body)
		s.analyzeExpr(st.Test)
	case *ast.ForStatement:
		s.analyzeExpr(st.Initializer)
		s.analyzeExpr(st.Test)
		s.analyzeExpr(st.Update)
		s.analyzeStmt(st.Body)
	case *ast.ForInStatement:
		if _, ok := st.Into.(*ast.VariableExpression); !ok {
			s.checkTarget(st.Into, "for-in")
		}
		s.analyzeExpr(st.Into)
		s.analyzeExpr(st.Source)
		s.analyzeStmt(st.Body)
	case *ast.LabelledStatement:
		s.analyzeStmt(st.Statement)
	case *ast.ReturnStatement:
		if !s.inFunction {
			s.errorAt(st, "return outside of a function")
		}
		s.analyzeExpr(st.Argument)
	case *ast.ThrowStatement:
		s.analyzeExpr(st.Argument)
	case *ast.SwitchStatement:
		s.analyzeExpr(st.Discriminant)
		for _, cs := range st.Body {
			s.analyzeExpr(cs.Test)
			s.analyzeStatements(cs.Consequent)
		}
	case *ast.TryStatement:
		s.analyzeStmt(st.Body)
		if st.Catch != nil {
			if s.strict && st.Catch.Parameter != nil && isRestrictedName(st.Catch.Parameter.Name) {
				s.errorAt(st.Catch.Parameter, "catch parameter may not be named %s in strict mode", st.Catch.Parameter.Name)
			}
			s.analyzeStmt(st.Catch.Body)
		}
		s.analyzeStmt(st.Finally)
	case *ast.WithStatement:
		s.errorAt(st, "with statement is not supported")
	default:
		s.errorAt(stmt, "unsupported statement %T", stmt)
	}
}

func (s *SemanticAnalyzer) analyzeExpr(expr ast.Expression) {
	switch e := expr.(type) {
	case nil, *ast.Identifier, *ast.ThisExpression, *ast.NullLiteral,
		*ast.BooleanLiteral, *ast.NumberLiteral, *ast.StringLiteral, *ast.EmptyExpression:
	case *ast.BadExpression:
		s.errorAt(e, "invalid expression")
	case *ast.RegExpLiteral:
		s.errorAt(e, "regular expression literals are not supported")
	case *ast.ArrayLiteral:
		for _, v := range e.Value {
			s.analyzeExpr(v)
		}
	case *ast.ObjectLiteral:
		seen := make(map[string]bool, len(e.Value))
		for _, p := range e.Value {
			if p.Kind != "value" {
				s.errorAt(e, "accessor property %q is not supported", p.Key)
			} else if s.strict && seen[p.Key] {
				s.errorAt(e, "duplicate data property %q in object literal not allowed in strict mode", p.Key)
			}
			seen[p.Key] = true
			s.analyzeExpr(p.Value)
		}
	case *ast.FunctionLiteral:
		s.analyzeFunction(e)
	case *ast.AssignExpression:
		s.checkTarget(e.Left, "assignment")
		s.analyzeExpr(e.Left)
		s.analyzeExpr(e.Right)
	case *ast.UnaryExpression:
		switch e.Operator {
		case token.INCREMENT, token.DECREMENT:
			s.checkTarget(e.Operand, "prefix/postfix operation")
		case token.DELETE:
			if _, ok := e.Operand.(*ast.Identifier); ok && s.strict {
				s.errorAt(e, "delete of an unqualified identifier in strict mode")
			}
		}
		s.analyzeExpr(e.Operand)
	case *ast.BinaryExpression:
		s.analyzeExpr(e.Left)
		s.analyzeExpr(e.Right)
	case *ast.ConditionalExpression:
		s.analyzeExpr(e.Test)
		s.analyzeExpr(e.Consequent)
		s.analyzeExpr(e.Alternate)
	case *ast.SequenceExpression:
		for _, v := range e.Sequence {
			s.analyzeExpr(v)
		}
	case *ast.DotExpression:
		s.analyzeExpr(e.Left)
	case *ast.BracketExpression:
		s.analyzeExpr(e.Left)
		s.analyzeExpr(e.Member)
	case *ast.CallExpression:
		if id, ok := e.Callee.(*ast.Identifier); ok && id.Name == "eval" {
			s.errorAt(e, "eval is not supported")
		}
		s.analyzeExpr(e.Callee)
		for _, a := range e.ArgumentList {
			s.analyzeExpr(a)
		}
		if len(e.ArgumentList) > maxArgs {
			s.errorAt(e, "too many arguments in call (%d, limit %d)", len(e.ArgumentList), maxArgs)
		}
	case *ast.NewExpression:
		s.analyzeExpr(e.Callee)
		for _, a := range e.ArgumentList {
			s.analyzeExpr(a)
		}
		if len(e.ArgumentList) > maxArgs {
			s.errorAt(e, "too many arguments in new (%d, limit %d)", len(e.ArgumentList), maxArgs)
		}
	case *ast.VariableExpression:
		if s.strict && isRestrictedName(e.Name) {
			s.errorAt(e, "variable may not be named %s in strict mode", e.Name)
		}
		s.analyzeExpr(e.Initializer)
	default:
		s.errorAt(expr, "unsupported expression %T", expr)
	}
}

// checkTarget validates the left-hand side of an assignment or update.
func (s *SemanticAnalyzer) checkTarget(target ast.Expression, what string) {
	switch t := target.(type) {
	case *ast.Identifier:
		if s.strict && isRestrictedName(t.Name) {
			s.errorAt(t, "assignment to %s in strict mode", t.Name)
		}
	case *ast.DotExpression, *ast.BracketExpression:
	default:
		s.errorAt(target, "invalid left-hand side in %s", what)
	}
}

func (s *SemanticAnalyzer) analyzeFunction(lit *ast.FunctionLiteral) {
	outerStrict, outerIn := s.strict, s.inFunction
	body := functionBody(lit)
	s.strict = s.strict || hasUseStrict(body)
	s.inFunction = true
	defer func() { s.strict, s.inFunction = outerStrict, outerIn }()

	if s.strict {
		if lit.Name != nil && isRestrictedName(lit.Name.Name) {
			s.errorAt(lit.Name, "function may not be named %s in strict mode", lit.Name.Name)
		}
		if lit.ParameterList != nil {
			seen := make(map[string]bool)
			for _, p := range lit.ParameterList.List {
				if seen[p.Name] {
					s.errorAt(p, "duplicate parameter name %q not allowed in strict mode", p.Name)
				}
				if isRestrictedName(p.Name) {
					s.errorAt(p, "parameter may not be named %s in strict mode", p.Name)
				}
				seen[p.Name] = true
			}
		}
	}
	s.analyzeStatements(body)
}
