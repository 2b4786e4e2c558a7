package compiler

import (
	"github.com/robertkrimen/otto/ast"
)

// ---------------------------------------------------------------------------
// Scope analysis: resolve pass run before codegen
// ---------------------------------------------------------------------------

type bindingKind uint8

const (
	bindParam bindingKind = iota
	bindVar
	bindFunction
	bindSelf  // the name of a named function expression, seen from inside
	bindCatch // a catch clause parameter
	bindTemp  // compiler-internal slot
)

// binding is one declared name and the local slot holding it. A binding
// referenced from an inner function is captured: its slot holds a box
// cell instead of the value.
type binding struct {
	name     string
	kind     bindingKind
	slot     uint16
	captured bool
}

// blockScope is the scope a catch clause introduces for its parameter.
type blockScope struct {
	parent  *blockScope
	binding *binding
}

func (b *blockScope) lookup(name string) *binding {
	for ; b != nil; b = b.parent {
		if b.binding.name == name {
			return b.binding
		}
	}
	return nil
}

// funcScope describes one function body, or the program. Program-level
// var and function declarations are global object properties, so the
// program scope declares no names of its own.
type funcScope struct {
	parent *funcScope
	// outerBlock is the parent's catch chain at the literal; hoisted
	// declarations see none.
	outerBlock *blockScope
	lit        *ast.FunctionLiteral
	program    bool
	strict     bool

	params   []*binding
	bindings map[string]*binding
	slots    []*binding

	// funcDecls are hoisted and instantiated in order at entry.
	funcDecls []*ast.FunctionLiteral
	// varDecls are the declared var names, in declaration order.
	varDecls []string
	self     *binding
	// arguments is set when the body refers to its arguments object.
	arguments *binding
}

func (fs *funcScope) newSlot(name string, kind bindingKind) *binding {
	b := &binding{name: name, kind: kind, slot: uint16(len(fs.slots))}
	fs.slots = append(fs.slots, b)
	return b
}

// declare adds a function-level name, reusing an existing binding so a
// var redeclaring a parameter keeps the parameter's slot.
func (fs *funcScope) declare(name string, kind bindingKind) *binding {
	if b, ok := fs.bindings[name]; ok {
		return b
	}
	b := fs.newSlot(name, kind)
	fs.bindings[name] = b
	return b
}

// useArguments binds the name arguments to the function's arguments
// object. A parameter or function declaration of that name shadows the
// object; a var of that name shares its slot and starts out holding it.
func (fs *funcScope) useArguments() {
	if fs.program || fs.arguments != nil {
		return
	}
	if b, ok := fs.bindings["arguments"]; ok && (b.kind == bindParam || b.kind == bindFunction) {
		return
	}
	fs.arguments = fs.declare("arguments", bindVar)
}

// scopeTable is the result of the resolve pass: one scope per function
// literal and per catch clause, shared with codegen.
type scopeTable struct {
	program *funcScope
	funcs   map[*ast.FunctionLiteral]*funcScope
	catches map[*ast.CatchStatement]*blockScope
}

// resolver builds the scope table. It mirrors codegen's traversal order so
// both see the same block chain at every reference.
type resolver struct {
	*reporter
	table *scopeTable
}

// resolveProgram runs the resolve pass over prog.
func resolveProgram(rp *reporter, prog *ast.Program, strict bool) *scopeTable {
	rs := &resolver{
		reporter: rp,
		table: &scopeTable{
			funcs:   make(map[*ast.FunctionLiteral]*funcScope),
			catches: make(map[*ast.CatchStatement]*blockScope),
		},
	}
	ps := &funcScope{
		program:  true,
		strict:   strict || hasUseStrict(prog.Body),
		bindings: make(map[string]*binding),
	}
	rs.table.program = ps
	rs.collectDeclarations(ps, prog.DeclarationList)
	for _, decl := range ps.funcDecls {
		rs.resolveFunction(ps, nil, decl, true)
	}
	rs.walkStatements(ps, nil, prog.Body)
	return rs.table
}

// collectDeclarations records hoisted var and function declarations.
func (rs *resolver) collectDeclarations(fs *funcScope, decls []ast.Declaration) {
	seen := make(map[string]bool)
	for _, d := range decls {
		switch d := d.(type) {
		case *ast.FunctionDeclaration:
			fs.funcDecls = append(fs.funcDecls, d.Function)
			if !fs.program {
				fs.declare(d.Function.Name.Name, bindFunction)
			}
		case *ast.VariableDeclaration:
			for _, v := range d.List {
				if !seen[v.Name] {
					seen[v.Name] = true
					fs.varDecls = append(fs.varDecls, v.Name)
				}
				if !fs.program {
					fs.declare(v.Name, bindVar)
				}
			}
		}
	}
}

// resolveFunction creates the scope of lit and resolves its body.
func (rs *resolver) resolveFunction(parent *funcScope, outer *blockScope, lit *ast.FunctionLiteral, declaration bool) {
	body := functionBody(lit)
	fs := &funcScope{
		parent:     parent,
		outerBlock: outer,
		lit:        lit,
		strict:     parent.strict || hasUseStrict(body),
		bindings:   make(map[string]*binding),
	}
	rs.table.funcs[lit] = fs

	if lit.ParameterList != nil {
		for _, p := range lit.ParameterList.List {
			// A repeated parameter name binds the last position.
			b := fs.newSlot(p.Name, bindParam)
			fs.params = append(fs.params, b)
			fs.bindings[p.Name] = b
		}
	}
	rs.collectDeclarations(fs, lit.DeclarationList)
	if !declaration && lit.Name != nil {
		if _, shadowed := fs.bindings[lit.Name.Name]; !shadowed {
			fs.self = fs.declare(lit.Name.Name, bindSelf)
		}
	}

	for _, decl := range fs.funcDecls {
		rs.resolveFunction(fs, nil, decl, true)
	}
	rs.walkStatements(fs, nil, body)
}

// reference resolves a use of name and marks outer bindings captured.
func (rs *resolver) reference(fs *funcScope, block *blockScope, name string) {
	b, owner := lookup(fs, block, name)
	if b != nil && owner != fs {
		b.captured = true
	}
}

// lookup finds name starting at fs with the catch chain block, then in the
// enclosing functions. A nil binding means name is global.
func lookup(fs *funcScope, block *blockScope, name string) (*binding, *funcScope) {
	for ; fs != nil; fs, block = fs.parent, fs.outerBlock {
		if b := block.lookup(name); b != nil {
			return b, fs
		}
		if b, ok := fs.bindings[name]; ok {
			return b, fs
		}
	}
	return nil, nil
}

func (rs *resolver) walkStatements(fs *funcScope, block *blockScope, stmts []ast.Statement) {
	for _, st := range stmts {
		rs.walkStmt(fs, block, st)
	}
}

func (rs *resolver) walkStmt(fs *funcScope, block *blockScope, stmt ast.Statement) {
	switch st := stmt.(type) {
	case *ast.BlockStatement:
		rs.walkStatements(fs, block, st.List)
	case *ast.ExpressionStatement:
		rs.walkExpr(fs, block, st.Expression)
	case *ast.VariableStatement:
		for _, e := range st.List {
			rs.walkExpr(fs, block, e)
		}
	case *ast.IfStatement:
		rs.walkExpr(fs, block, st.Test)
		rs.walkStmt(fs, block, st.Consequent)
		rs.walkStmt(fs, block, st.Alternate)
	case *ast.WhileStatement:
		rs.walkExpr(fs, block, st.Test)
		rs.walkStmt(fs, block, st.Body)
	case *ast.DoWhileStatement:
		rs.walkStmt(fs, block, st.Body)
		rs.walkExpr(fs, block, st.Test)
	case *ast.ForStatement:
		rs.walkExpr(fs, block, st.Initializer)
		rs.walkExpr(fs, block, st.Test)
		rs.walkExpr(fs, block, st.Update)
		rs.walkStmt(fs, block, st.Body)
	case *ast.ForInStatement:
		rs.walkExpr(fs, block, st.Into)
		rs.walkExpr(fs, block, st.Source)
		rs.walkStmt(fs, block, st.Body)
	case *ast.LabelledStatement:
		rs.walkStmt(fs, block, st.Statement)
	case *ast.ReturnStatement:
		rs.walkExpr(fs, block, st.Argument)
	case *ast.ThrowStatement:
		rs.walkExpr(fs, block, st.Argument)
	case *ast.SwitchStatement:
		rs.walkExpr(fs, block, st.Discriminant)
		for _, cs := range st.Body {
			rs.walkExpr(fs, block, cs.Test)
			rs.walkStatements(fs, block, cs.Consequent)
		}
	case *ast.TryStatement:
		rs.walkStmt(fs, block, st.Body)
		if st.Catch != nil {
			name := ""
			if st.Catch.Parameter != nil {
				name = st.Catch.Parameter.Name
			}
			cb := &blockScope{parent: block, binding: fs.newSlot(name, bindCatch)}
			rs.table.catches[st.Catch] = cb
			rs.walkStmt(fs, cb, st.Catch.Body)
		}
		rs.walkStmt(fs, block, st.Finally)
	}
	// Function statements were resolved with the hoisted declarations.
}

func (rs *resolver) walkExpr(fs *funcScope, block *blockScope, expr ast.Expression) {
	switch e := expr.(type) {
	case *ast.Identifier:
		if e.Name == "arguments" && block.lookup(e.Name) == nil {
			fs.useArguments()
		}
		rs.reference(fs, block, e.Name)
	case *ast.VariableExpression:
		rs.reference(fs, block, e.Name)
		rs.walkExpr(fs, block, e.Initializer)
	case *ast.ArrayLiteral:
		for _, v := range e.Value {
			rs.walkExpr(fs, block, v)
		}
	case *ast.ObjectLiteral:
		for _, p := range e.Value {
			rs.walkExpr(fs, block, p.Value)
		}
	case *ast.FunctionLiteral:
		rs.resolveFunction(fs, block, e, false)
	case *ast.AssignExpression:
		rs.walkExpr(fs, block, e.Left)
		rs.walkExpr(fs, block, e.Right)
	case *ast.UnaryExpression:
		rs.walkExpr(fs, block, e.Operand)
	case *ast.BinaryExpression:
		rs.walkExpr(fs, block, e.Left)
		rs.walkExpr(fs, block, e.Right)
	case *ast.ConditionalExpression:
		rs.walkExpr(fs, block, e.Test)
		rs.walkExpr(fs, block, e.Consequent)
		rs.walkExpr(fs, block, e.Alternate)
	case *ast.SequenceExpression:
		for _, v := range e.Sequence {
			rs.walkExpr(fs, block, v)
		}
	case *ast.DotExpression:
		rs.walkExpr(fs, block, e.Left)
	case *ast.BracketExpression:
		rs.walkExpr(fs, block, e.Left)
		rs.walkExpr(fs, block, e.Member)
	case *ast.CallExpression:
		rs.walkExpr(fs, block, e.Callee)
		for _, a := range e.ArgumentList {
			rs.walkExpr(fs, block, a)
		}
	case *ast.NewExpression:
		rs.walkExpr(fs, block, e.Callee)
		for _, a := range e.ArgumentList {
			rs.walkExpr(fs, block, a)
		}
	}
}
