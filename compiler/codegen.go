// Package compiler translates otto syntax trees into the register-free
// stack bytecode of package bytecode.
//
// Compilation runs three passes over the tree: a semantic check that
// rejects unsupported and invalid constructs, a resolve pass that assigns
// local slots and finds captured bindings, and code generation.
package compiler

import (
	"math"
	"slices"
	"strconv"

	"github.com/chazu/jsrt/pkg/bytecode"
	"github.com/robertkrimen/otto/ast"
	"github.com/robertkrimen/otto/file"
	"github.com/robertkrimen/otto/token"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("jsrt.compiler")

const (
	maxArgs         = math.MaxUint8
	maxLocals       = math.MaxUint16
	maxArrayLiteral = math.MaxUint16
)

// Options control compilation of one program.
type Options struct {
	// Filename names the source in errors and stack traces. It defaults to
	// the name recorded in the program's file.
	Filename string
	// Strict compiles the whole program as strict mode code.
	Strict bool
}

// Compile compiles a parsed program. Semantic errors are reported all
// together as an *ErrorList.
func Compile(prog *ast.Program, opts Options) (*bytecode.Program, error) {
	filename := opts.Filename
	if filename == "" && prog.File != nil {
		filename = prog.File.Name()
	}
	rp := &reporter{file: prog.File, filename: filename, list: &ErrorList{}}

	NewSemanticAnalyzer(rp).AnalyzeProgram(prog, opts.Strict)
	if err := rp.list.Err(); err != nil {
		return nil, err
	}
	scopes := resolveProgram(rp, prog, opts.Strict)
	if err := rp.list.Err(); err != nil {
		return nil, err
	}

	c := NewCompiler(rp, scopes)
	main := c.compileProgram(prog)
	if err := rp.list.Err(); err != nil {
		return nil, err
	}

	functions := 0
	main.Walk(func(*bytecode.FunctionCode) { functions++ })
	log.Debugf("compiled %s: %d functions, %d bytes of top-level code", filename, functions, len(main.Code))
	return &bytecode.Program{
		Version:  bytecode.BytecodeVersion,
		Filename: filename,
		Main:     main,
	}, nil
}

// ---------------------------------------------------------------------------
// Codegen: Compile AST to bytecode
// ---------------------------------------------------------------------------

// Compiler generates bytecode from a resolved AST.
type Compiler struct {
	*reporter
	scopes *scopeTable
	fn     *funcState
}

// NewCompiler creates a code generator over the result of the resolve
// pass.
func NewCompiler(rp *reporter, scopes *scopeTable) *Compiler {
	return &Compiler{reporter: rp, scopes: scopes}
}

// funcState is the code generation state of the function being compiled.
type funcState struct {
	parent *funcState
	scope  *funcScope
	code   *bytecode.FunctionCode
	b      *bytecode.Builder

	block     *blockScope
	captureOf map[*binding]uint16
	ctx       []*jumpContext
	labels    []string // pending labels for the next loop or switch

	// depth counts the values a statement leaves on the operand stack:
	// for-in iterators, switch discriminants and pending return values.
	depth int

	completion *binding // program only
	caches     int
}

type contextKind uint8

const (
	ctxLoop contextKind = iota
	ctxSwitch
	ctxLabel
	ctxTry
)

// jumpContext is an enclosing statement that break, continue or return
// may have to leave.
type jumpContext struct {
	kind   contextKind
	labels []string

	breakLabel    *bytecode.Label
	continueLabel *bytecode.Label
	breakDepth    int
	continueDepth int

	// try statements
	finally ast.Statement
	depth   int
	block   *blockScope
	gaps    [][2]int // inlined exit paths the handlers must not cover
}

// ---------------------------------------------------------------------------
// Functions and the program
// ---------------------------------------------------------------------------

func (c *Compiler) compileProgram(prog *ast.Program) *bytecode.FunctionCode {
	scope := c.scopes.program
	fc := bytecode.NewFunctionCode("<program>")
	fc.IsProgram = true
	fs := &funcState{
		scope:     scope,
		code:      fc,
		b:         bytecode.NewBuilder(),
		captureOf: make(map[*binding]uint16),
	}
	fs.completion = scope.newSlot("", bindTemp)
	c.fn = fs

	b := fs.b
	for _, decl := range scope.funcDecls {
		b.EmitUint16(bytecode.OpDeclareGlobal, c.constString(decl.Name.Name))
	}
	for _, decl := range scope.funcDecls {
		c.compileFunction(decl, "")
		b.EmitUint16(bytecode.OpSetGlobal, c.constString(decl.Name.Name))
		b.Emit(bytecode.OpPop)
	}
	for _, name := range scope.varDecls {
		b.EmitUint16(bytecode.OpDeclareGlobal, c.constString(name))
	}

	c.compileStatements(prog.Body)
	b.EmitUint16(bytecode.OpGetLocal, fs.completion.slot)
	b.Emit(bytecode.OpReturn)
	c.finish(nil)
	return fc
}

// compileFunction compiles lit as a child of the current function and
// emits the closure creation.
func (c *Compiler) compileFunction(lit *ast.FunctionLiteral, inferred string) {
	scope := c.scopes.funcs[lit]
	name := inferred
	if lit.Name != nil {
		name = lit.Name.Name
	}
	fc := bytecode.NewFunctionCode(name)
	outer := c.fn
	c.fn = &funcState{
		parent:    outer,
		scope:     scope,
		code:      fc,
		b:         bytecode.NewBuilder(),
		captureOf: make(map[*binding]uint16),
	}
	c.prologue()
	body := functionBody(lit)
	c.compileStatements(body)
	c.fn.b.Emit(bytecode.OpReturnUndefined)
	c.finish(lit)
	c.fn = outer

	idx := outer.code.AddFunction(fc)
	outer.b.EmitUint16(bytecode.OpClosure, idx)
}

// prologue boxes captured bindings and instantiates hoisted functions.
func (c *Compiler) prologue() {
	fn := c.fn
	scope := fn.scope
	for _, p := range scope.params {
		if p.captured && scope.bindings[p.name] == p {
			fn.b.EmitUint16(bytecode.OpBoxParam, p.slot)
		}
	}
	for _, bd := range scope.slots {
		switch bd.kind {
		case bindVar, bindFunction, bindSelf:
			if bd.captured {
				fn.b.EmitUint16(bytecode.OpMakeBox, bd.slot)
			}
		}
	}
	if scope.self != nil {
		fn.b.Emit(bytecode.OpCallee)
		c.storeBinding(scope.self)
		fn.b.Emit(bytecode.OpPop)
	}
	if scope.arguments != nil {
		fn.b.Emit(bytecode.OpArguments)
		c.storeBinding(scope.arguments)
		fn.b.Emit(bytecode.OpPop)
	}
	for _, decl := range scope.funcDecls {
		c.compileFunction(decl, "")
		c.emitStore(decl.Name.Name)
		fn.b.Emit(bytecode.OpPop)
	}
}

// finish seals the current function's code.
func (c *Compiler) finish(lit *ast.FunctionLiteral) {
	fn := c.fn
	fc := fn.code
	var at file.Idx
	if lit != nil {
		at = lit.Idx0()
	}
	if err := fn.b.Err(); err != nil {
		c.errorAtIdx(at, "function %q: %v", fc.Name, err)
	}
	if len(fn.scope.slots) > maxLocals {
		c.errorAtIdx(at, "function %q has too many locals (%d)", fc.Name, len(fn.scope.slots))
	}
	fc.Code = fn.b.Bytes()
	fc.ParamCount = uint16(len(fn.scope.params))
	fc.LocalCount = uint16(len(fn.scope.slots))
	fc.Strict = fn.scope.strict
	fc.UsesArguments = fn.scope.arguments != nil
	fc.CacheCount = uint16(fn.caches)
	for _, p := range fn.scope.params {
		fc.ParamNames = append(fc.ParamNames, p.name)
	}
	for _, s := range fn.scope.slots {
		fc.VarNames = append(fc.VarNames, s.name)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (c *Compiler) constString(s string) uint16 {
	idx, err := c.fn.code.AddString(s)
	if err != nil {
		c.errorAtIdx(0, "%v", err)
	}
	return idx
}

func (c *Compiler) emitNumber(f float64) {
	if f == math.Trunc(f) && f >= math.MinInt8 && f <= math.MaxInt8 && !(f == 0 && math.Signbit(f)) {
		c.fn.b.EmitInt8(bytecode.OpPushInt8, int8(f))
		return
	}
	idx, err := c.fn.code.AddNumber(f)
	if err != nil {
		c.errorAtIdx(0, "%v", err)
	}
	c.fn.b.EmitUint16(bytecode.OpConst, idx)
}

func (c *Compiler) emitString(s string) {
	c.fn.b.EmitUint16(bytecode.OpConst, c.constString(s))
}

// cacheSlot allocates an inline cache for a property access site.
func (c *Compiler) cacheSlot() uint16 {
	n := c.fn.caches
	c.fn.caches++
	return uint16(n)
}

func (c *Compiler) emitGetProp(name string) {
	c.fn.b.EmitUint16Pair(bytecode.OpGetProp, c.constString(name), c.cacheSlot())
}

func (c *Compiler) emitSetProp(name string) {
	c.fn.b.EmitUint16Pair(bytecode.OpSetProp, c.constString(name), c.cacheSlot())
}

// mark records the source position of node for the next instruction.
func (c *Compiler) mark(node ast.Node) {
	if node == nil {
		return
	}
	line, col := c.position(node.Idx0())
	if line == 0 {
		return
	}
	c.fn.code.AddSourceLocation(uint32(c.fn.b.Len()), uint32(line), uint16(min(col, math.MaxUint16)))
}

func (c *Compiler) popTo(from, to int) {
	for ; from > to; from-- {
		c.fn.b.Emit(bytecode.OpPop)
	}
}

// ---------------------------------------------------------------------------
// Variable access
// ---------------------------------------------------------------------------

type refKind uint8

const (
	refGlobal refKind = iota
	refLocal
	refBoxed
	refCapture
)

type varRef struct {
	kind  refKind
	index uint16
}

// resolve maps name to its storage in the current function.
func (c *Compiler) resolve(name string) varRef {
	fn := c.fn
	b, owner := lookup(fn.scope, fn.block, name)
	switch {
	case b == nil:
		return varRef{kind: refGlobal, index: c.constString(name)}
	case owner == fn.scope && b.captured:
		return varRef{kind: refBoxed, index: b.slot}
	case owner == fn.scope:
		return varRef{kind: refLocal, index: b.slot}
	}
	return varRef{kind: refCapture, index: fn.captureIndex(b, owner)}
}

// captureIndex returns the capture slot for an outer binding, threading
// it through every intermediate function.
func (fs *funcState) captureIndex(b *binding, owner *funcScope) uint16 {
	if idx, ok := fs.captureOf[b]; ok {
		return idx
	}
	d := bytecode.CaptureDescriptor{Name: b.name}
	if fs.parent.scope == owner {
		d.FromParentLocal = true
		d.Index = b.slot
	} else {
		d.Index = fs.parent.captureIndex(b, owner)
	}
	idx := uint16(len(fs.code.Captures))
	fs.code.Captures = append(fs.code.Captures, d)
	fs.captureOf[b] = idx
	return idx
}

func (c *Compiler) emitLoad(name string) {
	if name == "undefined" {
		if b, _ := lookup(c.fn.scope, c.fn.block, name); b == nil {
			c.fn.b.Emit(bytecode.OpUndefined)
			return
		}
	}
	ref := c.resolve(name)
	switch ref.kind {
	case refLocal:
		c.fn.b.EmitUint16(bytecode.OpGetLocal, ref.index)
	case refBoxed:
		c.fn.b.EmitUint16(bytecode.OpGetBoxed, ref.index)
	case refCapture:
		c.fn.b.EmitUint16(bytecode.OpGetCapture, ref.index)
	default:
		c.fn.b.EmitUint16(bytecode.OpGetGlobal, ref.index)
	}
}

// emitStore stores the top of stack into name, leaving it in place.
func (c *Compiler) emitStore(name string) {
	ref := c.resolve(name)
	switch ref.kind {
	case refLocal:
		c.fn.b.EmitUint16(bytecode.OpSetLocal, ref.index)
	case refBoxed:
		c.fn.b.EmitUint16(bytecode.OpSetBoxed, ref.index)
	case refCapture:
		c.fn.b.EmitUint16(bytecode.OpSetCapture, ref.index)
	default:
		c.fn.b.EmitUint16(bytecode.OpSetGlobal, ref.index)
	}
}

// storeBinding stores into a binding of the current function directly.
func (c *Compiler) storeBinding(b *binding) {
	if b.captured {
		c.fn.b.EmitUint16(bytecode.OpSetBoxed, b.slot)
	} else {
		c.fn.b.EmitUint16(bytecode.OpSetLocal, b.slot)
	}
}

// ---------------------------------------------------------------------------
// Statement compilation
// ---------------------------------------------------------------------------

func (c *Compiler) compileStatements(stmts []ast.Statement) {
	for _, stmt := range stmts {
		c.compileStmt(stmt)
	}
}

func (c *Compiler) compileStmt(stmt ast.Statement) {
	fn := c.fn
	b := fn.b
	switch st := stmt.(type) {
	case nil, *ast.EmptyStatement, *ast.FunctionStatement:
		// Function statements are instantiated by the prologue.
	case *ast.DebuggerStatement:
		b.Emit(bytecode.OpNop)
	case *ast.BlockStatement:
		c.compileStatements(st.List)
	case *ast.ExpressionStatement:
		c.mark(st)
		c.compileExpr(st.Expression)
		if fn.completion != nil {
			b.EmitUint16(bytecode.OpSetLocal, fn.completion.slot)
		}
		b.Emit(bytecode.OpPop)
	case *ast.VariableStatement:
		c.mark(st)
		for _, e := range st.List {
			if v, ok := e.(*ast.VariableExpression); ok && v.Initializer == nil {
				continue
			}
			c.compileExpr(e)
			b.Emit(bytecode.OpPop)
		}
	case *ast.IfStatement:
		c.mark(st)
		c.compileExpr(st.Test)
		elseLabel := b.NewLabel()
		b.EmitJump(bytecode.OpJumpIfFalse, elseLabel)
		c.compileStmt(st.Consequent)
		if st.Alternate == nil {
			b.Mark(elseLabel)
			return
		}
		end := b.NewLabel()
		b.EmitJump(bytecode.OpJump, end)
		b.Mark(elseLabel)
		c.compileStmt(st.Alternate)
		b.Mark(end)
	case *ast.WhileStatement:
		c.compileWhile(st)
	case *ast.DoWhileStatement:
		c.compileDoWhile(st)
	case *ast.ForStatement:
		c.compileFor(st)
	case *ast.ForInStatement:
		c.compileForIn(st)
	case *ast.SwitchStatement:
		c.compileSwitch(st)
	case *ast.LabelledStatement:
		c.compileLabelled(st)
	case *ast.BranchStatement:
		c.mark(st)
		c.compileBranch(st)
	case *ast.ReturnStatement:
		c.mark(st)
		c.compileReturn(st)
	case *ast.ThrowStatement:
		c.mark(st)
		c.compileExpr(st.Argument)
		b.Emit(bytecode.OpThrow)
	case *ast.TryStatement:
		c.mark(st)
		c.compileTry(st)
	default:
		c.errorAt(stmt, "unknown statement type: %T", stmt)
	}
}

// takeLabels returns and clears the labels attached to the next loop.
func (fs *funcState) takeLabels() []string {
	l := fs.labels
	fs.labels = nil
	return l
}

func (c *Compiler) pushContext(jc *jumpContext) {
	c.fn.ctx = append(c.fn.ctx, jc)
}

func (c *Compiler) popContext() {
	c.fn.ctx = c.fn.ctx[:len(c.fn.ctx)-1]
}

func (c *Compiler) compileWhile(st *ast.WhileStatement) {
	fn := c.fn
	b := fn.b
	labels := fn.takeLabels()
	c.mark(st)
	top, exit := b.NewLabel(), b.NewLabel()
	b.Mark(top)
	c.compileExpr(st.Test)
	b.EmitJump(bytecode.OpJumpIfFalse, exit)
	c.pushContext(&jumpContext{
		kind: ctxLoop, labels: labels,
		breakLabel: exit, continueLabel: top,
		breakDepth: fn.depth, continueDepth: fn.depth,
	})
	c.compileStmt(st.Body)
	c.popContext()
	b.EmitJump(bytecode.OpJump, top)
	b.Mark(exit)
}

func (c *Compiler) compileDoWhile(st *ast.DoWhileStatement) {
	fn := c.fn
	b := fn.b
	labels := fn.takeLabels()
	c.mark(st)
	top, cont, exit := b.NewLabel(), b.NewLabel(), b.NewLabel()
	b.Mark(top)
	c.pushContext(&jumpContext{
		kind: ctxLoop, labels: labels,
		breakLabel: exit, continueLabel: cont,
		breakDepth: fn.depth, continueDepth: fn.depth,
	})
	c.compileStmt(st.Body)
	c.popContext()
	b.Mark(cont)
	c.compileExpr(st.Test)
	b.EmitJump(bytecode.OpJumpIfTrue, top)
	b.Mark(exit)
}

func (c *Compiler) compileFor(st *ast.ForStatement) {
	fn := c.fn
	b := fn.b
	labels := fn.takeLabels()
	c.mark(st)
	if seq, ok := st.Initializer.(*ast.SequenceExpression); ok {
		for _, e := range seq.Sequence {
			if v, ok := e.(*ast.VariableExpression); ok && v.Initializer == nil {
				continue
			}
			c.compileExpr(e)
			b.Emit(bytecode.OpPop)
		}
	} else if st.Initializer != nil {
		c.compileExpr(st.Initializer)
		b.Emit(bytecode.OpPop)
	}

	top, cont, exit := b.NewLabel(), b.NewLabel(), b.NewLabel()
	b.Mark(top)
	if st.Test != nil {
		c.compileExpr(st.Test)
		b.EmitJump(bytecode.OpJumpIfFalse, exit)
	}
	c.pushContext(&jumpContext{
		kind: ctxLoop, labels: labels,
		breakLabel: exit, continueLabel: cont,
		breakDepth: fn.depth, continueDepth: fn.depth,
	})
	c.compileStmt(st.Body)
	c.popContext()
	b.Mark(cont)
	if st.Update != nil {
		c.compileExpr(st.Update)
		b.Emit(bytecode.OpPop)
	}
	b.EmitJump(bytecode.OpJump, top)
	b.Mark(exit)
}

func (c *Compiler) compileForIn(st *ast.ForInStatement) {
	fn := c.fn
	b := fn.b
	labels := fn.takeLabels()
	c.mark(st)
	if v, ok := st.Into.(*ast.VariableExpression); ok && v.Initializer != nil {
		c.compileExpr(v)
		b.Emit(bytecode.OpPop)
	}
	c.compileExpr(st.Source)
	b.Emit(bytecode.OpForInPrepare)
	fn.depth++

	top, exit := b.NewLabel(), b.NewLabel()
	b.Mark(top)
	b.EmitJump(bytecode.OpForInNext, exit)
	// iterator key
	switch into := st.Into.(type) {
	case *ast.VariableExpression:
		c.emitStore(into.Name)
	case *ast.Identifier:
		c.emitStore(into.Name)
	case *ast.DotExpression:
		c.compileExpr(into.Left)
		b.Emit(bytecode.OpSwap)
		c.emitSetProp(into.Identifier.Name)
	case *ast.BracketExpression:
		c.compileExpr(into.Left)
		c.compileExpr(into.Member)
		b.Emit(bytecode.OpRot3)
		b.Emit(bytecode.OpRot3)
		b.Emit(bytecode.OpSetElem)
	default:
		c.errorAt(st.Into, "invalid left-hand side in for-in")
	}
	b.Emit(bytecode.OpPop)

	c.pushContext(&jumpContext{
		kind: ctxLoop, labels: labels,
		breakLabel: exit, continueLabel: top,
		breakDepth: fn.depth - 1, continueDepth: fn.depth,
	})
	c.compileStmt(st.Body)
	c.popContext()
	b.EmitJump(bytecode.OpJump, top)
	fn.depth--
	b.Mark(exit)
}

func (c *Compiler) compileSwitch(st *ast.SwitchStatement) {
	fn := c.fn
	b := fn.b
	labels := fn.takeLabels()
	c.mark(st)
	c.compileExpr(st.Discriminant)
	fn.depth++

	caseLabels := make([]*bytecode.Label, len(st.Body))
	for i, cs := range st.Body {
		caseLabels[i] = b.NewLabel()
		if cs.Test == nil {
			continue
		}
		b.Emit(bytecode.OpDup)
		c.compileExpr(cs.Test)
		b.Emit(bytecode.OpStrictEq)
		b.EmitJump(bytecode.OpJumpIfTrue, caseLabels[i])
	}
	done, exit := b.NewLabel(), b.NewLabel()
	if st.Default >= 0 && st.Default < len(st.Body) {
		b.EmitJump(bytecode.OpJump, caseLabels[st.Default])
	} else {
		b.EmitJump(bytecode.OpJump, done)
	}

	c.pushContext(&jumpContext{
		kind: ctxSwitch, labels: labels,
		breakLabel: exit, breakDepth: fn.depth - 1,
	})
	for i, cs := range st.Body {
		b.Mark(caseLabels[i])
		c.compileStatements(cs.Consequent)
	}
	c.popContext()
	b.Mark(done)
	b.Emit(bytecode.OpPop)
	fn.depth--
	b.Mark(exit)
}

func (c *Compiler) compileLabelled(st *ast.LabelledStatement) {
	fn := c.fn
	fn.labels = append(fn.labels, st.Label.Name)
	switch inner := st.Statement.(type) {
	case *ast.LabelledStatement:
		c.compileLabelled(inner)
	case *ast.WhileStatement, *ast.DoWhileStatement, *ast.ForStatement,
		*ast.ForInStatement, *ast.SwitchStatement:
		c.compileStmt(inner)
	default:
		labels := fn.takeLabels()
		end := fn.b.NewLabel()
		c.pushContext(&jumpContext{kind: ctxLabel, labels: labels, breakLabel: end, breakDepth: fn.depth})
		c.compileStmt(inner)
		c.popContext()
		fn.b.Mark(end)
	}
}

// compileBranch compiles break and continue. Leaving a try statement runs
// its finally block inline before the jump.
func (c *Compiler) compileBranch(st *ast.BranchStatement) {
	fn := c.fn
	isContinue := st.Token == token.CONTINUE
	label := ""
	if st.Label != nil {
		label = st.Label.Name
	}

	target := -1
	for i := len(fn.ctx) - 1; i >= 0 && target < 0; i-- {
		jc := fn.ctx[i]
		switch {
		case label != "":
			if slices.Contains(jc.labels, label) {
				if isContinue && jc.kind != ctxLoop {
					c.errorAt(st, "continue target %q is not a loop", label)
					return
				}
				target = i
			}
		case isContinue:
			if jc.kind == ctxLoop {
				target = i
			}
		case jc.kind == ctxLoop || jc.kind == ctxSwitch:
			target = i
		}
	}
	if target < 0 {
		switch {
		case label != "":
			c.errorAt(st, "undefined label %q", label)
		case isContinue:
			c.errorAt(st, "illegal continue statement")
		default:
			c.errorAt(st, "illegal break statement")
		}
		return
	}

	jc := fn.ctx[target]
	depth, exits := c.exitContexts(target+1, fn.depth)
	if isContinue {
		c.popTo(depth, jc.continueDepth)
		fn.b.EmitJump(bytecode.OpJump, jc.continueLabel)
	} else {
		c.popTo(depth, jc.breakDepth)
		fn.b.EmitJump(bytecode.OpJump, jc.breakLabel)
	}
	c.addGaps(target+1, exits, fn.b.Len())
}

// compileReturn evaluates the result, runs every enclosing finally block
// with the result kept on the stack, and returns.
func (c *Compiler) compileReturn(st *ast.ReturnStatement) {
	fn := c.fn
	if st.Argument != nil {
		c.compileExpr(st.Argument)
	} else {
		fn.b.Emit(bytecode.OpUndefined)
	}
	exits := make([]int, len(fn.ctx))
	for i := len(fn.ctx) - 1; i >= 0; i-- {
		exits[i] = fn.b.Len()
		if jc := fn.ctx[i]; jc.kind == ctxTry && jc.finally != nil {
			c.inlineFinally(i, fn.depth+1)
		}
	}
	fn.b.Emit(bytecode.OpReturn)
	c.addGaps(0, exits, fn.b.Len())
}

// exitContexts emits the finally blocks of the contexts from index k up,
// innermost first, popping the operand stack down to each try's entry
// depth. It returns the depth left behind and, per context, the offset
// at which control leaves it.
func (c *Compiler) exitContexts(k, depth int) (int, []int) {
	fn := c.fn
	exits := make([]int, len(fn.ctx))
	for i := len(fn.ctx) - 1; i >= k; i-- {
		exits[i] = fn.b.Len()
		jc := fn.ctx[i]
		if jc.kind != ctxTry || jc.finally == nil {
			continue
		}
		c.popTo(depth, jc.depth)
		depth = jc.depth
		c.inlineFinally(i, depth)
	}
	return depth, exits
}

// inlineFinally compiles the finally block of fn.ctx[i] in the context
// that encloses that try statement.
func (c *Compiler) inlineFinally(i, depth int) {
	fn := c.fn
	jc := fn.ctx[i]
	savedCtx, savedDepth, savedBlock, savedLabels := fn.ctx, fn.depth, fn.block, fn.labels
	fn.ctx = fn.ctx[:i:i]
	fn.depth = depth
	fn.block = jc.block
	fn.labels = nil
	c.compileStmt(jc.finally)
	fn.ctx, fn.depth, fn.block, fn.labels = savedCtx, savedDepth, savedBlock, savedLabels
}

// addGaps excludes the code after each exited try context's exit point
// from that context's handlers. The finally blocks of inner contexts stay
// covered by the outer ones.
func (c *Compiler) addGaps(k int, exits []int, end int) {
	for i := k; i < len(c.fn.ctx); i++ {
		if jc := c.fn.ctx[i]; jc.kind == ctxTry && exits[i] < end {
			jc.gaps = append(jc.gaps, [2]int{exits[i], end})
		}
	}
}

// addHandler appends handler entries covering [start, end) minus gaps.
func (c *Compiler) addHandler(start, end int, gaps [][2]int, target, depth int) {
	slices.SortFunc(gaps, func(a, b [2]int) int { return a[0] - b[0] })
	for _, g := range gaps {
		if g[0] >= end {
			break
		}
		if g[0] > start {
			c.appendHandler(start, g[0], target, depth)
		}
		start = max(start, g[1])
	}
	if start < end {
		c.appendHandler(start, end, target, depth)
	}
}

func (c *Compiler) appendHandler(start, end, target, depth int) {
	c.fn.code.Handlers = append(c.fn.code.Handlers, bytecode.Handler{
		Start:      uint32(start),
		End:        uint32(end),
		Target:     uint32(target),
		StackDepth: uint16(depth),
	})
}

// compileTry lays out
//
//	body; finally; jump end
//	catch: bind; catch body; finally; jump end
//	rethrow: finally; throw
//	end:
//
// with the catch handler covering the body and the rethrow handler
// covering both the body and the catch block.
func (c *Compiler) compileTry(st *ast.TryStatement) {
	fn := c.fn
	b := fn.b
	jc := &jumpContext{kind: ctxTry, finally: st.Finally, depth: fn.depth, block: fn.block}
	end := b.NewLabel()

	c.pushContext(jc)
	tryStart := b.Len()
	c.compileStmt(st.Body)
	tryEnd := b.Len()
	c.popContext()
	tryGaps := jc.gaps
	if st.Finally != nil {
		c.compileStmt(st.Finally)
	}
	b.EmitJump(bytecode.OpJump, end)

	var catchStart, catchEnd int
	var catchGaps [][2]int
	if st.Catch != nil {
		catchStart = b.Len()
		c.addHandler(tryStart, tryEnd, slices.Clone(tryGaps), catchStart, jc.depth)

		jc.gaps = nil
		c.pushContext(jc)
		cb := c.scopes.catches[st.Catch]
		if cb.binding.captured {
			b.EmitUint16(bytecode.OpMakeBox, cb.binding.slot)
			b.EmitUint16(bytecode.OpSetBoxed, cb.binding.slot)
		} else {
			b.EmitUint16(bytecode.OpSetLocal, cb.binding.slot)
		}
		b.Emit(bytecode.OpPop)
		outerBlock := fn.block
		fn.block = cb
		c.compileStmt(st.Catch.Body)
		fn.block = outerBlock
		catchEnd = b.Len()
		c.popContext()
		catchGaps = jc.gaps

		if st.Finally != nil {
			c.compileStmt(st.Finally)
		}
		b.EmitJump(bytecode.OpJump, end)
	}

	if st.Finally != nil {
		target := b.Len()
		c.addHandler(tryStart, tryEnd, tryGaps, target, jc.depth)
		if st.Catch != nil {
			c.addHandler(catchStart, catchEnd, catchGaps, target, jc.depth)
		}
		fn.depth++
		c.compileStmt(st.Finally)
		fn.depth--
		b.Emit(bytecode.OpThrow)
	}
	b.Mark(end)
}

// ---------------------------------------------------------------------------
// Expression compilation
// ---------------------------------------------------------------------------

// compileExpr compiles expr leaving exactly one value on the stack.
func (c *Compiler) compileExpr(expr ast.Expression) {
	b := c.fn.b
	switch e := expr.(type) {
	case nil:
		b.Emit(bytecode.OpUndefined)
	case *ast.NullLiteral:
		b.Emit(bytecode.OpNull)
	case *ast.BooleanLiteral:
		if e.Value {
			b.Emit(bytecode.OpTrue)
		} else {
			b.Emit(bytecode.OpFalse)
		}
	case *ast.NumberLiteral:
		c.compileNumber(e)
	case *ast.StringLiteral:
		c.emitString(e.Value)
	case *ast.ThisExpression:
		b.Emit(bytecode.OpThis)
	case *ast.Identifier:
		c.emitLoad(e.Name)
	case *ast.VariableExpression:
		if e.Initializer == nil {
			b.Emit(bytecode.OpUndefined)
			return
		}
		c.compileValue(e.Initializer, e.Name)
		c.emitStore(e.Name)
	case *ast.ArrayLiteral:
		c.compileArrayLiteral(e)
	case *ast.ObjectLiteral:
		b.Emit(bytecode.OpNewObject)
		for _, p := range e.Value {
			c.compileValue(p.Value, p.Key)
			b.EmitUint16(bytecode.OpInitProp, c.constString(p.Key))
		}
	case *ast.FunctionLiteral:
		c.compileFunction(e, "")
	case *ast.SequenceExpression:
		if len(e.Sequence) == 0 {
			b.Emit(bytecode.OpUndefined)
			return
		}
		for i, v := range e.Sequence {
			if i > 0 {
				b.Emit(bytecode.OpPop)
			}
			c.compileExpr(v)
		}
	case *ast.ConditionalExpression:
		elseLabel, end := b.NewLabel(), b.NewLabel()
		c.compileExpr(e.Test)
		b.EmitJump(bytecode.OpJumpIfFalse, elseLabel)
		c.compileExpr(e.Consequent)
		b.EmitJump(bytecode.OpJump, end)
		b.Mark(elseLabel)
		c.compileExpr(e.Alternate)
		b.Mark(end)
	case *ast.DotExpression:
		c.compileExpr(e.Left)
		c.mark(e)
		c.emitGetProp(e.Identifier.Name)
	case *ast.BracketExpression:
		c.compileExpr(e.Left)
		c.compileExpr(e.Member)
		c.mark(e)
		b.Emit(bytecode.OpGetElem)
	case *ast.AssignExpression:
		c.compileAssign(e)
	case *ast.UnaryExpression:
		c.compileUnary(e)
	case *ast.BinaryExpression:
		c.compileBinary(e)
	case *ast.CallExpression:
		c.compileCall(e)
	case *ast.NewExpression:
		c.compileExpr(e.Callee)
		b.Emit(bytecode.OpUndefined)
		for _, a := range e.ArgumentList {
			c.compileExpr(a)
		}
		c.mark(e)
		b.EmitByte(bytecode.OpNew, byte(len(e.ArgumentList)))
	case *ast.EmptyExpression:
		b.Emit(bytecode.OpHole)
	default:
		c.errorAt(expr, "unknown expression type: %T", expr)
		b.Emit(bytecode.OpUndefined)
	}
}

// compileValue compiles expr, naming an anonymous function literal after
// the binding or property it is assigned to.
func (c *Compiler) compileValue(expr ast.Expression, name string) {
	if lit, ok := expr.(*ast.FunctionLiteral); ok && lit.Name == nil {
		c.compileFunction(lit, name)
		return
	}
	c.compileExpr(expr)
}

func (c *Compiler) compileNumber(e *ast.NumberLiteral) {
	switch v := e.Value.(type) {
	case int64:
		c.emitNumber(float64(v))
	case float64:
		c.emitNumber(v)
	default:
		f, err := strconv.ParseFloat(e.Literal, 64)
		if err != nil {
			c.errorAt(e, "invalid number literal %q", e.Literal)
		}
		c.emitNumber(f)
	}
}

func (c *Compiler) compileArrayLiteral(e *ast.ArrayLiteral) {
	if len(e.Value) > maxArrayLiteral {
		c.errorAt(e, "array literal has too many elements (%d)", len(e.Value))
		c.fn.b.Emit(bytecode.OpUndefined)
		return
	}
	for _, v := range e.Value {
		if v == nil {
			c.fn.b.Emit(bytecode.OpHole)
			continue
		}
		c.compileExpr(v)
	}
	c.fn.b.EmitUint16(bytecode.OpNewArray, uint16(len(e.Value)))
}

var binaryOps = map[token.Token]bytecode.Opcode{
	token.PLUS:                 bytecode.OpAdd,
	token.MINUS:                bytecode.OpSub,
	token.MULTIPLY:             bytecode.OpMul,
	token.SLASH:                bytecode.OpDiv,
	token.REMAINDER:            bytecode.OpMod,
	token.AND:                  bytecode.OpBitAnd,
	token.OR:                   bytecode.OpBitOr,
	token.EXCLUSIVE_OR:         bytecode.OpBitXor,
	token.SHIFT_LEFT:           bytecode.OpShl,
	token.SHIFT_RIGHT:          bytecode.OpShr,
	token.UNSIGNED_SHIFT_RIGHT: bytecode.OpUShr,
	token.EQUAL:                bytecode.OpEq,
	token.NOT_EQUAL:            bytecode.OpNe,
	token.STRICT_EQUAL:         bytecode.OpStrictEq,
	token.STRICT_NOT_EQUAL:     bytecode.OpStrictNe,
	token.LESS:                 bytecode.OpLt,
	token.LESS_OR_EQUAL:        bytecode.OpLe,
	token.GREATER:              bytecode.OpGt,
	token.GREATER_OR_EQUAL:     bytecode.OpGe,
	token.IN:                   bytecode.OpIn,
	token.INSTANCEOF:           bytecode.OpInstanceOf,
}

func (c *Compiler) binaryOp(node ast.Node, op token.Token) bytecode.Opcode {
	if code, ok := binaryOps[op]; ok {
		return code
	}
	c.errorAt(node, "unsupported operator %s", op)
	return bytecode.OpNop
}

func (c *Compiler) compileBinary(e *ast.BinaryExpression) {
	b := c.fn.b
	switch e.Operator {
	case token.LOGICAL_AND, token.LOGICAL_OR:
		end := b.NewLabel()
		c.compileExpr(e.Left)
		if e.Operator == token.LOGICAL_AND {
			b.EmitJump(bytecode.OpJumpIfFalseOr, end)
		} else {
			b.EmitJump(bytecode.OpJumpIfTrueOr, end)
		}
		c.compileExpr(e.Right)
		b.Mark(end)
		return
	}
	c.compileExpr(e.Left)
	c.compileExpr(e.Right)
	b.Emit(c.binaryOp(e, e.Operator))
}

func (c *Compiler) compileAssign(e *ast.AssignExpression) {
	b := c.fn.b
	compound := e.Operator != token.ASSIGN
	switch left := e.Left.(type) {
	case *ast.Identifier:
		if compound {
			c.emitLoad(left.Name)
			c.compileExpr(e.Right)
			b.Emit(c.binaryOp(e, e.Operator))
		} else {
			c.compileValue(e.Right, left.Name)
		}
		c.emitStore(left.Name)
	case *ast.DotExpression:
		c.compileExpr(left.Left)
		if compound {
			b.Emit(bytecode.OpDup)
			c.emitGetProp(left.Identifier.Name)
			c.compileExpr(e.Right)
			b.Emit(c.binaryOp(e, e.Operator))
		} else {
			c.compileValue(e.Right, left.Identifier.Name)
		}
		c.mark(left)
		c.emitSetProp(left.Identifier.Name)
	case *ast.BracketExpression:
		c.compileExpr(left.Left)
		c.compileExpr(left.Member)
		if compound {
			b.Emit(bytecode.OpDup2)
			b.Emit(bytecode.OpGetElem)
			c.compileExpr(e.Right)
			b.Emit(c.binaryOp(e, e.Operator))
		} else {
			c.compileExpr(e.Right)
		}
		c.mark(left)
		b.Emit(bytecode.OpSetElem)
	default:
		c.errorAt(e, "invalid left-hand side in assignment")
		b.Emit(bytecode.OpUndefined)
	}
}

func (c *Compiler) compileUnary(e *ast.UnaryExpression) {
	b := c.fn.b
	switch e.Operator {
	case token.INCREMENT, token.DECREMENT:
		c.compileUpdate(e)
	case token.TYPEOF:
		if id, ok := e.Operand.(*ast.Identifier); ok {
			if ref := c.resolve(id.Name); ref.kind == refGlobal {
				b.EmitUint16(bytecode.OpTypeofGlobal, ref.index)
				return
			}
		}
		c.compileExpr(e.Operand)
		b.Emit(bytecode.OpTypeof)
	case token.DELETE:
		c.compileDelete(e)
	case token.VOID:
		c.compileExpr(e.Operand)
		b.Emit(bytecode.OpPop)
		b.Emit(bytecode.OpUndefined)
	case token.MINUS:
		if lit, ok := e.Operand.(*ast.NumberLiteral); ok {
			if v, ok := lit.Value.(int64); ok && v != 0 {
				c.emitNumber(-float64(v))
				return
			}
		}
		c.compileExpr(e.Operand)
		b.Emit(bytecode.OpNeg)
	case token.PLUS:
		c.compileExpr(e.Operand)
		b.Emit(bytecode.OpToNumber)
	case token.NOT:
		c.compileExpr(e.Operand)
		b.Emit(bytecode.OpNot)
	case token.BITWISE_NOT:
		c.compileExpr(e.Operand)
		b.Emit(bytecode.OpBitNot)
	default:
		c.errorAt(e, "unsupported unary operator %s", e.Operator)
		b.Emit(bytecode.OpUndefined)
	}
}

// compileUpdate compiles ++ and --. The postfix forms leave the old value
// converted to a number.
func (c *Compiler) compileUpdate(e *ast.UnaryExpression) {
	b := c.fn.b
	step := bytecode.OpInc
	if e.Operator == token.DECREMENT {
		step = bytecode.OpDec
	}
	switch target := e.Operand.(type) {
	case *ast.Identifier:
		c.emitLoad(target.Name)
		if e.Postfix {
			b.Emit(bytecode.OpToNumber)
			b.Emit(bytecode.OpDup)
			b.Emit(step)
			c.emitStore(target.Name)
			b.Emit(bytecode.OpPop)
			return
		}
		b.Emit(step)
		c.emitStore(target.Name)
	case *ast.DotExpression:
		c.compileExpr(target.Left)
		b.Emit(bytecode.OpDup)
		c.emitGetProp(target.Identifier.Name)
		if e.Postfix {
			// obj n -> n obj n+1
			b.Emit(bytecode.OpToNumber)
			b.Emit(bytecode.OpDup)
			b.Emit(bytecode.OpRot3)
			b.Emit(step)
			c.emitSetProp(target.Identifier.Name)
			b.Emit(bytecode.OpPop)
			return
		}
		b.Emit(step)
		c.emitSetProp(target.Identifier.Name)
	case *ast.BracketExpression:
		c.compileExpr(target.Left)
		c.compileExpr(target.Member)
		b.Emit(bytecode.OpDup2)
		b.Emit(bytecode.OpGetElem)
		if e.Postfix {
			// obj key n -> n obj key n+1
			b.Emit(bytecode.OpToNumber)
			b.Emit(bytecode.OpDup)
			b.Emit(bytecode.OpRot4)
			b.Emit(step)
			b.Emit(bytecode.OpSetElem)
			b.Emit(bytecode.OpPop)
			return
		}
		b.Emit(step)
		b.Emit(bytecode.OpSetElem)
	default:
		c.errorAt(e, "invalid left-hand side in update expression")
		b.Emit(bytecode.OpUndefined)
	}
}

func (c *Compiler) compileDelete(e *ast.UnaryExpression) {
	b := c.fn.b
	switch target := e.Operand.(type) {
	case *ast.Identifier:
		ref := c.resolve(target.Name)
		if ref.kind == refGlobal {
			b.EmitUint16(bytecode.OpDeleteGlobal, ref.index)
			return
		}
		// Declared bindings are not deletable.
		b.Emit(bytecode.OpFalse)
	case *ast.DotExpression:
		c.compileExpr(target.Left)
		b.EmitUint16(bytecode.OpDeleteProp, c.constString(target.Identifier.Name))
	case *ast.BracketExpression:
		c.compileExpr(target.Left)
		c.compileExpr(target.Member)
		b.Emit(bytecode.OpDeleteElem)
	default:
		c.compileExpr(e.Operand)
		b.Emit(bytecode.OpPop)
		b.Emit(bytecode.OpTrue)
	}
}

// compileCall lays out callee, this and the arguments. Method calls
// evaluate the receiver once and pass it as this.
func (c *Compiler) compileCall(e *ast.CallExpression) {
	b := c.fn.b
	switch callee := e.Callee.(type) {
	case *ast.DotExpression:
		c.compileExpr(callee.Left)
		b.Emit(bytecode.OpDup)
		c.mark(callee)
		c.emitGetProp(callee.Identifier.Name)
		b.Emit(bytecode.OpSwap)
	case *ast.BracketExpression:
		c.compileExpr(callee.Left)
		b.Emit(bytecode.OpDup)
		c.compileExpr(callee.Member)
		c.mark(callee)
		b.Emit(bytecode.OpGetElem)
		b.Emit(bytecode.OpSwap)
	default:
		c.compileExpr(e.Callee)
		b.Emit(bytecode.OpUndefined)
	}
	for _, a := range e.ArgumentList {
		c.compileExpr(a)
	}
	c.mark(e)
	b.EmitByte(bytecode.OpCall, byte(len(e.ArgumentList)))
}
