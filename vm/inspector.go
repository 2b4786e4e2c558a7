package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// One-line rendering (never calls into script)
// ---------------------------------------------------------------------------

// MaxElementPreview is the maximum number of array elements or object
// properties rendered before eliding the rest.
const MaxElementPreview = 20

// DefaultMaxDepth is the default recursion depth for inspection.
const DefaultMaxDepth = 3

// Inspect renders v for diagnostics. It reads data properties directly and
// never runs script code, so it is safe on any value at any time.
func (r *Realm) Inspect(v Value) string {
	var sb strings.Builder
	r.inspectTo(&sb, v, DefaultMaxDepth, nil)
	return sb.String()
}

// ToDisplayString renders v the way print does: strings verbatim, other
// values as Inspect shows them.
func (r *Realm) ToDisplayString(v Value) string {
	if s, ok := r.GoString(v); ok {
		return s
	}
	return r.Inspect(v)
}

func (r *Realm) inspectTo(sb *strings.Builder, v Value, depth int, path []CellRef) {
	if !v.IsCell() {
		sb.WriteString(v.String())
		return
	}
	if !r.heap.Alive(v.Ref()) {
		sb.WriteString("<dead " + v.Ref().String() + ">")
		return
	}
	if r.heap.isString(v) {
		sb.WriteString(strconv.Quote(r.stringOf(v).s))
		return
	}
	if r.heap.KindOf(v.Ref()) != CellObject {
		sb.WriteString("<" + r.heap.KindOf(v.Ref()).String() + ">")
		return
	}

	ref := v.Ref()
	for _, p := range path {
		if p == ref {
			sb.WriteString("[Circular]")
			return
		}
	}
	o := r.heap.object(ref)
	switch o.class {
	case ClassFunction:
		sb.WriteString("[Function: " + r.functionName(o.fn) + "]")
		return
	case ClassError:
		sb.WriteString(r.errorHeader(ref))
		return
	case ClassPrimitive:
		sb.WriteString("[" + r.typeName(o.primitive) + ": ")
		r.inspectTo(sb, o.primitive, depth, path)
		sb.WriteString("]")
		return
	case ClassWeakRef:
		sb.WriteString("WeakRef {}")
		return
	}

	if depth <= 0 {
		if o.class == ClassArray {
			sb.WriteString("[Array]")
		} else {
			sb.WriteString("[Object]")
		}
		return
	}
	path = append(path, ref)

	if o.class == ClassArray {
		sb.WriteString("[")
		for i, e := range o.elements {
			if i > 0 {
				sb.WriteString(", ")
			}
			if i == MaxElementPreview {
				fmt.Fprintf(sb, "... %d more items", len(o.elements)-i)
				break
			}
			if e == hole {
				sb.WriteString("<empty>")
				continue
			}
			r.inspectTo(sb, e, depth-1, path)
		}
		sb.WriteString("]")
		return
	}

	keys := r.OwnKeys(ref, true)
	switch o.class {
	case ClassHost:
		sb.WriteString("[Host] ")
	case ClassArguments:
		sb.WriteString("[Arguments] ")
	}
	if len(keys) == 0 {
		sb.WriteString("{}")
		return
	}
	sb.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(",")
		}
		if i == MaxElementPreview {
			fmt.Fprintf(sb, " ... %d more", len(keys)-i)
			break
		}
		sb.WriteString(" ")
		sb.WriteString(inspectKey(k))
		sb.WriteString(": ")
		pv, _ := r.getOwn(ref, k)
		r.inspectTo(sb, pv, depth-1, path)
	}
	sb.WriteString(" }")
}

func (r *Realm) typeName(v Value) string {
	switch {
	case v.IsNumber():
		return "Number"
	case v.IsBool():
		return "Boolean"
	}
	return "String"
}

// inspectKey quotes keys that are not identifier-like.
func inspectKey(k string) string {
	if k == "" {
		return `""`
	}
	for i, c := range k {
		ok := c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (i > 0 && c >= '0' && c <= '9')
		if !ok {
			if _, isIdx := arrayIndex(k); isIdx {
				return k
			}
			return strconv.Quote(k)
		}
	}
	return k
}

// ---------------------------------------------------------------------------
// Structured inspection for debugging tools
// ---------------------------------------------------------------------------

// Inspector provides debugging inspection of realm values. It can
// recursively inspect objects and their properties, giving a structured
// view of any value including shapes and prototype links.
type Inspector struct {
	realm *Realm
}

// InspectionResult contains structured information about an inspected value.
type InspectionResult struct {
	Type       string              // undefined, null, boolean, number, string, object
	Value      string              // One-line rendering
	ClassName  string              // For objects: the constructor or class name
	Class      ObjectClass         // For objects: the exotic class
	ShapeID    uint32              // For objects: the current shape
	Dictionary bool                // For objects: whether the shape is in dictionary mode
	Proto      string              // For objects: the prototype's rendering, or null
	Properties []PropertyView      // For objects: own named properties
	Size       int                 // For arrays: the length
	Elements   []*InspectionResult // For arrays: preview of elements (limited)
}

// PropertyView describes one own property.
type PropertyView struct {
	Name  string
	Attrs PropertyAttrs
	Value *InspectionResult
}

// NewInspector creates an Inspector attached to the given realm.
func NewInspector(r *Realm) *Inspector {
	return &Inspector{realm: r}
}

// Inspect inspects a value with the default maximum depth.
func (i *Inspector) Inspect(v Value) *InspectionResult {
	return i.InspectDepth(v, DefaultMaxDepth)
}

// InspectDepth inspects a value with a specified maximum recursion depth.
// When depth reaches 0, nested objects are shown as summaries only.
func (i *Inspector) InspectDepth(v Value, depth int) *InspectionResult {
	r := i.realm
	result := &InspectionResult{Value: r.Inspect(v)}
	if !v.IsCell() || !r.heap.Alive(v.Ref()) || r.heap.isString(v) {
		result.Type = r.typeOf(v)
		if v == Null {
			result.Type = "null"
		}
		return result
	}
	if r.heap.KindOf(v.Ref()) != CellObject {
		result.Type = r.heap.KindOf(v.Ref()).String()
		return result
	}

	ref := v.Ref()
	o := r.heap.object(ref)
	result.Type = "object"
	result.Class = o.class
	result.ClassName = r.className(ref)
	result.ShapeID = o.shape.ID()
	result.Dictionary = o.shape.Dictionary()
	result.Proto = "null"
	if p := r.GetPrototype(ref); p != noCell {
		result.Proto = "#<" + r.className(p) + ">"
	}
	if depth <= 0 {
		return result
	}

	for _, k := range o.shape.Keys() {
		info, _ := o.shape.Lookup(k)
		result.Properties = append(result.Properties, PropertyView{
			Name:  k,
			Attrs: info.Attrs,
			Value: i.InspectDepth(o.slots[info.Slot], depth-1),
		})
	}

	if o.class == ClassArray {
		result.Size = len(o.elements)
		for idx := 0; idx < len(o.elements) && idx < MaxElementPreview; idx++ {
			e := o.elements[idx]
			if e == hole {
				e = Undefined
			}
			result.Elements = append(result.Elements, i.InspectDepth(e, depth-1))
		}
	}
	return result
}

// String returns a pretty-printed representation of the inspection result.
func (r *InspectionResult) String() string {
	return r.stringWithIndent(0)
}

// stringWithIndent creates a string representation with the given indentation level.
func (r *InspectionResult) stringWithIndent(indent int) string {
	var sb strings.Builder
	prefix := strings.Repeat("  ", indent)

	sb.WriteString(prefix)
	sb.WriteString(r.Type)
	sb.WriteString(": ")
	sb.WriteString(r.Value)
	sb.WriteString("\n")

	if r.Type != "object" {
		return sb.String()
	}
	fmt.Fprintf(&sb, "%s  class: %s (%s)\n", prefix, r.ClassName, r.Class)
	fmt.Fprintf(&sb, "%s  shape: %d", prefix, r.ShapeID)
	if r.Dictionary {
		sb.WriteString(" (dictionary)")
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "%s  prototype: %s\n", prefix, r.Proto)

	if len(r.Properties) > 0 {
		sb.WriteString(prefix)
		sb.WriteString("  properties:\n")
		for _, p := range r.Properties {
			fmt.Fprintf(&sb, "%s    %s [%s]: ", prefix, p.Name, p.Attrs)
			if p.Value != nil {
				sb.WriteString(p.Value.Value)
			}
			sb.WriteString("\n")
		}
	}

	if len(r.Elements) > 0 {
		fmt.Fprintf(&sb, "%s  elements (showing %d of %d):\n", prefix, len(r.Elements), r.Size)
		for idx, elem := range r.Elements {
			fmt.Fprintf(&sb, "%s    [%d]: %s\n", prefix, idx, elem.Value)
		}
	}
	return sb.String()
}

// PrettyPrint returns a detailed multi-line representation with full nesting.
func (r *InspectionResult) PrettyPrint() string {
	return r.prettyPrintWithIndent(0)
}

func (r *InspectionResult) prettyPrintWithIndent(indent int) string {
	var sb strings.Builder
	prefix := strings.Repeat("  ", indent)
	sb.WriteString(r.stringWithIndent(indent))
	for _, p := range r.Properties {
		if p.Value != nil && p.Value.Type == "object" && len(p.Value.Properties)+len(p.Value.Elements) > 0 {
			fmt.Fprintf(&sb, "%s  %s:\n", prefix, p.Name)
			sb.WriteString(p.Value.prettyPrintWithIndent(indent + 2))
		}
	}
	for idx, elem := range r.Elements {
		if elem.Type == "object" && len(elem.Properties)+len(elem.Elements) > 0 {
			fmt.Fprintf(&sb, "%s  [%d]:\n", prefix, idx)
			sb.WriteString(elem.prettyPrintWithIndent(indent + 2))
		}
	}
	return sb.String()
}
