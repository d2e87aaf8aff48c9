package fieldpath

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// segmentRegex parses a single dotted segment, e.g. `name` or `name[1][0]`.
var segmentRegex = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_-]*)((?:\[\d+\])*)$`)

var indexRegex = regexp.MustCompile(`\[(\d+)\]`)

// Accessor is one step of a path: either an attribute/map key or a list index.
type Accessor struct {
	Name  string
	Index int
	index bool
}

// Key returns an attribute accessor.
func Key(name string) Accessor {
	return Accessor{Name: name, Index: -1}
}

// Index returns a list/tuple index accessor.
func Index(i int) Accessor {
	return Accessor{Index: i, index: true}
}

// IsIndex reports whether the accessor selects a list element.
func (a Accessor) IsIndex() bool {
	return a.index
}

func (a Accessor) String() string {
	if a.index {
		return "[" + strconv.Itoa(a.Index) + "]"
	}
	return a.Name
}

// Path is an ordered sequence of accessors. The first accessor is always a key.
type Path []Accessor

// Parse converts the dotted representation into a Path.
func Parse(raw string) (Path, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &SyntaxError{Input: raw, Reason: "path cannot be empty"}
	}

	var p Path
	for _, segment := range strings.Split(raw, ".") {
		if segment == "" {
			return nil, &SyntaxError{Input: raw, Reason: "path contains an empty segment"}
		}
		matches := segmentRegex.FindStringSubmatch(segment)
		if matches == nil {
			return nil, &SyntaxError{Input: raw, Reason: fmt.Sprintf("invalid segment %q", segment)}
		}
		p = append(p, Key(matches[1]))
		for _, idx := range indexRegex.FindAllStringSubmatch(matches[2], -1) {
			i, err := strconv.Atoi(idx[1])
			if err != nil {
				return nil, &SyntaxError{Input: raw, Reason: fmt.Sprintf("index out of range in %q", segment)}
			}
			p = append(p, Index(i))
		}
	}
	return p, nil
}

// MustParse is like Parse but panics on error. Intended for literals in code and tests.
func MustParse(raw string) Path {
	p, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// Root returns the name of the first accessor.
func (p Path) Root() string {
	if len(p) == 0 {
		return ""
	}
	return p[0].Name
}

// IsFlat reports whether the path is a single attribute name.
func (p Path) IsFlat() bool {
	return len(p) == 1
}

func (p Path) String() string {
	var b strings.Builder
	for i, a := range p {
		if i > 0 && !a.index {
			b.WriteByte('.')
		}
		b.WriteString(a.String())
	}
	return b.String()
}

// Resolve walks v along the path. A missing attribute, key, or index yields
// a *FieldNotFoundError naming the accessor that failed.
func (p Path) Resolve(v cty.Value) (cty.Value, error) {
	cur := v
	for i, a := range p {
		if cur.IsNull() || !cur.IsKnown() {
			return cty.NilVal, p.notFound(i, "value is null or unknown")
		}
		ty := cur.Type()
		if a.index {
			if !ty.IsListType() && !ty.IsTupleType() {
				return cty.NilVal, p.notFound(i, fmt.Sprintf("cannot index %s", ty.FriendlyName()))
			}
			if a.Index >= cur.LengthInt() {
				return cty.NilVal, p.notFound(i, fmt.Sprintf("index %d out of range (length %d)", a.Index, cur.LengthInt()))
			}
			cur = cur.Index(cty.NumberIntVal(int64(a.Index)))
			continue
		}
		switch {
		case ty.IsObjectType():
			if !ty.HasAttribute(a.Name) {
				return cty.NilVal, p.notFound(i, fmt.Sprintf("no attribute %q", a.Name))
			}
			cur = cur.GetAttr(a.Name)
		case ty.IsMapType():
			k := cty.StringVal(a.Name)
			if !cur.HasIndex(k).True() {
				return cty.NilVal, p.notFound(i, fmt.Sprintf("no key %q", a.Name))
			}
			cur = cur.Index(k)
		default:
			return cty.NilVal, p.notFound(i, fmt.Sprintf("cannot read %q from %s", a.Name, ty.FriendlyName()))
		}
	}
	return cur, nil
}

// CheckType validates the path against a declared type. Dynamic types
// (cty.DynamicPseudoType) anywhere along the path defer the check to run time.
func (p Path) CheckType(ty cty.Type) error {
	cur := ty
	for i, a := range p {
		if cur.Equals(cty.DynamicPseudoType) {
			return nil
		}
		if a.index {
			switch {
			case cur.IsListType():
				cur = cur.ElementType()
			case cur.IsTupleType():
				elems := cur.TupleElementTypes()
				if a.Index >= len(elems) {
					return p.notFound(i, fmt.Sprintf("index %d out of range for %s", a.Index, cur.FriendlyName()))
				}
				cur = elems[a.Index]
			default:
				return p.notFound(i, fmt.Sprintf("cannot index %s", cur.FriendlyName()))
			}
			continue
		}
		switch {
		case cur.IsObjectType():
			if !cur.HasAttribute(a.Name) {
				return p.notFound(i, fmt.Sprintf("no attribute %q", a.Name))
			}
			cur = cur.AttributeType(a.Name)
		case cur.IsMapType():
			cur = cur.ElementType()
		default:
			return p.notFound(i, fmt.Sprintf("cannot read %q from %s", a.Name, cur.FriendlyName()))
		}
	}
	return nil
}

func (p Path) notFound(at int, reason string) *FieldNotFoundError {
	return &FieldNotFoundError{
		Path:      p.String(),
		Accessor:  p[at].String(),
		Reason:    reason,
		Iteration: -1,
	}
}
