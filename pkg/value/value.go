// Package value implements Orchid's runtime value model: a tagged union of
// String, Number, Boolean, Null, List, Dict, Callable, Event, and Asset.
//
// Values are cheap to pass around: List and Dict share their backing storage
// until a mutation is observed, at which point Clone performs a deep copy.
// Callable holds a handle into an environment arena rather than an owning
// pointer, so closures never keep a whole scope chain alive by themselves.
package value

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind tags a Value's underlying representation.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBoolean
	KindList
	KindDict
	KindCallable
	KindEvent
	KindAsset
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindList:
		return "list"
	case KindDict:
		return "dict"
	case KindCallable:
		return "callable"
	case KindEvent:
		return "event"
	case KindAsset:
		return "asset"
	default:
		return "unknown"
	}
}

// Unit is the optional duration suffix attached to a Number literal.
type Unit string

const (
	UnitNone   Unit = ""
	UnitSecond Unit = "s"
	UnitMinute Unit = "m"
	UnitHour   Unit = "h"
)

// MediaType enumerates the flavors of Asset.
type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaAudio    MediaType = "audio"
	MediaVideo    MediaType = "video"
	MediaDocument MediaType = "document"
)

// Asset is a reference to external media: an image/audio/video/document
// payload described by mime type plus a path, URL, or inline bytes.
type Asset struct {
	MediaType   MediaType
	Mime        string
	Path        string
	URL         string
	Inline      []byte
	Description string
}

// Callable is the runtime representation of a macro or agent: parameters,
// an AST body, and a reference to the defining environment. Body is typed
// as `any` here to avoid an import cycle with pkg/ast; pkg/interp type
// -asserts it back to *ast.Block when executing.
type Callable struct {
	Name    string
	Params  []Param
	Body    any
	Closure EnvHandle
	IsAgent bool
}

// Param is a single callable parameter, with an optional default expression
// (typed `any` for the same reason as Callable.Body).
type Param struct {
	Name    string
	Default any
}

// EnvHandle is an opaque handle into the environment arena (pkg/env). It
// lets a Callable reference its closure without the value package importing
// pkg/env, and without env nodes holding an owning pointer back into values.
type EnvHandle int

// Value is the tagged union. Exactly one of the typed fields is meaningful,
// selected by Kind.
type Value struct {
	Kind Kind

	str  string
	num  float64
	unit Unit
	b    bool

	list []Value
	dict *orderedDict

	callable *Callable
	event    *Event
	asset    *Asset
}

// Event is a named occurrence with a payload, used by emit/on/listen/Stream.
type Event struct {
	Name    string
	Payload Value
}

// orderedDict preserves insertion order for Dict, matching the spec's
// "insertion-ordered mapping" requirement.
type orderedDict struct {
	keys   []string
	values map[string]Value
}

func newOrderedDict() *orderedDict {
	return &orderedDict{values: make(map[string]Value)}
}

func (d *orderedDict) clone() *orderedDict {
	nd := &orderedDict{
		keys:   append([]string(nil), d.keys...),
		values: make(map[string]Value, len(d.values)),
	}
	for k, v := range d.values {
		nd.values[k] = v.Clone()
	}
	return nd
}

func (d *orderedDict) set(k string, v Value) {
	if _, ok := d.values[k]; !ok {
		d.keys = append(d.keys, k)
	}
	d.values[k] = v
}

func (d *orderedDict) get(k string) (Value, bool) {
	v, ok := d.values[k]
	return v, ok
}

func (d *orderedDict) delete(k string) {
	if _, ok := d.values[k]; !ok {
		return
	}
	delete(d.values, k)
	for i, kk := range d.keys {
		if kk == k {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// --- constructors ---

// Null is the canonical null value.
var Null = Value{Kind: KindNull}

func String(s string) Value { return Value{Kind: KindString, str: s} }

func Number(n float64) Value { return Value{Kind: KindNumber, num: n} }

// NumberWithUnit attaches a duration suffix (s/m/h) to a numeric value.
func NumberWithUnit(n float64, u Unit) Value { return Value{Kind: KindNumber, num: n, unit: u} }

func Boolean(b bool) Value { return Value{Kind: KindBoolean, b: b} }

func List(items []Value) Value { return Value{Kind: KindList, list: items} }

func EmptyDict() Value { return Value{Kind: KindDict, dict: newOrderedDict()} }

// DictFrom builds a Dict preserving the given key order.
func DictFrom(keys []string, values map[string]Value) Value {
	d := newOrderedDict()
	for _, k := range keys {
		d.set(k, values[k])
	}
	return Value{Kind: KindDict, dict: d}
}

func CallableValue(c *Callable) Value { return Value{Kind: KindCallable, callable: c} }

func EventValue(e *Event) Value { return Value{Kind: KindEvent, event: e} }

func AssetValue(a *Asset) Value { return Value{Kind: KindAsset, asset: a} }

// --- accessors ---

func (v Value) IsNull() bool { return v.Kind == KindNull }

func (v Value) Str() string { return v.str }

func (v Value) Num() float64 { return v.num }

func (v Value) Unit() Unit { return v.unit }

func (v Value) Bool() bool { return v.b }

// ListItems returns the backing slice; callers must not mutate it in place
// without first calling Clone, since it may be shared.
func (v Value) ListItems() []Value { return v.list }

func (v Value) Callable() *Callable { return v.callable }

func (v Value) Event() *Event { return v.event }

func (v Value) Asset() *Asset { return v.asset }

// DictKeys returns keys in insertion order.
func (v Value) DictKeys() []string {
	if v.dict == nil {
		return nil
	}
	return v.dict.keys
}

func (v Value) DictGet(key string) (Value, bool) {
	if v.dict == nil {
		return Null, false
	}
	return v.dict.get(key)
}

// DictSet returns a new Dict value with key set, leaving the receiver's
// backing store untouched (copy-on-write at the field level).
func (v Value) DictSet(key string, val Value) Value {
	d := newOrderedDict()
	if v.dict != nil {
		d.keys = append(d.keys, v.dict.keys...)
		for k, vv := range v.dict.values {
			d.values[k] = vv
		}
	}
	d.set(key, val)
	return Value{Kind: KindDict, dict: d}
}

func (v Value) DictLen() int {
	if v.dict == nil {
		return 0
	}
	return len(v.dict.keys)
}

// --- cloning ---

// Clone performs a deep copy of owned sub-values. Callable closures are
// shared references by design (they point at a live environment), so
// cloning a Callable value does not clone its closure.
func (v Value) Clone() Value {
	switch v.Kind {
	case KindList:
		items := make([]Value, len(v.list))
		for i, it := range v.list {
			items[i] = it.Clone()
		}
		return Value{Kind: KindList, list: items}
	case KindDict:
		if v.dict == nil {
			return Value{Kind: KindDict, dict: newOrderedDict()}
		}
		return Value{Kind: KindDict, dict: v.dict.clone()}
	case KindEvent:
		if v.event == nil {
			return v
		}
		ev := &Event{Name: v.event.Name, Payload: v.event.Payload.Clone()}
		return Value{Kind: KindEvent, event: ev}
	case KindAsset:
		return v
	default:
		return v
	}
}

// --- truthiness, equality, stringification ---

// Truthy follows the language's truthiness rules: null and false are falsy,
// empty string/list/dict are falsy, zero is falsy, everything else is truthy.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNull:
		return false
	case KindBoolean:
		return v.b
	case KindString:
		return v.str != ""
	case KindNumber:
		return v.num != 0
	case KindList:
		return len(v.list) > 0
	case KindDict:
		return v.DictLen() > 0
	default:
		return true
	}
}

// Equal implements the structural equality used by == and !=.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		// Numbers and numeric-looking values never compare equal across kinds.
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindString:
		return a.str == b.str
	case KindNumber:
		return a.num == b.num
	case KindBoolean:
		return a.b == b.b
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if a.DictLen() != b.DictLen() {
			return false
		}
		for _, k := range a.DictKeys() {
			av, _ := a.DictGet(k)
			bv, ok := b.DictGet(k)
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindEvent:
		return a.event.Name == b.event.Name && Equal(a.event.Payload, b.event.Payload)
	case KindAsset:
		return a.asset == b.asset
	case KindCallable:
		return a.callable == b.callable
	default:
		return false
	}
}

// String renders a Value the way interpolation and string-coercion do.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindString:
		return v.str
	case KindNumber:
		return formatNumber(v.num) + string(v.unit)
	case KindBoolean:
		if v.b {
			return "true"
		}
		return "false"
	case KindList:
		parts := make([]string, len(v.list))
		for i, it := range v.list {
			parts[i] = it.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindDict:
		keys := v.DictKeys()
		parts := make([]string, len(keys))
		for i, k := range keys {
			vv, _ := v.DictGet(k)
			parts[i] = fmt.Sprintf("%s: %s", k, vv.String())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindCallable:
		if v.callable != nil {
			return fmt.Sprintf("<callable %s>", v.callable.Name)
		}
		return "<callable>"
	case KindEvent:
		return fmt.Sprintf("<event %s>", v.event.Name)
	case KindAsset:
		return fmt.Sprintf("<asset %s>", v.asset.Mime)
	default:
		return ""
	}
}

func formatNumber(n float64) string {
	if math.IsInf(n, 1) {
		return "Infinity"
	}
	if math.IsInf(n, -1) {
		return "-Infinity"
	}
	if math.IsNaN(n) {
		return "NaN"
	}
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// Len implements the `len` built-in: list/string/dict length, else 0.
func Len(v Value) int {
	switch v.Kind {
	case KindList:
		return len(v.list)
	case KindString:
		return len([]rune(v.str))
	case KindDict:
		return v.DictLen()
	default:
		return 0
	}
}

// Merge implements the `+` merge operator (§4.4): number+number adds
// arithmetically, string+string concatenates with a blank-line separator,
// list+list concatenates, dict+dict merges right-biased; any other
// combination coerces both sides to string and concatenates.
func Merge(a, b Value) Value {
	switch {
	case a.Kind == KindNumber && b.Kind == KindNumber:
		return Number(a.num + b.num)
	case a.Kind == KindString && b.Kind == KindString:
		return String(joinBlank(a.str, b.str))
	case a.Kind == KindList && b.Kind == KindList:
		out := make([]Value, 0, len(a.list)+len(b.list))
		out = append(out, a.list...)
		out = append(out, b.list...)
		return List(out)
	case a.Kind == KindDict && b.Kind == KindDict:
		out := a
		for _, k := range b.DictKeys() {
			bv, _ := b.DictGet(k)
			out = out.DictSet(k, bv)
		}
		return out
	default:
		return String(joinBlank(a.String(), b.String()))
	}
}

func joinBlank(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + "\n\n" + b
}

// In implements the `in` operator: list membership, substring test, or dict
// key membership; anything else is false.
func In(needle, haystack Value) bool {
	switch haystack.Kind {
	case KindList:
		for _, it := range haystack.list {
			if Equal(needle, it) {
				return true
			}
		}
		return false
	case KindString:
		return strings.Contains(haystack.str, needle.String())
	case KindDict:
		_, ok := haystack.DictGet(needle.String())
		return ok
	default:
		return false
	}
}

// CanonicalKey produces a deterministic string key for the `cached`/`pure`
// tag's memoization, combining an operation name with a normalized input
// and sorted keyword arguments.
func CanonicalKey(name string, input Value, kwargs map[string]Value) string {
	keys := make([]string, 0, len(kwargs))
	for k := range kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('|')
	b.WriteString(input.String())
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(kwargs[k].String())
	}
	return b.String()
}
