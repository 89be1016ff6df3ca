package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MetaKind identifies which variant a MetaValue holds
type MetaKind uint8

const (
	MetaKindNull MetaKind = iota
	MetaKindBool
	MetaKindNumber
	MetaKindString
	MetaKindArray
	MetaKindObject
)

func (k MetaKind) String() string {
	switch k {
	case MetaKindNull:
		return "null"
	case MetaKindBool:
		return "bool"
	case MetaKindNumber:
		return "number"
	case MetaKindString:
		return "string"
	case MetaKindArray:
		return "array"
	case MetaKindObject:
		return "object"
	}
	return "unknown"
}

// MetaValue is one JSON-shaped value inside a Meta container.
// Numbers keep their literal text so large integers survive a round trip.
type MetaValue struct {
	kind MetaKind
	b    bool
	num  json.Number
	str  string
	arr  []MetaValue
	obj  Meta
}

// Meta is the schema-less extension data attached to a knowledge text
type Meta map[string]MetaValue

func MetaNull() MetaValue { return MetaValue{kind: MetaKindNull} }

func MetaBool(b bool) MetaValue { return MetaValue{kind: MetaKindBool, b: b} }

func MetaString(s string) MetaValue { return MetaValue{kind: MetaKindString, str: s} }

func MetaInt(i int64) MetaValue {
	return MetaValue{kind: MetaKindNumber, num: json.Number(strconv.FormatInt(i, 10))}
}

// MetaFloat panics on NaN or infinity, which JSON cannot represent.
func MetaFloat(f float64) MetaValue {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		panic("domain: MetaFloat of non-finite value")
	}
	return MetaValue{kind: MetaKindNumber, num: json.Number(strconv.FormatFloat(f, 'g', -1, 64))}
}

// MetaNumber wraps a JSON number literal; the literal is validated.
func MetaNumber(n json.Number) (MetaValue, error) {
	if _, err := strconv.ParseFloat(string(n), 64); err != nil {
		return MetaValue{}, NewDomainErrorWithCause(ErrCodeValidation, "invalid meta number", err)
	}
	return MetaValue{kind: MetaKindNumber, num: n}, nil
}

func MetaArray(items ...MetaValue) MetaValue {
	if items == nil {
		items = []MetaValue{}
	}
	return MetaValue{kind: MetaKindArray, arr: items}
}

func MetaObject(m Meta) MetaValue {
	if m == nil {
		m = Meta{}
	}
	return MetaValue{kind: MetaKindObject, obj: m}
}

func (v MetaValue) Kind() MetaKind { return v.kind }

func (v MetaValue) IsNull() bool { return v.kind == MetaKindNull }

func (v MetaValue) AsBool() (bool, bool) { return v.b, v.kind == MetaKindBool }

func (v MetaValue) AsString() (string, bool) { return v.str, v.kind == MetaKindString }

func (v MetaValue) AsNumber() (json.Number, bool) { return v.num, v.kind == MetaKindNumber }

func (v MetaValue) AsInt64() (int64, bool) {
	if v.kind != MetaKindNumber {
		return 0, false
	}
	i, err := v.num.Int64()
	return i, err == nil
}

func (v MetaValue) AsFloat64() (float64, bool) {
	if v.kind != MetaKindNumber {
		return 0, false
	}
	f, err := v.num.Float64()
	return f, err == nil
}

func (v MetaValue) AsArray() ([]MetaValue, bool) { return v.arr, v.kind == MetaKindArray }

func (v MetaValue) AsObject() (Meta, bool) { return v.obj, v.kind == MetaKindObject }

// Equal reports deep equality. Numbers compare by value, so 1 and 1.0 are equal.
func (v MetaValue) Equal(other MetaValue) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case MetaKindNull:
		return true
	case MetaKindBool:
		return v.b == other.b
	case MetaKindString:
		return v.str == other.str
	case MetaKindNumber:
		return numbersEqual(v.num, other.num)
	case MetaKindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case MetaKindObject:
		return v.obj.Equal(other.obj)
	}
	return false
}

// decimal is a number literal reduced to sign, significant digits and a
// base-10 exponent, so equal values share one representation.
type decimal struct {
	neg    bool
	digits string
	exp    int
}

func parseDecimal(n json.Number) (decimal, bool) {
	s := string(n)
	var d decimal
	if strings.HasPrefix(s, "-") {
		d.neg = true
		s = s[1:]
	}
	mant, expPart, hasExp := strings.Cut(strings.ToLower(s), "e")
	if hasExp {
		e, err := strconv.Atoi(expPart)
		if err != nil {
			return decimal{}, false
		}
		d.exp = e
	}
	intPart, frac, _ := strings.Cut(mant, ".")
	digits := intPart + frac
	if digits == "" || strings.Trim(digits, "0123456789") != "" {
		return decimal{}, false
	}
	d.exp -= len(frac)

	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return decimal{}, true
	}
	trimmed := strings.TrimRight(digits, "0")
	d.exp += len(digits) - len(trimmed)
	d.digits = trimmed
	return d, true
}

// numbersEqual compares two literals exactly, so 1 equals 1.0 and 1e2 equals
// 100, while integers beyond float64 precision stay distinct.
func numbersEqual(a, b json.Number) bool {
	if a == b {
		return true
	}
	da, okA := parseDecimal(a)
	db, okB := parseDecimal(b)
	if !okA || !okB {
		return false
	}
	return da == db
}

// Clone returns a deep copy
func (v MetaValue) Clone() MetaValue {
	switch v.kind {
	case MetaKindArray:
		arr := make([]MetaValue, len(v.arr))
		for i := range v.arr {
			arr[i] = v.arr[i].Clone()
		}
		return MetaValue{kind: MetaKindArray, arr: arr}
	case MetaKindObject:
		return MetaValue{kind: MetaKindObject, obj: v.obj.Clone()}
	}
	return v
}

// Interface converts the value to plain Go values (nil, bool, json.Number,
// string, []any, map[string]any).
func (v MetaValue) Interface() any {
	switch v.kind {
	case MetaKindBool:
		return v.b
	case MetaKindNumber:
		return v.num
	case MetaKindString:
		return v.str
	case MetaKindArray:
		out := make([]any, len(v.arr))
		for i := range v.arr {
			out[i] = v.arr[i].Interface()
		}
		return out
	case MetaKindObject:
		return v.obj.Map()
	}
	return nil
}

func (v MetaValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case MetaKindNull:
		return jsonNull, nil
	case MetaKindBool:
		return json.Marshal(v.b)
	case MetaKindNumber:
		return []byte(v.num), nil
	case MetaKindString:
		return json.Marshal(v.str)
	case MetaKindArray:
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)
	case MetaKindObject:
		return v.obj.MarshalJSON()
	}
	return nil, fmt.Errorf("unknown meta kind %d", v.kind)
}

func (v *MetaValue) UnmarshalJSON(data []byte) error {
	raw, err := decodeJSONWithNumbers(data)
	if err != nil {
		return err
	}
	parsed, err := MetaValueFrom(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MetaValueFrom converts decoded JSON (or equivalent Go values) into a MetaValue.
func MetaValueFrom(raw any) (MetaValue, error) {
	switch t := raw.(type) {
	case nil:
		return MetaNull(), nil
	case bool:
		return MetaBool(t), nil
	case string:
		return MetaString(t), nil
	case json.Number:
		return MetaNumber(t)
	case int:
		return MetaInt(int64(t)), nil
	case int32:
		return MetaInt(int64(t)), nil
	case int64:
		return MetaInt(t), nil
	case float32:
		return metaFiniteFloat(float64(t))
	case float64:
		return metaFiniteFloat(t)
	case []any:
		items := make([]MetaValue, len(t))
		for i, item := range t {
			v, err := MetaValueFrom(item)
			if err != nil {
				return MetaValue{}, err
			}
			items[i] = v
		}
		return MetaArray(items...), nil
	case map[string]any:
		m, err := MetaFromMap(t)
		if err != nil {
			return MetaValue{}, err
		}
		return MetaObject(m), nil
	case MetaValue:
		return t.Clone(), nil
	case Meta:
		return MetaObject(t.Clone()), nil
	}
	return MetaValue{}, NewDomainError(ErrCodeValidation, fmt.Sprintf("unsupported meta value type %T", raw))
}

func metaFiniteFloat(f float64) (MetaValue, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return MetaValue{}, NewDomainError(ErrCodeValidation, "meta numbers must be finite")
	}
	return MetaFloat(f), nil
}

// MetaFromMap converts a generic map into a Meta
func MetaFromMap(m map[string]any) (Meta, error) {
	out := make(Meta, len(m))
	for k, raw := range m {
		v, err := MetaValueFrom(raw)
		if err != nil {
			return nil, fmt.Errorf("meta key %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// Map converts the container to plain Go values
func (m Meta) Map() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Interface()
	}
	return out
}

func (m Meta) Get(key string) (MetaValue, bool) {
	v, ok := m[key]
	return v, ok
}

// Clone returns a deep copy; a nil Meta clones to an empty one.
func (m Meta) Clone() Meta {
	out := make(Meta, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

// Equal treats nil and empty as equal
func (m Meta) Equal(other Meta) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		o, ok := other[k]
		if !ok || !v.Equal(o) {
			return false
		}
	}
	return true
}

// MarshalJSON always emits an object, "{}" for a nil Meta.
func (m Meta) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]MetaValue(m))
}

func (m *Meta) UnmarshalJSON(data []byte) error {
	raw, err := decodeJSONWithNumbers(data)
	if err != nil {
		return err
	}
	if raw == nil {
		*m = Meta{}
		return nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return ErrInvalidMeta
	}
	parsed, err := MetaFromMap(obj)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func decodeJSONWithNumbers(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}
