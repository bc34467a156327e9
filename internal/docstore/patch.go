package docstore

import (
	"fmt"

	"github.com/roach88/inkwell/internal/doc"
)

// OpKind identifies a field-level update operation.
type OpKind int

const (
	// OpSet overwrites the field.
	OpSet OpKind = iota + 1
	// OpIncrement adds Delta to an integer field. A missing or non-integer
	// field is treated as 0.
	OpIncrement
	// OpArrayUnion appends each value not already present.
	OpArrayUnion
	// OpArrayRemove removes every occurrence of each value.
	OpArrayRemove
)

func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "set"
	case OpIncrement:
		return "increment"
	case OpArrayUnion:
		return "arrayUnion"
	case OpArrayRemove:
		return "arrayRemove"
	default:
		return fmt.Sprintf("OpKind(%d)", int(k))
	}
}

// FieldOp is one operation on one top-level field.
type FieldOp struct {
	Field  string
	Kind   OpKind
	Value  doc.Value   // OpSet
	Delta  int64       // OpIncrement
	Values []doc.Value // OpArrayUnion, OpArrayRemove
}

// Patch is an ordered list of field operations applied atomically.
type Patch []FieldOp

// Set overwrites field with v.
func Set(field string, v doc.Value) FieldOp {
	return FieldOp{Field: field, Kind: OpSet, Value: v}
}

// Increment adds delta to field.
func Increment(field string, delta int64) FieldOp {
	return FieldOp{Field: field, Kind: OpIncrement, Delta: delta}
}

// ArrayUnion adds values missing from the array field.
func ArrayUnion(field string, values ...doc.Value) FieldOp {
	return FieldOp{Field: field, Kind: OpArrayUnion, Values: values}
}

// ArrayRemove removes values from the array field.
func ArrayRemove(field string, values ...doc.Value) FieldOp {
	return FieldOp{Field: field, Kind: OpArrayRemove, Values: values}
}

// Apply mutates obj in place.
func (p Patch) Apply(obj doc.Object) error {
	for _, op := range p {
		if !fieldName.MatchString(op.Field) {
			return fmt.Errorf("%s: invalid field %q", op.Kind, op.Field)
		}
		switch op.Kind {
		case OpSet:
			if op.Value == nil {
				return fmt.Errorf("set %q: nil value", op.Field)
			}
			obj[op.Field] = op.Value

		case OpIncrement:
			cur, _ := obj[op.Field].(doc.Int)
			obj[op.Field] = cur + doc.Int(op.Delta)

		case OpArrayUnion:
			arr := append(doc.Array(nil), obj.Arr(op.Field)...)
			for _, v := range op.Values {
				if !contains(arr, v) {
					arr = append(arr, v)
				}
			}
			obj[op.Field] = arr

		case OpArrayRemove:
			kept := doc.Array{}
			for _, v := range obj.Arr(op.Field) {
				if !contains(op.Values, v) {
					kept = append(kept, v)
				}
			}
			obj[op.Field] = kept

		default:
			return fmt.Errorf("unknown patch op %s on %q", op.Kind, op.Field)
		}
	}
	return nil
}

func contains(vals []doc.Value, v doc.Value) bool {
	for _, e := range vals {
		if doc.Equal(e, v) {
			return true
		}
	}
	return false
}
