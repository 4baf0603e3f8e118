package model

import (
	"bytes"
	"math"
	"slices"
	"strings"
)

// typeOrder ranks kinds in Firestore's cross-type ordering. Integers and
// doubles share a rank.
func typeOrder(k Kind) int {
	switch k {
	case KindNull:
		return 0
	case KindBoolean:
		return 1
	case KindInteger, KindDouble:
		return 2
	case KindTimestamp:
		return 3
	case KindString:
		return 4
	case KindBytes:
		return 5
	case KindReference:
		return 6
	case KindGeoPoint:
		return 7
	case KindArray:
		return 8
	case KindMap:
		return 9
	}
	return -1
}

// CompareValues orders two values the way Firestore sorts query results.
// NaN sorts before every other number and equals itself.
func CompareValues(a, b *Value) int {
	ka, kb := a.Kind(), b.Kind()
	if oa, ob := typeOrder(ka), typeOrder(kb); oa != ob {
		return cmpInt(oa, ob)
	}

	switch ka {
	case KindNull, KindInvalid:
		return 0
	case KindBoolean:
		return cmpBool(*a.BooleanValue, *b.BooleanValue)
	case KindInteger, KindDouble:
		return compareNumbers(a, b)
	case KindTimestamp:
		return a.TimestampValue.Compare(*b.TimestampValue)
	case KindString:
		return strings.Compare(*a.StringValue, *b.StringValue)
	case KindBytes:
		return bytes.Compare(a.BytesValue, b.BytesValue)
	case KindReference:
		return slices.Compare(strings.Split(*a.ReferenceValue, "/"), strings.Split(*b.ReferenceValue, "/"))
	case KindGeoPoint:
		if c := cmpFloat(a.GeoPointValue.Latitude, b.GeoPointValue.Latitude); c != 0 {
			return c
		}
		return cmpFloat(a.GeoPointValue.Longitude, b.GeoPointValue.Longitude)
	case KindArray:
		av, bv := a.ArrayValue.Values, b.ArrayValue.Values
		for i := 0; i < len(av) && i < len(bv); i++ {
			if c := CompareValues(av[i], bv[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(av), len(bv))
	case KindMap:
		return compareMaps(a.MapValue.Fields, b.MapValue.Fields)
	}
	return 0
}

// SameTypeClass reports whether a and b share a rank in the cross-type
// ordering. Range filters only match values of the filter's class.
func SameTypeClass(a, b *Value) bool {
	return typeOrder(a.Kind()) == typeOrder(b.Kind())
}

// EqualValues reports whether a and b are equal in query semantics:
// 1 and 1.0 are equal.
func EqualValues(a, b *Value) bool {
	return SameTypeClass(a, b) && CompareValues(a, b) == 0
}

// IsNaN reports whether v is a NaN double.
func (v *Value) IsNaN() bool {
	return v.Kind() == KindDouble && math.IsNaN(*v.DoubleValue)
}

func compareMaps(a, b map[string]*Value) int {
	ak, bk := sortedKeys(a), sortedKeys(b)
	for i := 0; i < len(ak) && i < len(bk); i++ {
		if c := strings.Compare(ak[i], bk[i]); c != 0 {
			return c
		}
		if c := CompareValues(a[ak[i]], b[bk[i]]); c != 0 {
			return c
		}
	}
	return cmpInt(len(ak), len(bk))
}

func sortedKeys(m map[string]*Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func compareNumbers(a, b *Value) int {
	switch {
	case a.IntegerValue != nil && b.IntegerValue != nil:
		return cmpInt64(*a.IntegerValue, *b.IntegerValue)
	case a.DoubleValue != nil && b.DoubleValue != nil:
		return cmpFloat(*a.DoubleValue, *b.DoubleValue)
	case a.IntegerValue != nil:
		return compareIntDouble(*a.IntegerValue, *b.DoubleValue)
	default:
		return -compareIntDouble(*b.IntegerValue, *a.DoubleValue)
	}
}

func compareIntDouble(i int64, f float64) int {
	switch {
	case math.IsNaN(f):
		return 1
	case f < -9.223372036854775808e18:
		return 1
	case f >= 9.223372036854775808e18:
		return -1
	}
	fi := int64(f)
	if c := cmpInt64(i, fi); c != 0 {
		return c
	}
	frac := f - float64(fi)
	switch {
	case frac > 0:
		return -1
	case frac < 0:
		return 1
	}
	return 0
}

func cmpFloat(a, b float64) int {
	an, bn := math.IsNaN(a), math.IsNaN(b)
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpInt(a, b int) int { return cmpInt64(int64(a), int64(b)) }
func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}
