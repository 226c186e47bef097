package reactive

import "reflect"

// equaler is implemented by values that define their own equality.
type equaler[T any] interface {
	Equal(T) bool
}

// equalsFor picks the comparison a cell of type T uses when none is given.
// The choice is made once per cell: an Equal method wins, comparable
// types with no interface inside use ==, and everything else is compared
// deeply.
func equalsFor[T any]() func(T, T) bool {
	var zero T
	if _, ok := any(zero).(equaler[T]); ok {
		return func(a, b T) bool { return any(a).(equaler[T]).Equal(b) }
	}
	t := reflect.TypeFor[T]()
	if t.Comparable() && !holdsInterface(t) {
		return func(a, b T) bool { return any(a) == any(b) }
	}
	return func(a, b T) bool { return reflect.DeepEqual(a, b) }
}

// holdsInterface reports whether == on t may panic at run time.
func holdsInterface(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Interface:
		return true
	case reflect.Array:
		return holdsInterface(t.Elem())
	case reflect.Struct:
		for i := range t.NumField() {
			if holdsInterface(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}
