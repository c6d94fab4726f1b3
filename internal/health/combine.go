package health

// Combine merges two sibling values into their parent value.
//
// It is the product 1-(1-a)(1-b): multiplication over the "healthy" complement,
// so a parent is Healthy only when both children are Healthy.
func Combine(a, b Value) Value {
	return 1 - (1-a)*(1-b)
}

// Reduce1 left-folds values in order with combine. An empty slice yields no
// value; a single element is returned as-is without calling combine.
func Reduce1(values []Value, combine func(a, b Value) Value) (Value, bool) {
	if len(values) == 0 {
		return 0, false
	}
	acc := values[0]
	for _, v := range values[1:] {
		acc = combine(acc, v)
	}
	return acc, true
}
