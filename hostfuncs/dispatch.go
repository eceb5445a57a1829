package hostfuncs

import (
	stdErrors "errors"
	"fmt"

	"github.com/dop251/goja"
	"github.com/reglet-dev/valbridge/domain/errors"
)

// dispatchSource defines the host-side operations the bridge performs on
// arbitrary values. Running them as host functions gives every value variant
// (primitive, array, plain object, function, native object) its own
// semantics for property access, comparison and type tests.
const dispatchSource = `({
	gt: function (a, b) { return a > b; },
	gte: function (a, b) { return a >= b; },
	lt: function (a, b) { return a < b; },
	lte: function (a, b) { return a <= b; },
	eq: function (a, b) { return a == b; },
	instanceOf: function (a, b) { return a instanceof b; },
	typeOf: function (v) { return typeof v; },
	isString: function (v) { return typeof v === "string" || v instanceof String; },
	isNumber: function (v) { return typeof v === "number"; },
	isBool: function (v) { return typeof v === "boolean"; },
	toNumber: function (v) { return +v; },
	toString: function (v) { return String(v); },
	toBigInt64: function (v) { return BigInt.asIntN(64, typeof v === "bigint" ? v : BigInt(v)); },
	toBigUint64: function (v) { return BigInt.asUintN(64, typeof v === "bigint" ? v : BigInt(v)); },
	get: function (o, k) { return o[k]; },
	set: function (o, k, v) { o[k] = v; },
	has: function (o, k) { return Reflect.has(o, k); },
	hasOwn: function (o, k) { return Object.prototype.hasOwnProperty.call(o, k); },
	del: function (o, k) { return delete o[k]; },
	push: function (a, v) { return a.push(v); }
})`

var dispatchProgram = goja.MustCompile("valbridge-dispatch.js", dispatchSource, false)

// dispatchTable holds the compiled operations for one runtime.
type dispatchTable struct {
	gt, gte, lt, lte goja.Callable
	eq, instanceOf   goja.Callable
	typeOf           goja.Callable
	isString         goja.Callable
	isNumber         goja.Callable
	isBool           goja.Callable
	toNumber         goja.Callable
	toString         goja.Callable
	toBigInt64       goja.Callable
	toBigUint64      goja.Callable
	get, set         goja.Callable
	has, hasOwn, del goja.Callable
	push             goja.Callable
}

func newDispatchTable(vm *goja.Runtime) (*dispatchTable, error) {
	v, err := vm.RunProgram(dispatchProgram)
	if err != nil {
		return nil, err
	}
	obj := v.ToObject(vm)

	t := &dispatchTable{}
	slots := map[string]*goja.Callable{
		"gt": &t.gt, "gte": &t.gte, "lt": &t.lt, "lte": &t.lte,
		"eq": &t.eq, "instanceOf": &t.instanceOf,
		"typeOf": &t.typeOf, "isString": &t.isString, "isNumber": &t.isNumber, "isBool": &t.isBool,
		"toNumber": &t.toNumber, "toString": &t.toString,
		"toBigInt64": &t.toBigInt64, "toBigUint64": &t.toBigUint64,
		"get": &t.get, "set": &t.set, "has": &t.has, "hasOwn": &t.hasOwn, "del": &t.del,
		"push": &t.push,
	}
	for name, slot := range slots {
		fn, ok := goja.AssertFunction(obj.Get(name))
		if !ok {
			return nil, fmt.Errorf("dispatch operation %q is not a function", name)
		}
		*slot = fn
	}
	return t, nil
}

// call runs op and converts a host exception into a ThrownError.
func (t *dispatchTable) call(op goja.Callable, args ...goja.Value) (goja.Value, error) {
	v, err := op(goja.Undefined(), args...)
	if err != nil {
		return nil, thrownFrom(err)
	}
	return v, nil
}

// test runs a predicate op.
func (t *dispatchTable) test(op goja.Callable, args ...goja.Value) (bool, error) {
	v, err := t.call(op, args...)
	if err != nil {
		return false, err
	}
	return v.ToBoolean(), nil
}

// thrownFrom wraps a host exception. Other errors pass through unchanged.
func thrownFrom(err error) error {
	var ex *goja.Exception
	if stdErrors.As(err, &ex) {
		return &errors.ThrownError{
			Kind:    errors.ThrowKindThrown,
			Value:   ex.Value(),
			Message: ex.Error(),
		}
	}
	return err
}
