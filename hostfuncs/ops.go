package hostfuncs

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/reglet-dev/valbridge/domain/entities"
	"github.com/reglet-dev/valbridge/domain/errors"
)

// Push appends the value named by v to the array named by arr.
func (b *Bridge) Push(arr, v entities.Handle) error {
	a, val, err := b.resolve2(arr, v)
	if err != nil {
		return err
	}
	_, err = b.dispatch.call(b.dispatch.push, a, val)
	return err
}

// GetElem registers the element at idx.
func (b *Bridge) GetElem(h entities.Handle, idx uint32) (entities.Handle, error) {
	v, err := b.handles.Resolve(h)
	if err != nil {
		return 0, err
	}
	elem, err := b.dispatch.call(b.dispatch.get, v, b.vm.ToValue(int64(idx)))
	if err != nil {
		return 0, err
	}
	return b.handles.Register(elem), nil
}

// Not reports whether the value is falsy.
func (b *Bridge) Not(h entities.Handle) (bool, error) {
	v, err := b.handles.Resolve(h)
	if err != nil {
		return false, err
	}
	return !v.ToBoolean(), nil
}

// IsString reports whether the value is a string primitive or a String object.
func (b *Bridge) IsString(h entities.Handle) (bool, error) {
	return b.test1(b.dispatch.isString, h)
}

// IsNumber reports whether the value is a number primitive.
func (b *Bridge) IsNumber(h entities.Handle) (bool, error) {
	return b.test1(b.dispatch.isNumber, h)
}

// IsBool reports whether the value is a boolean primitive.
func (b *Bridge) IsBool(h entities.Handle) (bool, error) {
	return b.test1(b.dispatch.isBool, h)
}

// Gt evaluates a > b.
func (b *Bridge) Gt(x, y entities.Handle) (bool, error) { return b.test2(b.dispatch.gt, x, y) }

// Gte evaluates a >= b.
func (b *Bridge) Gte(x, y entities.Handle) (bool, error) { return b.test2(b.dispatch.gte, x, y) }

// Lt evaluates a < b.
func (b *Bridge) Lt(x, y entities.Handle) (bool, error) { return b.test2(b.dispatch.lt, x, y) }

// Lte evaluates a <= b.
func (b *Bridge) Lte(x, y entities.Handle) (bool, error) { return b.test2(b.dispatch.lte, x, y) }

// Equals evaluates a == b.
func (b *Bridge) Equals(x, y entities.Handle) (bool, error) { return b.test2(b.dispatch.eq, x, y) }

// StrictlyEquals evaluates a === b.
func (b *Bridge) StrictlyEquals(x, y entities.Handle) (bool, error) {
	a, c, err := b.resolve2(x, y)
	if err != nil {
		return false, err
	}
	return a.StrictEquals(c), nil
}

// InstanceOf evaluates a instanceof b. A right-hand side that is not callable
// raises a TypeError in the host.
func (b *Bridge) InstanceOf(x, y entities.Handle) (bool, error) {
	return b.test2(b.dispatch.instanceOf, x, y)
}

// ObjProp registers obj[name]. Missing properties yield the undefined handle.
func (b *Bridge) ObjProp(obj entities.Handle, namePtr, nameLen uint32) (entities.Handle, error) {
	o, name, err := b.target(obj, namePtr, nameLen)
	if err != nil {
		return 0, err
	}
	v, err := b.dispatch.call(b.dispatch.get, o, name)
	if err != nil {
		return 0, err
	}
	return b.handles.Register(v), nil
}

// ObjSetProp assigns obj[name] = val.
func (b *Bridge) ObjSetProp(obj entities.Handle, namePtr, nameLen uint32, val entities.Handle) error {
	o, name, err := b.target(obj, namePtr, nameLen)
	if err != nil {
		return err
	}
	v, err := b.handles.Resolve(val)
	if err != nil {
		return err
	}
	_, err = b.dispatch.call(b.dispatch.set, o, name, v)
	return err
}

// ObjHasProp reports whether name is in obj, inherited properties included.
func (b *Bridge) ObjHasProp(obj entities.Handle, namePtr, nameLen uint32) (bool, error) {
	o, name, err := b.target(obj, namePtr, nameLen)
	if err != nil {
		return false, err
	}
	return b.dispatch.test(b.dispatch.has, o, name)
}

// ObjHasOwnProp reports whether obj has its own property name.
func (b *Bridge) ObjHasOwnProp(obj entities.Handle, namePtr, nameLen uint32) (bool, error) {
	o, name, err := b.target(obj, namePtr, nameLen)
	if err != nil {
		return false, err
	}
	return b.dispatch.test(b.dispatch.hasOwn, o, name)
}

// ObjDeleteProp deletes obj[name] and reports the result of the delete.
func (b *Bridge) ObjDeleteProp(obj entities.Handle, namePtr, nameLen uint32) (bool, error) {
	o, name, err := b.target(obj, namePtr, nameLen)
	if err != nil {
		return false, err
	}
	return b.dispatch.test(b.dispatch.del, o, name)
}

// Get registers obj[key] for a key given by handle.
func (b *Bridge) Get(obj, key entities.Handle) (entities.Handle, error) {
	o, k, err := b.resolve2(obj, key)
	if err != nil {
		return 0, err
	}
	v, err := b.dispatch.call(b.dispatch.get, o, k)
	if err != nil {
		return 0, err
	}
	return b.handles.Register(v), nil
}

// Set assigns obj[key] = val for a key given by handle.
func (b *Bridge) Set(obj, key, val entities.Handle) error {
	o, k, err := b.resolve2(obj, key)
	if err != nil {
		return err
	}
	v, err := b.handles.Resolve(val)
	if err != nil {
		return err
	}
	_, err = b.dispatch.call(b.dispatch.set, o, k, v)
	return err
}

// Has reports whether key is in obj for a key given by handle.
func (b *Bridge) Has(obj, key entities.Handle) (bool, error) {
	o, k, err := b.resolve2(obj, key)
	if err != nil {
		return false, err
	}
	return b.dispatch.test(b.dispatch.has, o, k)
}

// ObjCall invokes the method name on obj with the values in argv and
// registers the result.
func (b *Bridge) ObjCall(obj entities.Handle, namePtr, nameLen uint32, argv entities.Handle) (entities.Handle, error) {
	o, name, err := b.target(obj, namePtr, nameLen)
	if err != nil {
		return 0, err
	}
	method, err := b.dispatch.call(b.dispatch.get, o, name)
	if err != nil {
		return 0, err
	}
	args, err := b.arguments(argv)
	if err != nil {
		return 0, err
	}
	fn, ok := goja.AssertFunction(method)
	if !ok {
		return 0, b.typeError(errors.ThrowKindNotCallable, fmt.Sprintf("%s is not a function", name.String()))
	}
	return b.invoke(fn, o, args)
}

// FuncCall invokes the function target with an undefined receiver.
func (b *Bridge) FuncCall(target, argv entities.Handle) (entities.Handle, error) {
	f, err := b.handles.Resolve(target)
	if err != nil {
		return 0, err
	}
	args, err := b.arguments(argv)
	if err != nil {
		return 0, err
	}
	fn, ok := goja.AssertFunction(f)
	if !ok {
		return 0, b.typeError(errors.ThrowKindNotCallable, fmt.Sprintf("handle %d is not a function", uint32(target)))
	}
	return b.invoke(fn, goja.Undefined(), args)
}

// ConstructNew evaluates new target(...argv).
func (b *Bridge) ConstructNew(target, argv entities.Handle) (entities.Handle, error) {
	ctor, err := b.handles.Resolve(target)
	if err != nil {
		return 0, err
	}
	args, err := b.arguments(argv)
	if err != nil {
		return 0, err
	}
	if _, ok := goja.AssertConstructor(ctor); !ok {
		return 0, b.typeError(errors.ThrowKindNotConstructible, fmt.Sprintf("handle %d is not a constructor", uint32(target)))
	}
	obj, err := b.vm.New(ctor, args...)
	if err != nil {
		return 0, thrownFrom(err)
	}
	return b.handles.Register(obj), nil
}

// IncRef adds a reference to h.
func (b *Bridge) IncRef(h entities.Handle) {
	b.handles.Retain(h)
}

// DecRef drops a reference to h. Reserved handles are never released.
func (b *Bridge) DecRef(h entities.Handle) {
	b.handles.Release(h)
}

// Delete drops the caller's reference to h.
func (b *Bridge) Delete(h entities.Handle) {
	b.handles.Release(h)
}

// Throw returns an error carrying the value named by h. Unwinding the module
// with it makes the value surface as a host exception.
func (b *Bridge) Throw(h entities.Handle) error {
	v, err := b.handles.Resolve(h)
	if err != nil {
		return err
	}
	return &errors.ThrownError{Kind: errors.ThrowKindThrown, Value: v, Message: b.describe(v)}
}

// ResetHandles drops every non-reserved handle.
func (b *Bridge) ResetHandles() {
	b.handles.Reset()
}

func (b *Bridge) invoke(fn goja.Callable, this goja.Value, args []goja.Value) (entities.Handle, error) {
	ret, err := fn(this, args...)
	if err != nil {
		return 0, thrownFrom(err)
	}
	return b.handles.Register(ret), nil
}

// arguments resolves an argument array handle into its element values.
func (b *Bridge) arguments(argv entities.Handle) ([]goja.Value, error) {
	v, err := b.handles.Resolve(argv)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, b.typeError(errors.ThrowKindThrown, "argument list is not an object")
	}

	length, err := b.dispatch.call(b.dispatch.get, obj, b.vm.ToValue("length"))
	if err != nil {
		return nil, err
	}
	n := length.ToInteger()
	args := make([]goja.Value, 0, max(n, 0))
	for i := int64(0); i < n; i++ {
		a, err := b.dispatch.call(b.dispatch.get, obj, b.vm.ToValue(i))
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	return args, nil
}

// target resolves obj and reads a property name span.
func (b *Bridge) target(obj entities.Handle, namePtr, nameLen uint32) (goja.Value, goja.Value, error) {
	o, err := b.handles.Resolve(obj)
	if err != nil {
		return nil, nil, err
	}
	name, err := b.readSpan(namePtr, nameLen)
	if err != nil {
		return nil, nil, err
	}
	return o, b.vm.ToValue(name), nil
}

// typeError builds a host TypeError wrapped as a ThrownError of kind.
func (b *Bridge) typeError(kind errors.ThrowKind, msg string) error {
	return &errors.ThrownError{Kind: kind, Value: b.vm.NewTypeError(msg), Message: "TypeError: " + msg}
}

// describe renders v for diagnostics without letting a hostile toString escape.
func (b *Bridge) describe(v goja.Value) string {
	s, err := b.dispatch.call(b.dispatch.toString, v)
	if err != nil {
		return "<unprintable value>"
	}
	return s.String()
}

func (b *Bridge) test1(op goja.Callable, h entities.Handle) (bool, error) {
	v, err := b.handles.Resolve(h)
	if err != nil {
		return false, err
	}
	return b.dispatch.test(op, v)
}

func (b *Bridge) test2(op goja.Callable, x, y entities.Handle) (bool, error) {
	a, c, err := b.resolve2(x, y)
	if err != nil {
		return false, err
	}
	return b.dispatch.test(op, a, c)
}
