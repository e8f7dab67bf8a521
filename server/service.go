package server

import (
	"context"
	"fmt"
	"reflect"
)

type methodType struct {
	method    reflect.Method
	withCtx   bool
	ArgType   reflect.Type
	ReplyType reflect.Type
}

type service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType
}

var (
	errorType   = reflect.TypeFor[error]()
	contextType = reflect.TypeFor[context.Context]()
)

// newService inspects rcvr, which must be a pointer to a struct, and
// collects its exported methods of either form
//
//	func (*T) M(args *A, reply *R) error
//	func (*T) M(ctx context.Context, args *A, reply *R) error
func newService(name string, rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Pointer {
		return nil, fmt.Errorf("server: receiver must be a pointer, got %T", rcvr)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("server: receiver must point to a struct, got %s", typ.Elem().Kind())
	}
	if name == "" {
		name = typ.Elem().Name()
	}
	svc := &service{
		name:   name,
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}
	for i := range typ.NumMethod() {
		if mt := methodOf(typ.Method(i)); mt != nil {
			svc.method[mt.method.Name] = mt
		}
	}
	if len(svc.method) == 0 {
		return nil, fmt.Errorf("server: type %s has no suitable methods", typ)
	}
	return svc, nil
}

func methodOf(m reflect.Method) *methodType {
	ft := m.Type
	if ft.NumOut() != 1 || ft.Out(0) != errorType {
		return nil
	}
	first := 1
	withCtx := ft.NumIn() == 4 && ft.In(1) == contextType
	if withCtx {
		first = 2
	} else if ft.NumIn() != 3 {
		return nil
	}
	argT, replyT := ft.In(first), ft.In(first+1)
	if argT.Kind() != reflect.Pointer || replyT.Kind() != reflect.Pointer {
		return nil
	}
	return &methodType{method: m, withCtx: withCtx, ArgType: argT.Elem(), ReplyType: replyT.Elem()}
}

// call invokes the method on the receiver.
func (s *service) call(ctx context.Context, mt *methodType, argv, replyv reflect.Value) error {
	in := []reflect.Value{s.rcvr, argv, replyv}
	if mt.withCtx {
		in = []reflect.Value{s.rcvr, reflect.ValueOf(ctx), argv, replyv}
	}
	out := mt.method.Func.Call(in)
	if err, _ := out[0].Interface().(error); err != nil {
		return err
	}
	return nil
}
