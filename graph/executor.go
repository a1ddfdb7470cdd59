package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/shopspring/decimal"
	"github.com/vektah/gqlparser/v2/ast"
)

// rootFunc resolves a Query or Mutation field from its coerced arguments.
type rootFunc func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// fieldFunc resolves an object field that is not read off the parent value.
type fieldFunc func(ctx context.Context, parent interface{}) (interface{}, error)

// executableSchema serves the demo schema without generated code. Root fields go to
// resolver funcs; everything below them is completed from the returned Go values by
// matching GraphQL field names to struct fields, json tags or methods.
type executableSchema struct {
	schema *ast.Schema
	roots  map[ast.Operation]map[string]rootFunc
	fields map[string]map[string]fieldFunc
}

func (e *executableSchema) Schema() *ast.Schema {
	return e.schema
}

func (e *executableSchema) Complexity(typeName, fieldName string, childComplexity int, args map[string]interface{}) (int, bool) {
	return 0, false
}

func (e *executableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	rc := graphql.GetOperationContext(ctx)
	roots, ok := e.roots[rc.Operation.Operation]
	if !ok {
		return graphql.OneShot(graphql.ErrorResponse(ctx, "unsupported GraphQL operation"))
	}
	first := true
	return func(ctx context.Context) *graphql.Response {
		if !first {
			return nil
		}
		first = false
		var buf bytes.Buffer
		e.execRoot(ctx, rc, roots).MarshalGQL(&buf)
		return &graphql.Response{Data: buf.Bytes()}
	}
}

// execRoot resolves root fields in document order, so mutations run serially.
func (e *executableSchema) execRoot(ctx context.Context, rc *graphql.OperationContext, roots map[string]rootFunc) graphql.Marshaler {
	object := "Query"
	if rc.Operation.Operation == ast.Mutation {
		object = "Mutation"
	}
	fields := graphql.CollectFields(rc, rc.Operation.SelectionSet, []string{object})
	out := graphql.NewFieldSet(fields)
	for i, f := range fields {
		if f.Name == "__typename" {
			out.Values[i] = graphql.MarshalString(object)
			continue
		}
		fc := &graphql.FieldContext{
			Object:     object,
			Field:      f,
			Args:       f.ArgumentMap(rc.Variables),
			IsMethod:   true,
			IsResolver: true,
		}
		fctx := graphql.WithFieldContext(ctx, fc)
		resolve, ok := roots[f.Name]
		var (
			res interface{}
			err error
		)
		if !ok {
			err = fmt.Errorf("field %s.%s has no resolver", object, f.Name)
		} else {
			res, err = rc.ResolverMiddleware(fctx, func(ctx context.Context) (interface{}, error) {
				args, err := e.coerceArgs(f.Definition.Arguments, fc.Args)
				if err != nil {
					return nil, badInput(err)
				}
				return resolve(ctx, args)
			})
		}
		if err != nil {
			graphql.AddError(fctx, err)
			res = nil
		}
		m, ok := e.complete(fctx, f.Definition.Type, f.Selections, reflect.ValueOf(res))
		if !ok {
			return graphql.Null
		}
		out.Values[i] = m
	}
	return out
}

// complete fills one position. ok is false when a non-null position ended up null and
// the parent has to be nulled too.
func (e *executableSchema) complete(ctx context.Context, typ *ast.Type, sel ast.SelectionSet, v reflect.Value) (graphql.Marshaler, bool) {
	if m, ok := e.completeValue(ctx, typ, sel, v); ok {
		return m, true
	}
	if typ.NonNull {
		return graphql.Null, false
	}
	return graphql.Null, true
}

func (e *executableSchema) completeValue(ctx context.Context, typ *ast.Type, sel ast.SelectionSet, v reflect.Value) (graphql.Marshaler, bool) {
	v = indirect(unwrapJSON(indirect(v)))
	if !v.IsValid() {
		if typ.NonNull {
			if !graphql.HasFieldError(ctx, graphql.GetFieldContext(ctx)) {
				graphql.AddErrorf(ctx, "must not be null")
			}
			return graphql.Null, false
		}
		return graphql.Null, true
	}

	if typ.Elem != nil {
		if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
			graphql.AddErrorf(ctx, "expected a list, got %s", v.Type())
			return graphql.Null, false
		}
		arr := make(graphql.Array, v.Len())
		for i := range arr {
			idx := i
			ictx := graphql.WithFieldContext(ctx, &graphql.FieldContext{Index: &idx})
			m, ok := e.complete(ictx, typ.Elem, sel, v.Index(i))
			if !ok {
				return graphql.Null, false
			}
			arr[i] = m
		}
		return arr, true
	}

	def := e.schema.Types[typ.Name()]
	if def == nil {
		graphql.AddErrorf(ctx, "unknown type %s", typ.Name())
		return graphql.Null, false
	}
	switch def.Kind {
	case ast.Object:
		if v.Kind() != reflect.Struct && v.Kind() != reflect.Map {
			graphql.AddErrorf(ctx, "cannot complete %s from %s", def.Name, v.Type())
			return graphql.Null, false
		}
		return e.object(ctx, def, sel, v)
	case ast.Scalar, ast.Enum:
		m, err := marshalLeaf(def, v)
		if err != nil {
			graphql.AddError(ctx, err)
			return graphql.Null, false
		}
		return m, true
	}
	graphql.AddErrorf(ctx, "unsupported output type %s", def.Name)
	return graphql.Null, false
}

func (e *executableSchema) object(ctx context.Context, def *ast.Definition, sel ast.SelectionSet, v reflect.Value) (graphql.Marshaler, bool) {
	rc := graphql.GetOperationContext(ctx)
	fields := graphql.CollectFields(rc, sel, []string{def.Name})
	out := graphql.NewFieldSet(fields)
	for i, f := range fields {
		if f.Name == "__typename" {
			out.Values[i] = graphql.MarshalString(def.Name)
			continue
		}
		fc := &graphql.FieldContext{Object: def.Name, Field: f, Args: f.ArgumentMap(rc.Variables)}
		fctx := graphql.WithFieldContext(ctx, fc)

		var (
			res reflect.Value
			err error
		)
		if resolve, ok := e.fields[def.Name][f.Name]; ok {
			fc.IsMethod, fc.IsResolver = true, true
			parent := v.Interface()
			var r interface{}
			r, err = rc.ResolverMiddleware(fctx, func(ctx context.Context) (interface{}, error) {
				return resolve(ctx, parent)
			})
			res = reflect.ValueOf(r)
		} else {
			res, err = lookup(v, f.Field, fc.Args)
		}
		if err != nil {
			graphql.AddError(fctx, err)
			res = reflect.Value{}
		}
		m, ok := e.complete(fctx, f.Definition.Type, f.Selections, res)
		if !ok {
			return graphql.Null, false
		}
		out.Values[i] = m
	}
	return out, true
}

// lookup reads field f off v: a map key, then an exported struct field by name or json
// tag, then a method whose parameters line up with the field arguments.
func lookup(v reflect.Value, f *ast.Field, args map[string]interface{}) (reflect.Value, error) {
	want := foldName(f.Name)
	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String {
			iter := v.MapRange()
			for iter.Next() {
				if foldName(iter.Key().String()) == want {
					return iter.Value(), nil
				}
			}
			return reflect.Value{}, nil
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() {
				continue
			}
			if foldName(sf.Name) == want || foldName(jsonName(sf)) == want {
				return v.Field(i), nil
			}
		}
	}

	recv := v
	if v.CanAddr() {
		recv = v.Addr()
	} else {
		p := reflect.New(v.Type())
		p.Elem().Set(v)
		recv = p
	}
	rt := recv.Type()
	for i := 0; i < rt.NumMethod(); i++ {
		if foldName(rt.Method(i).Name) == want {
			return callMethod(recv.Method(i), f.Definition.Arguments, args)
		}
	}
	return reflect.Value{}, fmt.Errorf("%s has no field %s", v.Type(), f.Name)
}

func callMethod(m reflect.Value, params ast.ArgumentDefinitionList, args map[string]interface{}) (reflect.Value, error) {
	mt := m.Type()
	if mt.NumIn() != len(params) || mt.NumOut() == 0 || mt.NumOut() > 2 {
		return reflect.Value{}, fmt.Errorf("cannot resolve through %s", mt)
	}
	in := make([]reflect.Value, len(params))
	for i, p := range params {
		pt := mt.In(i)
		a, ok := args[p.Name]
		if !ok || a == nil {
			in[i] = reflect.Zero(pt)
			continue
		}
		av := reflect.ValueOf(a)
		if !av.Type().ConvertibleTo(pt) {
			return reflect.Value{}, fmt.Errorf("argument %s: cannot use %T as %s", p.Name, a, pt)
		}
		in[i] = av.Convert(pt)
	}
	out := m.Call(in)
	if len(out) == 2 {
		if err, _ := out[1].Interface().(error); err != nil {
			return reflect.Value{}, err
		}
	}
	return out[0], nil
}

func marshalLeaf(def *ast.Definition, v reflect.Value) (graphql.Marshaler, error) {
	switch def.Name {
	case "Decimal":
		if d, ok := v.Interface().(decimal.Decimal); ok {
			return MarshalDecimal(d), nil
		}
	case "Time":
		if t, ok := v.Interface().(time.Time); ok {
			return graphql.MarshalTime(t), nil
		}
	case "Map":
		if v.Kind() == reflect.Map && v.IsNil() {
			return graphql.Null, nil
		}
		b, err := json.Marshal(v.Interface())
		if err != nil {
			return nil, err
		}
		return graphql.WriterFunc(func(w io.Writer) { w.Write(b) }), nil
	case "Int":
		switch v.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return graphql.MarshalInt64(v.Int()), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return graphql.MarshalInt64(int64(v.Uint())), nil
		}
	case "Float":
		switch v.Kind() {
		case reflect.Float32, reflect.Float64:
			return graphql.MarshalFloat(v.Float()), nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return graphql.MarshalFloat(float64(v.Int())), nil
		}
	case "Boolean":
		if v.Kind() == reflect.Bool {
			return graphql.MarshalBoolean(v.Bool()), nil
		}
	case "ID":
		if v.Kind() == reflect.String {
			return graphql.MarshalID(v.String()), nil
		}
	case "String":
		if v.Kind() == reflect.String {
			return graphql.MarshalString(v.String()), nil
		}
	default:
		if def.Kind == ast.Enum && v.Kind() == reflect.String {
			return graphql.MarshalString(v.String()), nil
		}
	}
	return nil, fmt.Errorf("cannot marshal %s as %s", v.Type(), def.Name)
}

// coerceArgs normalizes Decimal inputs so request structs decode them exactly.
func (e *executableSchema) coerceArgs(defs ast.ArgumentDefinitionList, args map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = v
	}
	for _, d := range defs {
		v, ok := args[d.Name]
		if !ok {
			continue
		}
		c, err := e.coerceInput(d.Type, v, d.Name)
		if err != nil {
			return nil, err
		}
		out[d.Name] = c
	}
	return out, nil
}

func (e *executableSchema) coerceInput(typ *ast.Type, v interface{}, path string) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if typ.Elem != nil {
		list, ok := v.([]interface{})
		if !ok {
			c, err := e.coerceInput(typ.Elem, v, path)
			return []interface{}{c}, err
		}
		out := make([]interface{}, len(list))
		for i, item := range list {
			c, err := e.coerceInput(typ.Elem, item, fmt.Sprintf("%s.%d", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	}
	def := e.schema.Types[typ.Name()]
	switch {
	case def == nil:
		return v, nil
	case def.Name == "Decimal":
		d, err := UnmarshalDecimal(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return d, nil
	case def.Kind == ast.InputObject:
		obj, ok := v.(map[string]interface{})
		if !ok {
			return v, nil
		}
		out := make(map[string]interface{}, len(obj))
		for k, item := range obj {
			fd := def.Fields.ForName(k)
			if fd == nil {
				out[k] = item
				continue
			}
			c, err := e.coerceInput(fd.Type, item, path+"."+k)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	}
	return v, nil
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// unwrapJSON returns the payload of a datatypes.JSONType column.
func unwrapJSON(v reflect.Value) reflect.Value {
	if !v.IsValid() || v.Kind() != reflect.Struct || v.Type().PkgPath() != "gorm.io/datatypes" {
		return v
	}
	m := v.MethodByName("Data")
	if !m.IsValid() || m.Type().NumIn() != 0 || m.Type().NumOut() != 1 {
		return v
	}
	return m.Call(nil)[0]
}

func jsonName(sf reflect.StructField) string {
	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
	return name
}

func foldName(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", ""))
}
