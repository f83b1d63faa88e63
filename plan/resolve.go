package plan

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/kingrea/chainexec/internal/typeof"
)

// resolveArgs maps the positional form (preLogic?, command, options?,
// errorHandler?) onto a StepDef. Classification is greedy and positional:
// a leading func is pre-logic, the next value must be the command string, a
// structured value right after the command is options, and a func after that
// is the error handler. Anything left over is rejected.
func resolveArgs(args []any) (StepDef, error) {
	var def StepDef
	if len(args) == 0 {
		return def, invalidArgument("a command is required")
	}
	idx := 0
	if typeof.IsFunc(args[idx]) {
		pre, err := toPreLogic(args[idx])
		if err != nil {
			return StepDef{}, err
		}
		def.PreLogic = pre
		idx++
	}
	if idx >= len(args) || !typeof.IsString(args[idx]) {
		return StepDef{}, invalidArgument("argument %d: command is not a string", idx)
	}
	def.Command = reflect.ValueOf(args[idx]).String()
	idx++
	if idx < len(args) {
		switch {
		case args[idx] == nil:
			idx++
		case typeof.IsObject(args[idx]):
			opts, err := toOptions(args[idx])
			if err != nil {
				return StepDef{}, err
			}
			def.Options = opts
			idx++
		}
	}
	if idx < len(args) && typeof.IsFunc(args[idx]) {
		handler, err := toErrorHandler(args[idx])
		if err != nil {
			return StepDef{}, err
		}
		def.OnError = handler
		idx++
	}
	if idx < len(args) {
		return StepDef{}, invalidArgument("argument %d: unexpected %T after command %q", idx, args[idx], def.Command)
	}
	return def, nil
}

func toPreLogic(v any) (PreLogic, error) {
	switch fn := v.(type) {
	case PreLogic:
		return fn, nil
	case func(string):
		return fn, nil
	case func():
		return func(string) { fn() }, nil
	}
	return nil, invalidArgument("unsupported pre-logic signature %T", v)
}

func toErrorHandler(v any) (ErrorHandler, error) {
	switch fn := v.(type) {
	case ErrorHandler:
		return fn, nil
	case func(error, string) Decision:
		return fn, nil
	case func(error, string) bool:
		return func(err error, stderr string) Decision {
			return boolDecision(fn(err, stderr))
		}, nil
	case func(error, string) *bool:
		return func(err error, stderr string) Decision {
			if verdict := fn(err, stderr); verdict != nil {
				return boolDecision(*verdict)
			}
			return DecisionDefault
		}, nil
	case func(error, string) any:
		return func(err error, stderr string) Decision {
			return anyDecision(fn(err, stderr))
		}, nil
	case func(error, string):
		return func(err error, stderr string) Decision {
			fn(err, stderr)
			return DecisionDefault
		}, nil
	}
	return nil, invalidArgument("unsupported error handler signature %T", v)
}

func boolDecision(b bool) Decision {
	if b {
		return DecisionContinue
	}
	return DecisionHalt
}

// anyDecision only honours a strict bool or an explicit Decision; every other
// value leaves the plan default in charge.
func anyDecision(v any) Decision {
	switch verdict := v.(type) {
	case bool:
		return boolDecision(verdict)
	case Decision:
		return verdict
	}
	return DecisionDefault
}

func toOptions(v any) (Options, error) {
	if opts, ok := v.(Options); ok {
		return opts.Clone(), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Len() == 0 {
			return nil, nil
		}
		out := make(Options, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out, nil
	case reflect.Struct:
		return structOptions(rv), nil
	}
	return nil, invalidArgument("unsupported options type %T", v)
}

func structOptions(rv reflect.Value) Options {
	rt := rv.Type()
	out := Options{}
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		key := strings.ToLower(field.Name)
		if tag, ok := field.Tag.Lookup("yaml"); ok {
			name := strings.Split(tag, ",")[0]
			if name == "-" {
				continue
			}
			if name != "" {
				key = name
			}
		}
		value := rv.Field(i)
		if value.IsZero() {
			continue
		}
		out[key] = value.Interface()
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func describeArgs(args []any) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, fmt.Sprintf("%T", arg))
	}
	return strings.Join(parts, ", ")
}
