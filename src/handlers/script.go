package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"personal/botkit/src/logging"
)

// Script is a handler written in JavaScript. The file is evaluated as a
// CommonJS-style module; it must assign a function to module.exports or
// exports.default. The function receives the input document and may return
// a value or a promise of one.
//
// Every invocation gets a fresh runtime, so scripts cannot share state
// between events.
type Script struct {
	name    string
	path    string
	program *goja.Program
	logger  zerolog.Logger
}

var (
	ErrNoExport       = errors.New("module does not export a function")
	ErrPendingPromise = errors.New("returned promise did not settle")
)

// CompileScript compiles src once; the program is reused by every Invoke.
func CompileScript(name, path string, src []byte) (*Script, error) {
	wrapped := "(function(module, exports) {\n" + string(src) + "\n;return module.exports;\n})"
	program, err := goja.Compile(path, wrapped, true)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", path, err)
	}
	return &Script{
		name:    name,
		path:    path,
		program: program,
		logger:  logging.WithComponent("script").With().Str(logging.FieldHandler, name).Str(logging.FieldPath, path).Logger(),
	}, nil
}

func (s *Script) Name() string { return s.name }
func (s *Script) Path() string { return s.path }

// Invoke runs the exported function with input. Cancelling ctx interrupts
// the runtime.
func (s *Script) Invoke(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	out, err := s.invoke(ctx, input)
	if err != nil {
		return nil, &EvalError{Handler: s.name, Path: s.path, Err: err}
	}
	return out, nil
}

func (s *Script) invoke(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	vm := goja.New()
	s.installConsole(vm)

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	factoryValue, err := vm.RunProgram(s.program)
	if err != nil {
		return nil, err
	}
	factory, ok := goja.AssertFunction(factoryValue)
	if !ok {
		return nil, fmt.Errorf("unexpected module wrapper %T", factoryValue.Export())
	}

	module := vm.NewObject()
	exports := vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, err
	}
	exported, err := factory(goja.Undefined(), module, exports)
	if err != nil {
		return nil, err
	}
	fn, err := exportedFunction(vm, exported)
	if err != nil {
		return nil, err
	}

	jsonObject := vm.Get("JSON").ToObject(vm)
	parse, _ := goja.AssertFunction(jsonObject.Get("parse"))
	stringify, _ := goja.AssertFunction(jsonObject.Get("stringify"))

	if len(input) == 0 {
		input = json.RawMessage("null")
	}
	arg, err := parse(goja.Undefined(), vm.ToValue(string(input)))
	if err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}

	result, err := fn(goja.Undefined(), arg)
	if err != nil {
		return nil, err
	}
	if result, err = settle(result); err != nil {
		return nil, err
	}
	if goja.IsUndefined(result) || goja.IsNull(result) {
		return json.RawMessage("null"), nil
	}

	encoded, err := stringify(goja.Undefined(), result)
	if err != nil {
		return nil, fmt.Errorf("stringify result: %w", err)
	}
	if goja.IsUndefined(encoded) {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(encoded.String()), nil
}

func exportedFunction(vm *goja.Runtime, exported goja.Value) (goja.Callable, error) {
	if fn, ok := goja.AssertFunction(exported); ok {
		return fn, nil
	}
	if exported == nil || goja.IsUndefined(exported) || goja.IsNull(exported) {
		return nil, ErrNoExport
	}
	if fn, ok := goja.AssertFunction(exported.ToObject(vm).Get("default")); ok {
		return fn, nil
	}
	return nil, ErrNoExport
}

// settle unwraps a promise. Promise jobs have already run by the time the
// call returns, so a promise that is still pending never resolves.
func settle(v goja.Value) (goja.Value, error) {
	p, ok := v.Export().(*goja.Promise)
	if !ok {
		return v, nil
	}
	switch p.State() {
	case goja.PromiseStateFulfilled:
		return p.Result(), nil
	case goja.PromiseStateRejected:
		return nil, fmt.Errorf("promise rejected: %s", p.Result().String())
	default:
		return nil, ErrPendingPromise
	}
}

func (s *Script) installConsole(vm *goja.Runtime) {
	console := vm.NewObject()
	logAt := func(ev func() *zerolog.Event) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, 0, len(call.Arguments))
			for _, arg := range call.Arguments {
				parts = append(parts, arg.String())
			}
			ev().Msg(strings.Join(parts, " "))
			return goja.Undefined()
		}
	}
	_ = console.Set("log", logAt(s.logger.Info))
	_ = console.Set("info", logAt(s.logger.Info))
	_ = console.Set("warn", logAt(s.logger.Warn))
	_ = console.Set("error", logAt(s.logger.Error))
	_ = console.Set("debug", logAt(s.logger.Debug))
	_ = vm.Set("console", console)
}
