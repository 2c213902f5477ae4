// Package jsengine provides JavaScript expression evaluation for check assertions.
package jsengine

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/devicelab-dev/geoprobe/pkg/logger"
)

// Engine wraps a goja runtime. Assertions see measured geometry as plain
// objects, e.g. inView.y <= window.height - size.height.
type Engine struct {
	runtime   *goja.Runtime
	variables map[string]interface{}
	mu        sync.Mutex
}

// New creates a new JS engine instance
func New() *Engine {
	e := &Engine{
		runtime:   goja.New(),
		variables: make(map[string]interface{}),
	}
	// Go struct fields keep their json names (x, y, width, height).
	e.runtime.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	e.setupBuiltins()
	return e
}

// setupBuiltins registers all built-in functions and objects
func (e *Engine) setupBuiltins() {
	e.setupConsole()

	// JSON helper
	e.runtime.Set("json", e.jsonFunc())

	// within(v, lo, hi) reads better than chained comparisons in YAML.
	e.runtime.Set("within", func(v, lo, hi float64) bool {
		return v >= lo && v <= hi
	})
}

// setupConsole routes console.log, console.error, console.warn to the log file.
func (e *Engine) setupConsole() {
	makeConsoleFunc := func(log func(string, ...interface{})) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = fmt.Sprint(arg.Export())
			}
			log("js: %s", strings.Join(parts, " "))
			return goja.Undefined()
		}
	}

	console := e.runtime.NewObject()
	console.Set("log", makeConsoleFunc(logger.Info))
	console.Set("error", makeConsoleFunc(logger.Error))
	console.Set("warn", makeConsoleFunc(logger.Warn))
	e.runtime.Set("console", console)
}

// jsonFunc parses a JSON string into a JS value
func (e *Engine) jsonFunc() func(call goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			return goja.Undefined()
		}
		var v interface{}
		if err := json.Unmarshal([]byte(call.Arguments[0].String()), &v); err != nil {
			panic(e.runtime.NewTypeError(fmt.Sprintf("json: %v", err)))
		}
		return e.runtime.ToValue(v)
	}
}

// SetVariable sets a variable in the JS runtime
func (e *Engine) SetVariable(name string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.variables[name] = value
	e.runtime.Set(name, value)
}

// SetVariables sets multiple variables
func (e *Engine) SetVariables(vars map[string]interface{}) {
	for k, v := range vars {
		e.SetVariable(k, v)
	}
}

// Variable returns a previously set variable.
func (e *Engine) Variable(name string) (interface{}, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.variables[name]
	return v, ok
}

// Eval evaluates a JavaScript expression and returns the result
func (e *Engine) Eval(script string) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.runtime.RunString(script)
	if err != nil {
		return nil, fmt.Errorf("JS eval error: %w", err)
	}

	return result.Export(), nil
}

// EvalString evaluates and returns result as string
func (e *Engine) EvalString(script string) (string, error) {
	result, err := e.Eval(script)
	if err != nil {
		return "", err
	}

	if result == nil {
		return "", nil
	}

	return fmt.Sprintf("%v", result), nil
}

// EvalBool evaluates an assertion. Only a boolean true passes; any other
// value, including truthy non-booleans, is reported as an error so typos
// like "inView.y = 0" do not pass silently.
func (e *Engine) EvalBool(script string) (bool, error) {
	result, err := e.Eval(script)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("assertion %q evaluated to %v (%T), want a boolean", script, result, result)
	}
	return b, nil
}

// Interrupt stops a running evaluation, e.g. an accidental infinite loop.
func (e *Engine) Interrupt(reason string) {
	e.runtime.Interrupt(reason)
}

// ExpandVariables expands ${...} expressions in a string using JS evaluation.
// Unlike assertions, a failing expression is an error: a page path with an
// unresolved placeholder would load the wrong document.
func (e *Engine) ExpandVariables(text string) (string, error) {
	result := text
	start := 0

	for {
		idx := strings.Index(result[start:], "${")
		if idx == -1 {
			break
		}
		idx += start

		// Find matching }
		depth := 1
		end := idx + 2
		for end < len(result) && depth > 0 {
			switch result[end] {
			case '{':
				depth++
			case '}':
				depth--
			}
			end++
		}
		if depth != 0 {
			return "", fmt.Errorf("unterminated expression in %q", text)
		}

		expr := result[idx+2 : end-1]
		value, err := e.EvalString(expr)
		if err != nil {
			return "", fmt.Errorf("expanding ${%s}: %w", expr, err)
		}

		result = result[:idx] + value + result[end:]
		start = idx + len(value)
	}

	return result, nil
}
