package jsengine

import (
	"strings"
	"testing"

	"github.com/devicelab-dev/geoprobe/pkg/core"
)

func TestNew(t *testing.T) {
	engine := New()

	if engine == nil {
		t.Fatal("expected engine to be created")
	}
	if engine.runtime == nil {
		t.Fatal("expected runtime to be initialized")
	}
}

func TestEval(t *testing.T) {
	engine := New()

	tests := []struct {
		name     string
		script   string
		expected interface{}
	}{
		{"simple number", "1 + 2", int64(3)},
		{"string concat", "'hello' + ' ' + 'world'", "hello world"},
		{"boolean", "true && false", false},
		{"null coalescing", "null ?? 'default'", "default"},
		{"array length", "[1, 2, 3].length", int64(3)},
		{"object property", "({name: 'test'}).name", "test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.Eval(tt.script)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %v (%T), got %v (%T)", tt.expected, tt.expected, result, result)
			}
		})
	}
}

func TestSetVariable(t *testing.T) {
	engine := New()

	engine.SetVariable("username", "john")
	engine.SetVariable("count", 42)

	result, err := engine.EvalString("username")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "john" {
		t.Errorf("expected 'john', got %q", result)
	}

	result, err = engine.EvalString("count")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "42" {
		t.Errorf("expected '42', got %q", result)
	}

	if v, ok := engine.Variable("count"); !ok || v != 42 {
		t.Errorf("Variable(count) = %v, %v", v, ok)
	}
}

func TestEvalBool_GeometryVariables(t *testing.T) {
	engine := New()
	engine.SetVariables(map[string]interface{}{
		"inView":   core.ViewportPoint{X: 10, Y: 410},
		"location": core.PagePoint{X: 10, Y: 5010},
		"size":     core.Size{Width: 100, Height: 100},
		"window":   core.Size{Width: 1024, Height: 700},
	})

	tests := []struct {
		name   string
		script string
		want   bool
	}{
		{"in viewport", "inView.y >= 0 && inView.y <= window.height - 100", true},
		{"within helper", "within(inView.y, 0, window.height - size.height)", true},
		{"document position", "location.y === 5010", true},
		{"false assertion", "location.x > 10", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.EvalBool(tt.script)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("EvalBool(%q) = %v, want %v", tt.script, got, tt.want)
			}
		})
	}
}

func TestEvalBool_NonBoolean(t *testing.T) {
	engine := New()
	engine.SetVariable("inView", core.ViewportPoint{X: 1, Y: 2})

	if _, err := engine.EvalBool("inView.y = 0"); err == nil {
		t.Error("expected error for non-boolean result")
	}
	if _, err := engine.EvalBool("inView.z.w"); err == nil {
		t.Error("expected error for runtime failure")
	}
}

func TestExpandVariables(t *testing.T) {
	engine := New()

	engine.SetVariable("name", "John")
	engine.SetVariable("age", 30)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple var", "Hello ${name}", "Hello John"},
		{"expression", "Age: ${age + 5}", "Age: 35"},
		{"multiple vars", "${name} is ${age}", "John is 30"},
		{"no vars", "plain text", "plain text"},
		{"string concat", "${name + ' Doe'}", "John Doe"},
		{"nested braces", "${({a: 1}).a}", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.ExpandVariables(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestExpandVariablesErrors(t *testing.T) {
	engine := New()

	if _, err := engine.ExpandVariables("Value: ${undefinedVar}"); err == nil {
		t.Error("expected error for undefined variable")
	}
	_, err := engine.ExpandVariables("Value: ${open")
	if err == nil || !strings.Contains(err.Error(), "unterminated") {
		t.Errorf("expected unterminated error, got %v", err)
	}
}

func TestConsoleLog(t *testing.T) {
	engine := New()

	// Just make sure it doesn't panic without a log file
	_, err := engine.Eval(`
		console.log("test message");
		console.error("error message");
		console.warn("warning message");
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestJSON(t *testing.T) {
	engine := New()

	_, err := engine.Eval(`
		var data = json('{"name": "test", "value": 123}');
		parsedName = data.name;
		parsedValue = data.value;
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	name, _ := engine.EvalString("parsedName")
	if name != "test" {
		t.Errorf("expected 'test', got %q", name)
	}

	value, _ := engine.EvalString("parsedValue")
	if value != "123" {
		t.Errorf("expected '123', got %q", value)
	}
}

func TestEvalError(t *testing.T) {
	engine := New()

	_, err := engine.Eval("invalid javascript {{{{")
	if err == nil {
		t.Error("expected error for invalid javascript")
	}
}
