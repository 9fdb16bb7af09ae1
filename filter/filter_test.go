// Copyright 2026 The Traceplane Authors
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"errors"
	"testing"
)

func TestCompileSimpleComparison(t *testing.T) {
	bytecode, err := NewCompiler().Compile("pid == 1234")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if bytecode.Source() != "pid == 1234" {
		t.Errorf("Source = %q, want original expression", bytecode.Source())
	}

	want := []Instruction{
		{Op: OpLoadField, Field: "pid"},
		{Op: OpLoadNumber, Number: 1234},
		{Op: OpEqual},
	}
	got := bytecode.Instructions()
	if len(got) != len(want) {
		t.Fatalf("program length = %d, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("instruction %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name       string
		expression string
	}{
		{"empty", ""},
		{"dangling operator", "pid =="},
		{"chained comparison", "1 < pid < 100"},
		{"unbalanced paren", "(pid == 1"},
		{"garbage", "@@@"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewCompiler().Compile(test.expression)
			if err == nil {
				t.Fatal("Compile succeeded, want error")
			}
			var compileErr *CompileError
			if !errors.As(err, &compileErr) {
				t.Fatalf("err = %v (%T), want *CompileError", err, err)
			}
			if compileErr.Expression != test.expression {
				t.Errorf("CompileError.Expression = %q, want %q", compileErr.Expression, test.expression)
			}
		})
	}
}

func TestEval(t *testing.T) {
	fields := map[string]any{
		"pid":           int64(1234),
		"uid":           uint32(0),
		"comm":          "nginx",
		"$ctx.hostname": "build-07",
		"interactive":   true,
	}

	tests := []struct {
		expression string
		want       bool
	}{
		{"pid == 1234", true},
		{"pid != 1234", false},
		{"pid > 1000 && pid < 2000", true},
		{"pid > 2000 || uid == 0", true},
		{"!(uid == 0)", false},
		{`comm == "nginx"`, true},
		{`comm != "bash"`, true},
		{`comm < "openssh"`, true},
		{`$ctx.hostname == "build-07" && comm == "nginx"`, true},
		{"interactive", true},
		{"uid", false},
		{"pid >= 1234 && pid <= 1234", true},
	}
	compiler := NewCompiler()
	for _, test := range tests {
		t.Run(test.expression, func(t *testing.T) {
			bytecode, err := compiler.Compile(test.expression)
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			got, err := bytecode.Eval(fields)
			if err != nil {
				t.Fatalf("Eval: %v", err)
			}
			if got != test.want {
				t.Errorf("Eval = %v, want %v", got, test.want)
			}
		})
	}
}

func TestEvalErrors(t *testing.T) {
	fields := map[string]any{
		"pid":  int64(1),
		"comm": "sh",
	}
	tests := []struct {
		name       string
		expression string
	}{
		{"unknown field", "nonexistent == 1"},
		{"type mismatch", `pid == "sh"`},
		{"ordering on booleans", "(pid == 1) < (pid == 2)"},
	}
	compiler := NewCompiler()
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			bytecode, err := compiler.Compile(test.expression)
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			if _, err := bytecode.Eval(fields); err == nil {
				t.Error("Eval succeeded, want error")
			}
		})
	}
}

func TestStringEscapes(t *testing.T) {
	bytecode, err := NewCompiler().Compile(`comm == "a\"b"`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	match, err := bytecode.Eval(map[string]any{"comm": `a"b`})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if !match {
		t.Error("escaped quote literal did not match")
	}
}
