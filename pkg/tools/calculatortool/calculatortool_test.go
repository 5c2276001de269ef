package calculatortool_test

import (
	"testing"

	"github.com/kestrelrun/conductor/pkg/apperrors"
	"github.com/kestrelrun/conductor/pkg/tools/calculatortool"
)

func TestCalculator_Unary(t *testing.T) {
	tl := calculatortool.New()
	out, err := tl.Call(nil, map[string]any{"kind": "unary", "op": "sqrt", "value": 144.0})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out["result"] != 12.0 {
		t.Fatalf("want 12.0, got %v", out["result"])
	}
}

func TestCalculator_Binary(t *testing.T) {
	tl := calculatortool.New()
	out, err := tl.Call(nil, map[string]any{"kind": "binary", "op": "add", "a": 3.0, "b": 4.0})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out["result"] != 7.0 {
		t.Fatalf("want 7.0, got %v", out["result"])
	}
}

func TestCalculator_Constant(t *testing.T) {
	tl := calculatortool.New()
	out, err := tl.Call(nil, map[string]any{"kind": "constant", "name": "pi"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out["result"].(float64) < 3.14 || out["result"].(float64) > 3.15 {
		t.Fatalf("want pi, got %v", out["result"])
	}
}

func TestCalculator_DivisionByZeroReturnsTypedError(t *testing.T) {
	tl := calculatortool.New()
	_, err := tl.Call(nil, map[string]any{"kind": "binary", "op": "div", "a": 1.0, "b": 0.0})
	if err == nil {
		t.Fatal("want an error dividing by zero, got nil")
	}
	if apperrors.KindOf(err) != apperrors.KindValidation {
		t.Fatalf("want KindValidation, got %v", err)
	}
}

func TestCalculator_UnknownOpIsValidationError(t *testing.T) {
	tl := calculatortool.New()
	_, err := tl.Call(nil, map[string]any{"kind": "unary", "op": "frobnicate", "value": 1.0})
	if apperrors.KindOf(err) != apperrors.KindValidation {
		t.Fatalf("want KindValidation for an unrecognized op, got %v", err)
	}
}
