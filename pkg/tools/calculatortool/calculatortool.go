// Package calculatortool implements the built-in "calculator" tool:
// a stateless evaluator for a single unary, binary, or named-constant
// arithmetic operation. Grounded in structure on the sibling tool
// packages (a unified Args struct keyed by a discriminant field,
// invopop/jsonschema for Schema()) with the actual arithmetic done via
// expr-lang/expr — the expression-evaluation library the reference
// corpus's comparable orchestration projects (tombee/conductor,
// smilemakc/mbflow) depend on for sandboxed numeric evaluation — rather
// than a hand-rolled switch over operator strings.
package calculatortool

import (
	"math"

	"github.com/expr-lang/expr"

	"github.com/kestrelrun/conductor/pkg/apperrors"
	"github.com/kestrelrun/conductor/pkg/tool"
)

// Args is the unified argument shape for every calculator kind; which
// fields are read depends on Kind.
type Args struct {
	Kind  string  `json:"kind" jsonschema:"required,enum=unary,enum=binary,enum=constant,description=Which operation shape to evaluate"`
	Op    string  `json:"op,omitempty" jsonschema:"description=Operator name, required for unary/binary"`
	Value float64 `json:"value,omitempty" jsonschema:"description=Operand, required for unary"`
	A     float64 `json:"a,omitempty" jsonschema:"description=First operand, required for binary"`
	B     float64 `json:"b,omitempty" jsonschema:"description=Second operand, required for binary"`
	Name  string  `json:"name,omitempty" jsonschema:"description=Constant name, required for constant"`
}

var unaryOps = map[string]string{
	"sqrt": "sqrt(value)", "abs": "abs(value)", "neg": "-value",
	"floor": "floor(value)", "ceil": "ceil(value)", "round": "round(value)",
}

var binaryOps = map[string]string{
	"add": "a + b", "sub": "a - b", "mul": "a * b", "div": "a / b",
	"pow": "a ** b", "mod": "mod(a, b)",
}

var constants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

type Tool struct {
	schema map[string]any
}

func New() *Tool {
	return &Tool{schema: tool.SchemaOf[Args]()}
}

func (t *Tool) Name() string        { return "calculator" }
func (t *Tool) Description() string {
	return "Evaluate a single unary, binary, or named-constant arithmetic operation and return the numeric result."
}
func (t *Tool) IsLongRunning() bool    { return false }
func (t *Tool) RequiresApproval() bool { return false }
func (t *Tool) RiskLevel() string      { return "low" }
func (t *Tool) Schema() map[string]any { return t.schema }

func (t *Tool) Call(_ tool.Context, raw map[string]any) (map[string]any, error) {
	args := parseArgs(raw)

	switch args.Kind {
	case "unary":
		return evalUnary(args.Op, args.Value)
	case "binary":
		return evalBinary(args.Op, args.A, args.B)
	case "constant":
		v, ok := constants[args.Name]
		if !ok {
			return nil, apperrors.Validation("unknown constant " + args.Name)
		}
		return map[string]any{"result": v}, nil
	default:
		return nil, apperrors.Validation("unknown calculator kind " + args.Kind)
	}
}

func evalUnary(op string, value float64) (map[string]any, error) {
	src, ok := unaryOps[op]
	if !ok {
		return nil, apperrors.Validation("unknown unary op " + op)
	}
	return run(src, map[string]any{"value": value})
}

func evalBinary(op string, a, b float64) (map[string]any, error) {
	if op == "div" && b == 0 {
		return nil, apperrors.New(apperrors.KindValidation, "division by zero")
	}
	if op == "mod" && b == 0 {
		return nil, apperrors.New(apperrors.KindValidation, "modulo by zero")
	}
	src, ok := binaryOps[op]
	if !ok {
		return nil, apperrors.Validation("unknown binary op " + op)
	}
	return run(src, map[string]any{"a": a, "b": b})
}

func run(src string, env map[string]any) (map[string]any, error) {
	program, err := expr.Compile(src, expr.Env(env), expr.AsFloat64())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "invalid calculator expression", err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "expression evaluation failed", err)
	}
	if f, ok := result.(float64); ok && math.IsNaN(f) {
		return nil, apperrors.New(apperrors.KindValidation, "operation produced an undefined result")
	}
	return map[string]any{"result": result}, nil
}

func parseArgs(raw map[string]any) Args {
	var a Args
	a.Kind, _ = raw["kind"].(string)
	a.Op, _ = raw["op"].(string)
	a.Name, _ = raw["name"].(string)
	a.Value = floatOf(raw["value"])
	a.A = floatOf(raw["a"])
	a.B = floatOf(raw["b"])
	return a
}

func floatOf(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

var _ tool.CallableTool = (*Tool)(nil)
