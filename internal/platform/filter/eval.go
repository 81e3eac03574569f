package filter

import (
	"cmp"
	"fmt"

	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// Resolver returns a value for a field name.
type Resolver func(name string) (any, bool)

// Evaluate evaluates a parsed filter expression against a resolver.
func Evaluate(e *expr.Expr, resolve Resolver) (bool, error) {
	if e == nil {
		return true, nil
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_CallExpr:
		return evalCall(kind.CallExpr, resolve)
	default:
		return false, fmt.Errorf("unsupported expression type: %T", kind)
	}
}

func evalCall(call *expr.Expr_Call, resolve Resolver) (bool, error) {
	switch call.Function {
	case "AND":
		return evalAnd(call.Args, resolve)
	case "OR":
		return evalOr(call.Args, resolve)
	case "NOT":
		if len(call.Args) != 1 {
			return false, fmt.Errorf("NOT requires 1 argument")
		}
		ok, err := Evaluate(call.Args[0], resolve)
		return !ok, err
	case "=", "!=", "<", "<=", ">", ">=":
		return evalCompare(call.Args, resolve, call.Function)
	default:
		return false, fmt.Errorf("unsupported function: %s", call.Function)
	}
}

func evalAnd(args []*expr.Expr, resolve Resolver) (bool, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("AND requires 2 arguments")
	}
	left, err := Evaluate(args[0], resolve)
	if err != nil || !left {
		return left, err
	}
	return Evaluate(args[1], resolve)
}

func evalOr(args []*expr.Expr, resolve Resolver) (bool, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("OR requires 2 arguments")
	}
	left, err := Evaluate(args[0], resolve)
	if err != nil || left {
		return left, err
	}
	return Evaluate(args[1], resolve)
}

func evalCompare(args []*expr.Expr, resolve Resolver, op string) (bool, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("comparison requires 2 arguments")
	}
	ident, ok := args[0].GetExprKind().(*expr.Expr_IdentExpr)
	if !ok {
		return false, fmt.Errorf("expected identifier, got %T", args[0].GetExprKind())
	}
	left, ok := resolve(ident.IdentExpr.GetName())
	if !ok {
		return false, fmt.Errorf("unknown field: %s", ident.IdentExpr.GetName())
	}
	constant, ok := args[1].GetExprKind().(*expr.Expr_ConstExpr)
	if !ok {
		return false, fmt.Errorf("expected constant, got %T", args[1].GetExprKind())
	}

	order, err := compareValues(left, constant.ConstExpr)
	if err != nil {
		return false, err
	}
	switch op {
	case "=":
		return order == 0, nil
	case "!=":
		return order != 0, nil
	case "<":
		return order < 0, nil
	case "<=":
		return order <= 0, nil
	case ">":
		return order > 0, nil
	default:
		return order >= 0, nil
	}
}

func compareValues(left any, right *expr.Constant) (int, error) {
	switch l := left.(type) {
	case string:
		r, ok := right.GetConstantKind().(*expr.Constant_StringValue)
		if !ok {
			return 0, fmt.Errorf("type mismatch: string vs %T", right.GetConstantKind())
		}
		return cmp.Compare(l, r.StringValue), nil
	case int:
		r, ok := right.GetConstantKind().(*expr.Constant_Int64Value)
		if !ok {
			return 0, fmt.Errorf("type mismatch: int vs %T", right.GetConstantKind())
		}
		return cmp.Compare(int64(l), r.Int64Value), nil
	default:
		return 0, fmt.Errorf("unsupported value type: %T", left)
	}
}
