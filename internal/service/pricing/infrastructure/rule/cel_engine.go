// internal/service/pricing/infrastructure/rule/cel_engine.go
package rule

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"pricewise/internal/service/pricing/domain"
)

// CELEvaluator 是 domain.ExpressionEvaluator 的 CEL 实现。
// 表达式可以访问 product、market（均为 map）以及 hasMarket。
type CELEvaluator struct {
	env      *cel.Env
	programs sync.Map // expr -> cel.Program
}

// NewCELEvaluator 创建求值器，环境在整个进程内共享。
func NewCELEvaluator() (*CELEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("product", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("market", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("hasMarket", cel.BoolType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}
	return &CELEvaluator{env: env}, nil
}

// Compile 检查表达式能否编译且结果为布尔值
func (e *CELEvaluator) Compile(expr string) error {
	_, err := e.program(expr)
	return err
}

// Evaluate 针对事实集合求值
func (e *CELEvaluator) Evaluate(expr string, facts map[string]any) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(facts)
	if err != nil {
		// 访问不存在的 key 等运行期错误按不命中处理，由调用方决定是否记录
		return false, fmt.Errorf("evaluate %q: %w", expr, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q evaluated to %T", domain.ErrInvalidExpression, expr, out.Value())
	}
	return b, nil
}

func (e *CELEvaluator) program(expr string) (cel.Program, error) {
	if p, ok := e.programs.Load(expr); ok {
		return p.(cel.Program), nil
	}
	ast, iss := e.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidExpression, iss.Err())
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: %q returns %s, want bool", domain.ErrInvalidExpression, expr, t)
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidExpression, err)
	}
	actual, _ := e.programs.LoadOrStore(expr, prg)
	return actual.(cel.Program), nil
}
