package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

// initCELEnv 初始化 CEL 环境，定义变量和函数
func initCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		// value：当前列转换后的数值（数值 / 布尔列），类别列为 0
		cel.Variable("value", cel.DoubleType),
		// raw：当前列的原始请求值
		cel.Variable("raw", cel.DynType),
		// record：整条请求记录
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
		// 允许 value >= 0 这类 double 与 int 字面量的比较
		cel.CrossTypeNumericComparisons(true),
	)
}

// getCELEnv 获取或创建 CEL 环境
func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = initCELEnv()
	})
	return celEnv, celEnvErr
}

// Rule 是编译后的列校验规则，使用 CEL (Common Expression Language) 实现。
// CEL 具有类型安全、高性能、线程安全等特性，编译后的 Rule 可被并发请求共享。
//
// 表达式语法（CEL 标准语法）：
//   - 数值：value >= 0 / value <= 1440
//   - 原始值：raw != "" / raw in ["male", "female"]
//   - 跨列：record.runs_count > 0 || value == 0
//
// 示例：
//   - `value >= 0` → 屏幕时间等物理量非负
//   - `value >= 0 && value <= 1` → 比例类特征
type Rule struct {
	Expr string
	prg  cel.Program
}

// Compile 编译规则表达式，表达式必须返回布尔值。
func Compile(expr string) (*Rule, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %v", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("expression must return boolean, got %v", ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %v", err)
	}
	return &Rule{Expr: expr, prg: prg}, nil
}

// Evaluate 执行规则，返回是否通过。
func (r *Rule) Evaluate(value float64, raw any, record map[string]any) (bool, error) {
	if record == nil {
		record = map[string]any{}
	}
	out, _, err := r.prg.Eval(map[string]any{
		"value":  value,
		"raw":    raw,
		"record": record,
	})
	if err != nil {
		// 访问不存在的 record 字段会报错，规则应使用 has(record.x) 或 "x" in record
		return false, fmt.Errorf("eval error: %v", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}
