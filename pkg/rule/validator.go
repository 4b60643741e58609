// Package rule 提供结构体和字段验证功能的封装，基于 go-playground/validator 实现.
// 校验标签统一使用 `rule`，错误中的字段名取自 mapstructure 标签，便于直接对应配置键.
package rule

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	inst *validator.Validate
	once sync.Once

	extPattern = regexp.MustCompile(`^[a-z0-9]*$`)
)

// initValidator 尝试复用 gin 的 validator 引擎；若不可用则新建，并注册字段名函数与自定义规则.
func initValidator() {
	inst = nil

	if engine := binding.Validator.Engine(); engine != nil {
		if v, ok := engine.(*validator.Validate); ok {
			inst = v
		}
	}

	if inst == nil {
		inst = validator.New()
	}

	inst.SetTagName("rule")
	inst.RegisterTagNameFunc(fieldName)

	// ext: 小写、不含点的扩展名，空串表示允许无扩展名文件
	_ = inst.RegisterValidation("ext", func(fl validator.FieldLevel) bool {
		return extPattern.MatchString(fl.Field().String())
	})
}

// fieldName 依次使用 mapstructure、json 标签作为错误中的字段名.
func fieldName(f reflect.StructField) string {
	for _, key := range []string{"mapstructure", "json"} {
		name, _, _ := strings.Cut(f.Tag.Get(key), ",")
		if name != "" && name != "-" {
			return name
		}
	}

	return f.Name
}

// lazyInit 初始化全局 validator（幂等）.
func lazyInit() {
	once.Do(initValidator)
}

// Engine 返回全局 *validator.Validate，若未初始化则先初始化.
func Engine() *validator.Validate {
	lazyInit()

	return inst
}

// RegisterValidation 代理 RegisterValidation，确保已初始化.
func RegisterValidation(tag string, fn validator.Func, opts ...bool) error {
	lazyInit()

	return inst.RegisterValidation(tag, fn, opts...)
}

// ValidationErrors 是格式化后的验证错误字典，键为点分隔的字段路径（如 webhook.url），值为可读错误信息.
type ValidationErrors map[string]string

// Error 实现 error 接口，按键排序输出以保证稳定.
func (v ValidationErrors) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v[k])
	}

	return strings.Join(parts, "; ")
}

// ValidateStruct 对结构体执行完整校验，校验失败时返回 ValidationErrors.
func ValidateStruct(s any) error {
	lazyInit()

	return Translate(inst.Struct(s))
}

// ValidateVar 按规则对单个变量校验，例如: ValidateVar("abc", "required,email").
func ValidateVar(field any, tag string) error {
	lazyInit()

	return inst.Var(field, tag)
}

// RegisterAlias 包装 RegisterAlias，便于注册别名规则.
func RegisterAlias(alias, rules string) {
	lazyInit()

	inst.RegisterAlias(alias, rules)
}

// Translate 把 validator.ValidationErrors 转换为 ValidationErrors；其他错误原样返回.
func Translate(err error) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := make(ValidationErrors, len(verrs))
	for _, fe := range verrs {
		out[fieldPath(fe.Namespace())] = message(fe)
	}

	return out
}

// fieldPath 去掉顶层结构体名，例如 AppConfig.webhook.url -> webhook.url.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}

	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of [" + fe.Param() + "]"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "ext":
		return fmt.Sprintf("%q must be a lower-case extension without a dot", fe.Value())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
