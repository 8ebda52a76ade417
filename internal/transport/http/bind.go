package http

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"reflect"

	"gnest/internal/kernel"

	"github.com/gin-gonic/gin"
)

// argumentResolver 在运行时为一个参数取值
type argumentResolver func(ctx *kernel.Context, c *gin.Context) (reflect.Value, error)

var (
	ginContextType    = reflect.TypeOf((*gin.Context)(nil))
	kernelContextType = reflect.TypeOf((*kernel.Context)(nil))
	requestType       = reflect.TypeOf((*http.Request)(nil))
	contextType       = reflect.TypeOf((*context.Context)(nil)).Elem()
	fileType          = reflect.TypeOf((*multipart.FileHeader)(nil))
	filesType         = reflect.TypeOf([]*multipart.FileHeader(nil))
	errorType         = reflect.TypeOf((*error)(nil)).Elem()
)

// backendFor 把任意签名的业务函数包装成 kernel.Handler，参数解析器在注册阶段预先生成
func (a *App) backendFor(handler any) (kernel.Handler, error) {
	if h, ok := handler.(kernel.Handler); ok {
		return h, nil
	}
	hVal := reflect.ValueOf(handler)
	hTyp := hVal.Type()
	if hTyp.Kind() != reflect.Func {
		return nil, fmt.Errorf("handler must be a func, got %T", handler)
	}
	switch hTyp.NumOut() {
	case 0, 1:
	case 2:
		if hTyp.Out(1) != errorType {
			return nil, fmt.Errorf("second result of %v must be error", hTyp)
		}
	default:
		return nil, fmt.Errorf("handler %v returns too many values", hTyp)
	}

	resolvers := make([]argumentResolver, hTyp.NumIn())
	for i := 0; i < hTyp.NumIn(); i++ {
		r, err := a.makeParamFactory(hTyp.In(i))
		if err != nil {
			return nil, err
		}
		resolvers[i] = r
	}

	return kernel.HandlerFunc(func(ctx *kernel.Context, _ any) (any, error) {
		c, _ := ctx.Raw.(*gin.Context)
		args := make([]reflect.Value, len(resolvers))
		for i, resolve := range resolvers {
			v, err := resolve(ctx, c)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return results(hVal.Call(args))
	}), nil
}

func results(out []reflect.Value) (any, error) {
	if len(out) == 0 {
		return nil, nil
	}
	last := out[len(out)-1]
	if last.Type() == errorType {
		if !last.IsNil() {
			return nil, last.Interface().(error)
		}
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0].Interface(), nil
}

func (a *App) makeParamFactory(t reflect.Type) (argumentResolver, error) {
	// --- 1. 基础类型处理 (Context, Req) ---
	switch t {
	case ginContextType:
		return func(_ *kernel.Context, c *gin.Context) (reflect.Value, error) { return reflect.ValueOf(c), nil }, nil
	case kernelContextType:
		return func(ctx *kernel.Context, _ *gin.Context) (reflect.Value, error) { return reflect.ValueOf(ctx), nil }, nil
	case contextType:
		return func(ctx *kernel.Context, _ *gin.Context) (reflect.Value, error) {
			return reflect.ValueOf(ctx).Convert(contextType), nil
		}, nil
	case requestType:
		return func(_ *kernel.Context, c *gin.Context) (reflect.Value, error) { return reflect.ValueOf(c.Request), nil }, nil
	}

	// --- 2. 文件处理 ---
	switch t {
	case fileType:
		return func(_ *kernel.Context, c *gin.Context) (reflect.Value, error) {
			f, err := c.FormFile("file")
			if err != nil {
				return reflect.Value{}, bindError(err)
			}
			return reflect.ValueOf(f), nil
		}, nil
	case filesType:
		return func(_ *kernel.Context, c *gin.Context) (reflect.Value, error) {
			form, err := c.MultipartForm()
			if err != nil {
				return reflect.Value{}, bindError(err)
			}
			return reflect.ValueOf(form.File["files"]), nil
		}, nil
	}

	// --- 3. 自定义装饰器处理 (如当前用户) ---
	if factory, ok := a.decorators[t]; ok {
		return func(ctx *kernel.Context, _ *gin.Context) (reflect.Value, error) {
			v, err := factory(ctx)
			if err != nil {
				return reflect.Value{}, err
			}
			if v == nil {
				return reflect.Zero(t), nil
			}
			return reflect.ValueOf(v), nil
		}, nil
	}

	// --- 4. 依赖注入处理 (Provider) ---
	if p, ok := a.providers[t]; ok {
		return func(*kernel.Context, *gin.Context) (reflect.Value, error) { return p, nil }, nil
	}

	// --- 5. 核心：DTO 结构体智能绑定 (Body/Query/Param/Header) ---
	if t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Struct {
		return a.createStructResolver(t.Elem()), nil
	}

	return nil, fmt.Errorf("unsupported parameter type %v", t)
}

// 针对结构体 DTO 的预分析优化
func (a *App) createStructResolver(st reflect.Type) argumentResolver {
	// 在路由注册阶段，先扫描 Tag，决定运行时调用哪些绑定方法
	hasURITag := false
	hasHeaderTag := false
	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		if field.Tag.Get("uri") != "" {
			hasURITag = true
		}
		if field.Tag.Get("header") != "" {
			hasHeaderTag = true
		}
	}

	return func(ctx *kernel.Context, c *gin.Context) (reflect.Value, error) {
		obj := reflect.New(st).Interface()

		// 只有存在相关 Tag 时才调用对应的绑定器
		if hasURITag {
			if err := c.ShouldBindUri(obj); err != nil {
				return reflect.Value{}, bindError(err)
			}
		}
		if hasHeaderTag {
			if err := c.ShouldBindHeader(obj); err != nil {
				return reflect.Value{}, bindError(err)
			}
		}

		// 无请求体时只绑定 Query，避免 JSON 解析空 Body 报 EOF
		var err error
		if c.Request.Method == http.MethodGet || c.Request.ContentLength == 0 {
			err = c.ShouldBindQuery(obj)
		} else {
			err = c.ShouldBind(obj)
		}
		if err != nil {
			return reflect.Value{}, bindError(err)
		}

		// 自动校验
		if err := a.validate.StructCtx(ctx, obj); err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(obj), nil
	}
}
