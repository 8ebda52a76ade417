package http

import (
	"encoding/json"
	"net/http"

	"gnest/internal/interfaces/filters"

	"github.com/gin-gonic/gin"
)

// Render 用于渲染 HTML 模板
type Render struct {
	Name string      // 模板文件名
	Data interface{} // 模板数据
}

// RedirectResult 用于重定向
type RedirectResult struct {
	Code     int    // 状态码 (如 301, 302)
	Location string // 跳转目标地址
}

// DataResult 用于返回原始字节流 (如图片、验证码)
type DataResult struct {
	ContentType string
	Data        []byte
}

// FileResult 用于返回本地文件或触发下载
type FileResult struct {
	FilePath string
	FileName string // 如果不为空，则作为附件下载
}

// respond 根据返回值的类型，自动映射 Gin 的响应方法
func (a *App) respond(c *gin.Context, res any, err error) {
	if c.IsAborted() || c.Writer.Written() {
		return
	}
	if err != nil {
		body := filters.Body(err)
		if body.StatusCode >= http.StatusInternalServerError {
			a.log.Error("request failed", zapRoute(c), zapError(err))
		}
		c.AbortWithStatusJSON(body.StatusCode, body)
		return
	}

	switch v := res.(type) {
	case nil:
		return
	case Render:
		c.HTML(http.StatusOK, v.Name, v.Data)
	case RedirectResult:
		code := v.Code
		if code == 0 {
			code = http.StatusFound
		}
		c.Redirect(code, v.Location)
	case DataResult:
		c.Data(http.StatusOK, v.ContentType, v.Data)
	case FileResult:
		if v.FileName != "" {
			c.FileAttachment(v.FilePath, v.FileName)
		} else {
			c.File(v.FilePath)
		}
	case json.RawMessage: // 缓存命中
		c.Data(http.StatusOK, "application/json; charset=utf-8", v)
	case string: // 返回纯字符串
		c.String(http.StatusOK, v)
	case []byte: // 返回原始字节
		c.Data(http.StatusOK, "application/octet-stream", v)
	case filters.StatusCoder: // 异常处理器给出的响应体
		c.JSON(v.Status(), v)
	default:
		// 默认返回 JSON
		c.JSON(http.StatusOK, res)
	}
}
