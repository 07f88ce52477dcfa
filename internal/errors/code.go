package errors

import (
	pkgErrors "github.com/gaoyong06/go-pkg/errors"
	i18nPkg "github.com/gaoyong06/go-pkg/middleware/i18n"
)

func init() {
	// 初始化全局错误管理器（使用项目特定的配置）
	pkgErrors.InitGlobalErrorManager("i18n", i18nPkg.Language)
}

// 计费 webhook 服务错误码定义
// 错误码格式：SSMMEE (6位数字)，其中 SS=14 表示 billing-webhook-service
// 模块划分：
//   01: 签名验证模块 (鉴权失败，映射为 HTTP 403)
//   02: 事件模块
//   03: 队列模块

// 签名验证模块 (140100-140199)
const (
	// ErrCodeMarketNotFound market 不存在错误
	ErrCodeMarketNotFound = 140101
	// ErrCodeSignatureMissing 签名请求头缺失错误
	ErrCodeSignatureMissing = 140102
	// ErrCodeSignatureMalformed 签名请求头格式错误
	ErrCodeSignatureMalformed = 140103
	// ErrCodeSignatureExpired 签名时间戳超出防重放窗口错误
	ErrCodeSignatureExpired = 140104
	// ErrCodeSignatureMismatch 签名不匹配错误
	ErrCodeSignatureMismatch = 140105
)

// 事件模块 (140200-140299)
const (
	// ErrCodeEventMalformed 事件信封无法解析错误
	ErrCodeEventMalformed = 140201
)

// 队列模块 (140300-140399)
const (
	// ErrCodeEnqueueFailed 事件入队失败错误
	ErrCodeEnqueueFailed = 140301
)
