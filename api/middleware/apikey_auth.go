/*
 * @module api/middleware/apikey_auth
 * @description API Key鉴权中间件，校验变更类请求携带的X-API-Key
 * @architecture 中间件模式 - HTTP请求拦截和验证
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow Key提取 -> bcrypt比对 -> 下一个处理器
 * @rules 只拦截变更类请求；未配置API_KEY_HASH时鉴权关闭
 * @dependencies net/http, golang.org/x/crypto/bcrypt
 * @refs api/routes.go
 */

package middleware

import (
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/render"
	"golang.org/x/crypto/bcrypt"
)

// APIKeyHeader API Key请求头
const APIKeyHeader = "X-API-Key"

// APIKeyAuthMiddleware API Key认证中间件
type APIKeyAuthMiddleware struct {
	keyHash []byte
	// 白名单路径（不需要鉴权）
	whitelistPaths []string
}

// NewAPIKeyAuthMiddleware 创建API Key认证中间件实例
func NewAPIKeyAuthMiddleware() *APIKeyAuthMiddleware {
	return &APIKeyAuthMiddleware{
		keyHash: []byte(os.Getenv("API_KEY_HASH")),
		whitelistPaths: []string{
			"/health",  // 健康检查
			"/ready",   // 就绪检查
			"/metrics", // Prometheus指标
			"/swagger", // Swagger文档
		},
	}
}

// Enabled 鉴权是否开启
func (m *APIKeyAuthMiddleware) Enabled() bool {
	return len(m.keyHash) > 0
}

// AddWhitelistPath 添加白名单路径
func (m *APIKeyAuthMiddleware) AddWhitelistPath(path string) {
	m.whitelistPaths = append(m.whitelistPaths, path)
}

// IsWhitelistPath 检查路径是否在白名单中
func (m *APIKeyAuthMiddleware) IsWhitelistPath(path string) bool {
	for _, whitelistPath := range m.whitelistPaths {
		// 支持前缀匹配
		if strings.HasPrefix(path, whitelistPath) {
			return true
		}
	}
	return false
}

// Middleware 认证中间件处理函数
func (m *APIKeyAuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 未配置哈希时鉴权关闭
		if !m.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		// 读操作和白名单路径不拦截
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		if m.IsWhitelistPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			m.respondUnauthorized(w, r, "缺少"+APIKeyHeader+"头")
			return
		}

		if err := bcrypt.CompareHashAndPassword(m.keyHash, []byte(key)); err != nil {
			m.respondUnauthorized(w, r, "API Key校验失败")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// respondUnauthorized 返回401未授权响应
func (m *APIKeyAuthMiddleware) respondUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	render.JSON(w, r, map[string]interface{}{
		"status":  http.StatusUnauthorized,
		"message": message,
		"error":   "Unauthorized",
	})
}
