/*
 * @module api/routes
 * @description API路由配置模块，负责初始化和配置所有HTTP路由
 * @architecture RESTful API架构
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 无状态HTTP请求处理
 * @rules 遵循RESTful API设计规范，统一错误处理和响应格式
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/cors, github.com/go-chi/render
 * @refs api/controllers, api/middleware
 */

package api

import (
	"dataprep-service/api/controllers"
	authmiddleware "dataprep-service/api/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

// InitRoute 初始化所有API路由
func InitRoute(r *chi.Mux) {
	// 基础中间件
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// CORS配置
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// API Key鉴权，未配置API_KEY_HASH时关闭
	r.Use(authmiddleware.NewAPIKeyAuthMiddleware().Middleware)

	// 健康检查
	healthController := controllers.NewHealthController()
	r.Get("/health", healthController.Health)
	r.Get("/ready", healthController.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		// 流水线运行管理
		r.Route("/pipeline/runs", func(r chi.Router) {
			pipelineController := controllers.NewPipelineController()

			r.Post("/", pipelineController.TriggerRun)
			r.Get("/", pipelineController.GetRunList)
			r.Get("/{id}", pipelineController.GetRun)
			r.Get("/{id}/artifacts", pipelineController.GetRunArtifacts)
		})

		// 系统配置管理
		r.Route("/configs", func(r chi.Router) {
			configController := controllers.NewConfigController()

			r.Get("/", configController.GetAllConfigs)
			r.Post("/batch", configController.BatchUpdateConfigs)
			r.Get("/{key}", configController.GetConfig)
			r.Put("/{key}", configController.UpdateConfig)
		})
	})
}
