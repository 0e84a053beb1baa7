/*
 * @module api/controllers/pipeline_controller
 * @description 流水线运行控制器，提供手动触发和运行历史查询的HTTP接口
 * @architecture 分层架构 - 控制器层
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow HTTP请求 -> 参数验证 -> 流水线服务 -> 响应返回
 * @rules 手动触发与调度触发共用同一个单运行闸门，已有运行时返回冲突
 * @dependencies service/pipeline, service/models
 * @refs api/routes.go
 */

package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"dataprep-service/service"
	"dataprep-service/service/models"
	"dataprep-service/service/pipeline"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// PipelineController 流水线运行控制器
type PipelineController struct {
	pipelineService *pipeline.PipelineService
}

// NewPipelineController 创建流水线控制器
func NewPipelineController() *PipelineController {
	return &PipelineController{
		pipelineService: service.GlobalPipelineService,
	}
}

// TriggerRunRequest 手动触发运行请求
type TriggerRunRequest struct {
	CreatedBy string `json:"created_by,omitempty" example:"admin"`
}

// TriggerRun 手动触发流水线运行
// @Summary 手动触发流水线运行
// @Description 创建并异步执行一次完整的预处理流水线运行
// @Description
// @Description **执行流程:**
// @Description 创建工作目录 → 读取数据 → 特征选择/输出目录准备 → 拟合预处理器 → 变换各数据分片 → 清理工作目录 → 清除中间产物
// @Description
// @Description **运行状态流转:**
// @Description pending → running → success/failed
// @Description
// @Description 同一时刻只允许一个运行存在，已有 pending/running 运行时返回冲突。
// @Tags 流水线管理
// @Accept json
// @Produce json
// @Param request body TriggerRunRequest false "触发信息"
// @Success 200 {object} APIResponse{data=models.PipelineRun} "触发成功"
// @Failure 400 {object} APIResponse "请求参数错误"
// @Failure 409 {object} APIResponse "已有运行中的流水线"
// @Failure 500 {object} APIResponse "服务器内部错误"
// @Router /pipeline/runs [post]
func (c *PipelineController) TriggerRun(w http.ResponseWriter, r *http.Request) {
	var req TriggerRunRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.JSON(w, r, BadRequestResponse("请求参数解析失败", err))
			return
		}
	}
	if req.CreatedBy == "" {
		req.CreatedBy = "api"
	}

	run, err := c.pipelineService.TriggerRun(models.RunTriggerManual, req.CreatedBy)
	if err != nil {
		if errors.Is(err, pipeline.ErrRunActive) {
			render.JSON(w, r, ConflictResponse("已有运行中的流水线，请等待其结束", err))
			return
		}
		render.JSON(w, r, InternalErrorResponse("触发流水线运行失败", err))
		return
	}

	render.JSON(w, r, SuccessResponse("流水线运行已触发", run))
}

// GetRunList 获取运行列表
// @Summary 获取流水线运行列表
// @Description 分页获取运行历史，按创建时间倒序
// @Description
// @Description **查询参数说明:**
// @Description - page: 页码，默认1
// @Description - size: 每页大小，默认10，最大100
// @Description - status: 运行状态过滤（pending/running/success/failed）
// @Tags 流水线管理
// @Accept json
// @Produce json
// @Param page query int false "页码" default(1)
// @Param size query int false "每页大小" default(10)
// @Param status query string false "运行状态"
// @Success 200 {object} PaginatedResponse{data=[]models.PipelineRun} "获取成功"
// @Failure 500 {object} APIResponse "服务器内部错误"
// @Router /pipeline/runs [get]
func (c *PipelineController) GetRunList(w http.ResponseWriter, r *http.Request) {
	page := 1
	size := 10
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(r.URL.Query().Get("size")); err == nil && s > 0 && s <= 100 {
		size = s
	}
	status := r.URL.Query().Get("status")

	runs, total, err := c.pipelineService.GetRunList(page, size, status)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("获取运行列表失败", err))
		return
	}

	render.JSON(w, r, PaginatedSuccessResponse("获取运行列表成功", runs, total, page, size))
}

// GetRun 获取运行详情
// @Summary 获取流水线运行详情
// @Description 根据运行ID获取运行详情，包含各阶段的执行状态
// @Tags 流水线管理
// @Accept json
// @Produce json
// @Param id path string true "运行ID"
// @Success 200 {object} APIResponse{data=models.PipelineRun} "获取成功"
// @Failure 404 {object} APIResponse "运行不存在"
// @Failure 500 {object} APIResponse "服务器内部错误"
// @Router /pipeline/runs/{id} [get]
func (c *PipelineController) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		render.JSON(w, r, BadRequestResponse("运行ID不能为空", nil))
		return
	}

	run, err := c.pipelineService.GetRun(id)
	if err != nil {
		render.JSON(w, r, NotFoundResponse("运行不存在", err))
		return
	}

	render.JSON(w, r, SuccessResponse("获取运行详情成功", run))
}

// GetRunArtifacts 获取运行产物列表
// @Summary 获取流水线运行的产物列表
// @Description 根据运行ID获取各阶段发布的产物记录，按创建时间升序
// @Description 运行结束后中间产物会被清除，通常只有运行中或清理失败的运行能查到产物。
// @Tags 流水线管理
// @Accept json
// @Produce json
// @Param id path string true "运行ID"
// @Success 200 {object} APIResponse{data=[]models.StageArtifact} "获取成功"
// @Failure 404 {object} APIResponse "运行不存在"
// @Failure 500 {object} APIResponse "服务器内部错误"
// @Router /pipeline/runs/{id}/artifacts [get]
func (c *PipelineController) GetRunArtifacts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		render.JSON(w, r, BadRequestResponse("运行ID不能为空", nil))
		return
	}

	artifacts, err := c.pipelineService.GetRunArtifacts(id)
	if err != nil {
		render.JSON(w, r, NotFoundResponse("运行不存在", err))
		return
	}

	render.JSON(w, r, SuccessResponse("获取运行产物成功", artifacts))
}
