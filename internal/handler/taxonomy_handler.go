package handler

import (
	"net/http"
	"slices"
	"strings"

	"itemhub/internal/model"
	"itemhub/internal/service"
	"itemhub/internal/taxonomy"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

const (
	defaultEntityLimit = 100
	maxEntityLimit     = 1000
)

type TaxonomyHandler struct {
	registry     *taxonomy.Registry
	termService  service.TaxonomyTermService
	assocService service.AssociationService
}

func NewTaxonomyHandler(registry *taxonomy.Registry, termService service.TaxonomyTermService, assocService service.AssociationService) *TaxonomyHandler {
	return &TaxonomyHandler{
		registry:     registry,
		termService:  termService,
		assocService: assocService,
	}
}

// RegisterRoutes 挂载 /taxonomies 下的全部路由。
func (h *TaxonomyHandler) RegisterRoutes(rg *gin.RouterGroup) {
	tax := rg.Group("/taxonomies")
	tax.GET("", h.ListDefinitions)
	tax.GET("/:key", h.GetDefinition)
	tax.GET("/:key/tree", h.Tree)
	tax.GET("/:key/terms", h.ListTerms)
	tax.POST("/:key/terms", h.CreateTerm)
	tax.GET("/:key/terms/:id", h.GetTerm)
	tax.PUT("/:key/terms/:id", h.UpdateTerm)
	tax.DELETE("/:key/terms/:id", h.DeleteTerm)
	tax.PUT("/:key/terms/:id/parent", h.SetParent)
	tax.GET("/:key/terms/:id/descendants", h.Descendants)
	tax.GET("/:key/terms/:id/ancestors", h.Ancestors)
	tax.GET("/:key/terms/:id/entities", h.Entities)
}

type termRequest struct {
	Name        string `json:"name" binding:"required"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	ParentID    *uint  `json:"parentId"`
}

func (r termRequest) toInput() service.TermInput {
	return service.TermInput{
		Name:        r.Name,
		Slug:        r.Slug,
		Description: r.Description,
		ParentID:    r.ParentID,
	}
}

// parentRequest 中 parentId 为 null 或 0 表示提升为根节点。
type parentRequest struct {
	ParentID *uint `json:"parentId"`
}

func (h *TaxonomyHandler) ListDefinitions(c *gin.Context) {
	respondOK(c, "Taxonomies retrieved successfully", slices.Collect(h.registry.All()))
}

func (h *TaxonomyHandler) GetDefinition(c *gin.Context) {
	def, err := h.registry.Lookup(c.Param("key"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Taxonomy retrieved successfully", def)
}

func (h *TaxonomyHandler) Tree(c *gin.Context) {
	tree, err := h.termService.Tree(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Taxonomy tree retrieved successfully", tree)
}

// ListTerms 返回全部 term；带 parent 参数时只返回直接子节点，parent=root 表示根节点。
func (h *TaxonomyHandler) ListTerms(c *gin.Context) {
	raw, byParent := c.GetQuery("parent")
	if !byParent {
		terms, err := h.termService.ListTerms(c.Request.Context(), c.Param("key"))
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, "Taxonomy terms retrieved successfully", terms)
		return
	}

	var parentID *uint
	if raw = strings.TrimSpace(raw); raw != "" && raw != "root" {
		id, err := cast.ToUintE(raw)
		if err != nil || id == 0 {
			respondBadRequest(c, "Invalid parent")
			return
		}
		parentID = &id
	}
	terms, err := h.termService.Children(c.Request.Context(), c.Param("key"), parentID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Taxonomy terms retrieved successfully", terms)
}

func (h *TaxonomyHandler) CreateTerm(c *gin.Context) {
	var req termRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}

	term, err := h.termService.CreateTerm(c.Request.Context(), c.Param("key"), req.toInput())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"code":    http.StatusCreated,
		"message": "Taxonomy term created successfully",
		"data":    term,
	})
}

func (h *TaxonomyHandler) GetTerm(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	term, err := h.termService.GetTerm(c.Request.Context(), c.Param("key"), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Taxonomy term retrieved successfully", term)
}

func (h *TaxonomyHandler) UpdateTerm(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req termRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}

	term, err := h.termService.UpdateTerm(c.Request.Context(), c.Param("key"), id, req.toInput())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Taxonomy term updated successfully", term)
}

// DeleteTerm strategy=protect（默认）存在子节点时拒绝删除；strategy=reparent 把子节点挂到被删节点的父节点下。
func (h *TaxonomyHandler) DeleteTerm(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	strategy, err := service.ParseDeleteStrategy(c.DefaultQuery("strategy", string(service.DeleteProtect)))
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.termService.DeleteTerm(c.Request.Context(), c.Param("key"), id, strategy); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Taxonomy term deleted successfully", nil)
}

func (h *TaxonomyHandler) SetParent(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req parentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}

	if err := h.termService.SetParent(c.Request.Context(), c.Param("key"), id, req.ParentID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Taxonomy term parent updated successfully", nil)
}

func (h *TaxonomyHandler) Descendants(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	ids, err := h.termService.Descendants(c.Request.Context(), c.Param("key"), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Taxonomy term descendants retrieved successfully", ids)
}

func (h *TaxonomyHandler) Ancestors(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	ids, err := h.termService.Ancestors(c.Request.Context(), c.Param("key"), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Taxonomy term ancestors retrieved successfully", ids)
}

// Entities 返回持有该 term 的实体，descendants=true 时包含后代 term 的持有者。
// 结果以流的方式读取，达到 limit 后立即停止，不会把整张关联表读进内存。
func (h *TaxonomyHandler) Entities(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	limit := cast.ToInt(c.Query("limit"))
	if limit <= 0 {
		limit = defaultEntityLimit
	}
	if limit > maxEntityLimit {
		limit = maxEntityLimit
	}

	refs := make([]model.EntityRef, 0)
	truncated := false
	for ref, err := range h.assocService.EntitiesWithTerm(c.Request.Context(), c.Param("key"), id, cast.ToBool(c.Query("descendants"))) {
		if err != nil {
			respondError(c, err)
			return
		}
		if len(refs) == limit {
			truncated = true
			break
		}
		refs = append(refs, ref)
	}
	respondOK(c, "Taxonomy term entities retrieved successfully", gin.H{
		"entities":  refs,
		"truncated": truncated,
	})
}
