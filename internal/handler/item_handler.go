package handler

import (
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"itemhub/internal/config"
	"itemhub/internal/model"
	"itemhub/internal/query"
	"itemhub/internal/service"
	"itemhub/internal/taxonomy"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

type ItemHandler struct {
	itemService  service.ItemService
	assocService service.AssociationService
	registry     *taxonomy.Registry
	resource     config.ItemConfig
}

func NewItemHandler(itemService service.ItemService, assocService service.AssociationService, registry *taxonomy.Registry, resource config.ItemConfig) *ItemHandler {
	return &ItemHandler{
		itemService:  itemService,
		assocService: assocService,
		registry:     registry,
		resource:     resource,
	}
}

// RegisterRoutes 挂载 /items 下的全部路由。
func (h *ItemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	items := rg.Group("/items")
	items.GET("/meta", h.Meta)
	items.GET("", h.List)
	items.POST("", h.Create)
	items.GET("/:id", h.Get)
	items.PUT("/:id", h.Update)
	items.DELETE("/:id", h.Delete)

	items.DELETE("/:id/taxonomies", h.DetachAll)
	items.GET("/:id/taxonomies/:key", h.ListTerms)
	items.PUT("/:id/taxonomies/:key", h.SyncTerms)
	items.POST("/:id/taxonomies/:key/terms/:termId", h.AttachTerm)
	items.DELETE("/:id/taxonomies/:key/terms/:termId", h.DetachTerm)
}

type itemRequest struct {
	Title       string                 `json:"title"`
	Slug        string                 `json:"slug"`
	IsActive    bool                   `json:"isActive"`
	Description string                 `json:"description"`
	Content     string                 `json:"content"`
	Data        map[string]interface{} `json:"data"`
	Image       string                 `json:"image"`
	Type        string                 `json:"type"`
	Status      string                 `json:"status"`
	Section     string                 `json:"section"`
	AuthorID    *uint                  `json:"authorId"`
	Color       string                 `json:"color"`
	DueAt       *time.Time             `json:"dueAt"`
	PublishedAt *time.Time             `json:"publishedAt"`
	Taxonomies  map[string][]uint      `json:"taxonomies"`
}

func (r itemRequest) toInput() service.ItemInput {
	return service.ItemInput{
		Title:       r.Title,
		Slug:        r.Slug,
		IsActive:    r.IsActive,
		Description: r.Description,
		Content:     r.Content,
		Data:        r.Data,
		Image:       r.Image,
		Type:        r.Type,
		Status:      r.Status,
		Section:     r.Section,
		AuthorID:    r.AuthorID,
		Color:       r.Color,
		DueAt:       r.DueAt,
		PublishedAt: r.PublishedAt,
		Taxonomies:  r.Taxonomies,
	}
}

type syncTermsRequest struct {
	TermIDs []uint `json:"termIds" binding:"required"`
}

// Meta 返回渲染 Item 资源所需的声明式描述：名称、导航、页签、表单字段和列表列。
func (h *ItemHandler) Meta(c *gin.Context) {
	respondOK(c, "Item resource metadata", gin.H{
		"single":          h.resource.Single,
		"plural":          h.resource.Plural,
		"navigationGroup": h.resource.NavigationGroup,
		"navigationSort":  h.resource.NavigationSort,
		"tabs":            h.itemService.Tabs(),
		"fields":          h.registry.Fields(),
		"columns":         h.registry.Columns(),
	})
}

// List 查询参数：
//
//	tab=post&active=true&title=go&status=draft&type=Post&section=news
//	taxonomy[category]=1,2&mode[category]=all&descendants[category]=true
//	sort=title&order=asc&page=1&pageSize=20
func (h *ItemHandler) List(c *gin.Context) {
	q, err := h.parseListQuery(c)
	if err != nil {
		respondError(c, err)
		return
	}

	page, err := h.itemService.List(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Items retrieved successfully", page)
}

func (h *ItemHandler) parseListQuery(c *gin.Context) (service.ListQuery, error) {
	q := service.ListQuery{
		Tab:      c.Query("tab"),
		Title:    c.Query("title"),
		Status:   c.Query("status"),
		Type:     c.Query("type"),
		Section:  c.Query("section"),
		SortBy:   c.Query("sort"),
		Page:     cast.ToInt(c.DefaultQuery("page", "1")),
		PageSize: cast.ToInt(c.Query("pageSize")),
	}

	active, err := optionalBool(c, "active")
	if err != nil {
		return q, err
	}
	q.Active = active

	switch strings.ToLower(strings.TrimSpace(c.Query("order"))) {
	case "":
	case "asc":
		q.SortDesc = new(bool)
	case "desc":
		desc := true
		q.SortDesc = &desc
	default:
		return q, service.ErrInvalidInput
	}

	terms := c.QueryMap("taxonomy")
	modes := c.QueryMap("mode")
	descendants := c.QueryMap("descendants")
	// 按 key 排序，保证同一请求生成的 SQL 稳定
	for _, key := range slices.Sorted(maps.Keys(terms)) {
		raw := strings.TrimSpace(terms[key])
		if raw == "" {
			continue
		}
		ids, err := parseIDList(raw)
		if err != nil {
			return q, err
		}
		mode, err := query.ParseMode(modes[key])
		if err != nil {
			return q, err
		}
		q.Taxonomies = append(q.Taxonomies, service.TaxonomyFilter{
			Key:         key,
			TermIDs:     ids,
			Mode:        mode,
			Descendants: cast.ToBool(descendants[key]),
		})
	}
	return q, nil
}

func (h *ItemHandler) Create(c *gin.Context) {
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}

	item, err := h.itemService.Create(c.Request.Context(), req.toInput())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"code":    http.StatusCreated,
		"message": "Item created successfully",
		"data":    item,
	})
}

func (h *ItemHandler) Get(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	item, err := h.itemService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Item retrieved successfully", item)
}

func (h *ItemHandler) Update(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}

	item, err := h.itemService.Update(c.Request.Context(), id, req.toInput())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Item updated successfully", item)
}

func (h *ItemHandler) Delete(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	if err := h.itemService.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Item deleted successfully", nil)
}

// DetachAll 清空 item 在所有分类体系下的关联，item 本身保留。
func (h *ItemHandler) DetachAll(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	if err := h.assocService.DetachAll(c.Request.Context(), model.ItemEntityType, id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Item terms cleared successfully", nil)
}

// ListTerms 返回 item 在某个分类体系下的 term id，ancestors=true 时包含祖先。
func (h *ItemHandler) ListTerms(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	ids, err := h.assocService.ListTerms(c.Request.Context(), c.Param("key"), model.ItemEntityType, id, cast.ToBool(c.Query("ancestors")))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Item terms retrieved successfully", ids)
}

func (h *ItemHandler) SyncTerms(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req syncTermsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}

	if err := h.assocService.Sync(c.Request.Context(), c.Param("key"), model.ItemEntityType, id, req.TermIDs); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Item terms synced successfully", nil)
}

func (h *ItemHandler) AttachTerm(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	termID, ok := uintParam(c, "termId")
	if !ok {
		return
	}

	if err := h.assocService.Attach(c.Request.Context(), c.Param("key"), model.ItemEntityType, id, termID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Term attached successfully", nil)
}

func (h *ItemHandler) DetachTerm(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	termID, ok := uintParam(c, "termId")
	if !ok {
		return
	}

	if err := h.assocService.Detach(c.Request.Context(), c.Param("key"), model.ItemEntityType, id, termID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Term detached successfully", nil)
}
