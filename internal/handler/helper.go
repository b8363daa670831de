package handler

import (
	"net/http"
	"strings"

	"itemhub/internal/filter"
	"itemhub/internal/query"
	"itemhub/internal/service"
	"itemhub/internal/taxonomy"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

// mapServiceError 把 Service 层哨兵错误转换为 HTTP 状态码和对外消息。
// 存储层错误和未知错误统一返回 500，不泄露底层细节。
func mapServiceError(err error) (httpStatus int, message string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "Invalid request parameters"
	case errors.Is(err, query.ErrInvalidMode):
		return http.StatusBadRequest, "Invalid membership mode, use 'any' or 'all'"
	case errors.Is(err, filter.ErrUnsupportedOperator), errors.Is(err, filter.ErrInvalidClause):
		return http.StatusBadRequest, "Invalid filter"
	case errors.Is(err, service.ErrUnknownTab):
		return http.StatusBadRequest, "Unknown filter tab"
	case errors.Is(err, taxonomy.ErrNotHierarchical):
		return http.StatusBadRequest, "Taxonomy is not hierarchical"
	case errors.Is(err, service.ErrItemNotFound):
		return http.StatusNotFound, "Item not found"
	case errors.Is(err, taxonomy.ErrUnknownTaxonomy), errors.Is(err, taxonomy.ErrNotFound):
		return http.StatusNotFound, "Taxonomy not found"
	case errors.Is(err, taxonomy.ErrUnknownTerm):
		return http.StatusNotFound, "Taxonomy term not found"
	case errors.Is(err, taxonomy.ErrCycleDetected):
		return http.StatusConflict, "Taxonomy term parent would create a cycle"
	case errors.Is(err, service.ErrTermHasChildren):
		return http.StatusConflict, "Taxonomy term has child nodes"
	case errors.Is(err, taxonomy.ErrHierarchyLocked):
		return http.StatusConflict, "Taxonomy hierarchy cannot change while terms exist"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// respondError 写入统一的错误响应体。
func respondError(c *gin.Context, err error) {
	status, msg := mapServiceError(err)
	c.JSON(status, gin.H{
		"code":    status,
		"message": msg,
	})
}

func respondBadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    http.StatusBadRequest,
		"message": msg,
	})
}

func respondOK(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": msg,
		"data":    data,
	})
}

// uintParam 读取路径参数并转换为正整数。
// 失败时直接写 400 响应并返回 false，调用方只需 `if !ok { return }`。
func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := cast.ToUintE(strings.TrimSpace(c.Param(name)))
	if err != nil || v == 0 {
		respondBadRequest(c, "Invalid "+name)
		return 0, false
	}
	return v, true
}

// parseIDList 解析逗号分隔的 id 列表："1, 2,3" -> [1 2 3]。空串返回空切片。
func parseIDList(raw string) ([]uint, error) {
	parts := strings.Split(raw, ",")
	ids := make([]uint, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := cast.ToUintE(p)
		if err != nil || id == 0 {
			return nil, errors.Wrapf(service.ErrInvalidInput, "invalid id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// optionalBool 解析可选布尔查询参数，缺省或空值返回 nil。
func optionalBool(c *gin.Context, name string) (*bool, error) {
	raw, ok := c.GetQuery(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	v, err := cast.ToBoolE(strings.TrimSpace(raw))
	if err != nil {
		return nil, errors.Wrapf(service.ErrInvalidInput, "invalid %s %q", name, raw)
	}
	return &v, nil
}
