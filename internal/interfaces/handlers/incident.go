package handlers

import (
	"context"
	"net/http"
	"time"

	"gnest/internal/domain/incident"
	"gnest/internal/pkg/response"
)

// IncidentHandler 只读查询被异常处理器记录下来的故障。
// 三个存储都是可选的，未启用时对应接口返回 503。
type IncidentHandler struct {
	Store   *incident.GormSink
	Search  *incident.ElasticSink
	Archive *incident.ArchiveSink

	ArchiveExpiry time.Duration
}

type ListIncidentsQuery struct {
	Page  int       `form:"page" binding:"omitempty,min=1"`
	Size  int       `form:"size" binding:"omitempty,min=1,max=100"`
	Since time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
}

type SearchIncidentsQuery struct {
	Q    string `form:"q"`
	Kind string `form:"kind"`
	Size int    `form:"size" binding:"omitempty,min=1,max=100"`
}

type IncidentURI struct {
	ID string `uri:"id" binding:"required,uuid"`
}

// IncidentDetail 详情附带归档文件的临时下载地址
type IncidentDetail struct {
	*incident.Incident
	ArchiveURL string `json:"archiveUrl,omitempty"`
}

func disabled(what string) error {
	return response.New(http.StatusServiceUnavailable, what+" is not enabled")
}

func (h *IncidentHandler) List(ctx context.Context, q *ListIncidentsQuery) (*response.Result, error) {
	if h.Store == nil {
		return nil, disabled("incident store")
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Size == 0 {
		q.Size = 20
	}
	page, err := h.Store.List(ctx, q.Page, q.Size, q.Since)
	if err != nil {
		return nil, err
	}
	return response.OK(page), nil
}

func (h *IncidentHandler) Get(ctx context.Context, uri *IncidentURI) (*response.Result, error) {
	if h.Store == nil {
		return nil, disabled("incident store")
	}
	inc, err := h.Store.Get(ctx, uri.ID)
	if err != nil {
		return nil, err
	}
	if inc == nil {
		return nil, response.New(http.StatusNotFound, "incident "+uri.ID+" not found")
	}
	detail := &IncidentDetail{Incident: inc}
	if h.Archive != nil {
		// 归档失败时仍返回数据库中的记录
		if u, err := h.Archive.URL(ctx, inc.ID, h.ArchiveExpiry); err == nil {
			detail.ArchiveURL = u
		}
	}
	return response.OK(detail), nil
}

func (h *IncidentHandler) SearchIncidents(ctx context.Context, q *SearchIncidentsQuery) (*response.Result, error) {
	if h.Search == nil {
		return nil, disabled("incident search")
	}
	if q.Size == 0 {
		q.Size = 20
	}
	hits, err := h.Search.Search(ctx, q.Q, q.Kind, q.Size)
	if err != nil {
		return nil, err
	}
	return response.OK(hits), nil
}
