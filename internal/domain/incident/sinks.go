package incident

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gnest/internal/infra/es"
	"gnest/internal/infra/pgsql"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ==========================================
// PostgreSQL
// ==========================================

type GormSink struct {
	DB *gorm.DB
}

func (s *GormSink) Migrate(ctx context.Context) error {
	return s.DB.WithContext(ctx).AutoMigrate(&Incident{})
}

func (s *GormSink) Record(ctx context.Context, inc *Incident) error {
	return pgsql.Create(ctx, s.DB, inc)
}

// List 按时间倒序分页，since 为零值时不过滤
func (s *GormSink) List(ctx context.Context, page, size int, since time.Time) (*pgsql.PageResult[Incident], error) {
	var from interface{}
	if !since.IsZero() {
		from = since
	}
	return pgsql.FindWithPage[Incident](ctx, s.DB, page, size,
		pgsql.WhereRange("created_at", from, nil),
		pgsql.Order("created_at", true),
	)
}

func (s *GormSink) Get(ctx context.Context, id string) (*Incident, error) {
	return pgsql.First[Incident](ctx, s.DB, map[string]interface{}{"id": id})
}

// ==========================================
// Elasticsearch
// ==========================================

type ElasticSink struct {
	Client *es.Client
	Index  string
}

var elasticMapping = map[string]interface{}{
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"id":            map[string]string{"type": "keyword"},
			"owner":         map[string]string{"type": "keyword"},
			"kind":          map[string]string{"type": "keyword"},
			"message":       map[string]string{"type": "text"},
			"status":        map[string]string{"type": "integer"},
			"correlationId": map[string]string{"type": "keyword"},
			"createdAt":     map[string]string{"type": "date"},
		},
	},
}

func (s *ElasticSink) EnsureIndex(ctx context.Context) error {
	return s.Client.EnsureIndex(ctx, s.Index, elasticMapping)
}

func (s *ElasticSink) Record(ctx context.Context, inc *Incident) error {
	return s.Client.Index(ctx, s.Index, inc.ID, inc)
}

// Search 全文检索 message，kind 非空时精确过滤
func (s *ElasticSink) Search(ctx context.Context, text, kind string, size int) ([]Incident, error) {
	must := []map[string]interface{}{}
	if text != "" {
		must = append(must, map[string]interface{}{"match": map[string]interface{}{"message": text}})
	}
	if kind != "" {
		must = append(must, map[string]interface{}{"term": map[string]interface{}{"kind": kind}})
	}
	q := es.SearchQuery{
		Query: map[string]interface{}{"bool": map[string]interface{}{"must": must}},
		Sort:  []map[string]interface{}{{"createdAt": map[string]string{"order": "desc"}}},
		Size:  size,
	}
	res, err := s.Client.Search(ctx, s.Index, q)
	if err != nil {
		return nil, err
	}
	out := make([]Incident, 0, len(res.Hits))
	for _, h := range res.Hits {
		var inc Incident
		if err := json.Unmarshal(h, &inc); err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, nil
}

// ==========================================
// MinIO
// ==========================================

// ObjectStore 由 infra/minio.Client 实现
type ObjectStore interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// ArchiveSink 把完整的异常 (含堆栈) 存为 JSON 对象
type ArchiveSink struct {
	Store  ObjectStore
	Prefix string
}

func (s *ArchiveSink) objectName(id string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "incidents/"
	}
	return prefix + id + ".json"
}

func (s *ArchiveSink) Record(ctx context.Context, inc *Incident) error {
	b, err := json.MarshalIndent(inc, "", "  ")
	if err != nil {
		return err
	}
	return s.Store.Upload(ctx, s.objectName(inc.ID), bytes.NewReader(b), int64(len(b)), "application/json")
}

// URL 返回归档对象的临时下载地址
func (s *ArchiveSink) URL(ctx context.Context, id string, expiry time.Duration) (string, error) {
	return s.Store.PresignedURL(ctx, s.objectName(id), expiry)
}

// ==========================================
// 审计日志
// ==========================================

type LogSink struct {
	Log *logrus.Logger
}

func (s *LogSink) Record(_ context.Context, inc *Incident) error {
	entry := s.Log.WithFields(logrus.Fields{
		"id":            inc.ID,
		"owner":         inc.Owner,
		"kind":          inc.Kind,
		"status":        inc.Status,
		"contextId":     inc.ContextID,
		"correlationId": inc.CorrelationID,
	})
	msg := fmt.Sprintf("incident: %s", inc.Message)
	if inc.Status != 0 && inc.Status < 500 {
		entry.Warn(msg)
	} else {
		entry.Error(msg)
	}
	return nil
}
