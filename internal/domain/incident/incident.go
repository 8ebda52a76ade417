package incident

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"gnest/internal/kernel"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Incident 一次被异常处理器捕获的失败
type Incident struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	Owner         string    `gorm:"index;size:255" json:"owner"`
	Kind          string    `gorm:"index;size:255" json:"kind"`
	Message       string    `gorm:"type:text" json:"message"`
	Stack         string    `gorm:"type:text" json:"stack,omitempty"`
	Status        int       `json:"status"`
	ContextID     string    `gorm:"size:36" json:"contextId"`
	CorrelationID string    `gorm:"size:64" json:"correlationId,omitempty"`
	CreatedAt     time.Time `gorm:"index" json:"createdAt"`
}

// Sink 异常落地的目标
type Sink interface {
	Record(ctx context.Context, inc *Incident) error
}

type stackTracer interface {
	StackTrace() string
}

// Recorder 是一个异常处理器：把异常写入所有 Sink 后交给后续处理器。
// 它从不标记异常已完成，也不产生结果。
type Recorder struct {
	Owner string
	Sinks []Sink
	Log   *zap.Logger

	// 可选
	Classify  func(error) int
	Correlate func(*kernel.Context) (string, bool)
	Now       func() time.Time
}

func (r *Recorder) Catch(ec *kernel.ExceptionContext) (any, error) {
	inc := r.build(ec)
	for _, s := range r.Sinks {
		if err := s.Record(ec, inc); err != nil && r.Log != nil {
			r.Log.Warn("incident sink failed",
				zap.String("sink", fmt.Sprintf("%T", s)),
				zap.String("incident", inc.ID),
				zap.Error(err))
		}
	}
	return nil, nil
}

func (r *Recorder) build(ec *kernel.ExceptionContext) *Incident {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	inc := &Incident{
		ID:        uuid.NewString(),
		Owner:     r.Owner,
		Kind:      KindOf(ec.Error),
		Message:   ec.Error.Error(),
		CreatedAt: now(),
	}
	if ec.Original != nil {
		inc.ContextID = ec.Original.ID
		if r.Correlate != nil {
			inc.CorrelationID, _ = r.Correlate(ec.Original)
		}
	}
	if r.Classify != nil {
		inc.Status = r.Classify(ec.Error)
	}
	var st stackTracer
	if errors.As(ec.Error, &st) {
		inc.Stack = st.StackTrace()
	}
	return inc
}

// KindOf 优先使用 ExceptionName，否则使用动态类型名
func KindOf(err error) string {
	if n, ok := err.(kernel.Named); ok {
		return n.ExceptionName()
	}
	return reflect.TypeOf(err).String()
}
