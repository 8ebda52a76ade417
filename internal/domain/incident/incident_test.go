package incident_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"gnest/internal/domain/incident"
	"gnest/internal/infra/es"
	"gnest/internal/interfaces/filters"
	"gnest/internal/interfaces/interceptors"
	"gnest/internal/kernel"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu   sync.Mutex
	got  []*incident.Incident
	fail error
}

func (m *memorySink) Record(_ context.Context, inc *incident.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.got = append(m.got, inc)
	return m.fail
}

type memoryStore struct {
	objects map[string][]byte
}

func (m *memoryStore) Upload(_ context.Context, name string, r io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[name] = b
	return nil
}

func (m *memoryStore) PresignedURL(_ context.Context, name string, _ time.Duration) (string, error) {
	return "https://minio.local/" + name, nil
}

type conflict struct{}

func (conflict) Error() string         { return "email taken" }
func (conflict) ExceptionName() string { return "Conflict" }

func TestRecorderThroughHandler(t *testing.T) {
	sink := &memorySink{}
	broken := &memorySink{fail: errors.New("es down")}
	rec := &incident.Recorder{
		Owner:     "POST /users",
		Sinks:     []incident.Sink{broken, sink},
		Classify:  filters.StatusOf,
		Correlate: interceptors.CorrelationID,
	}

	h := kernel.NewGuardedHandler("POST /users", kernel.HandlerFunc(func(*kernel.Context, any) (any, error) {
		panic("nil map write")
	}), kernel.WithRegistry(kernel.NewRegistry()))
	defer h.Destroy()
	require.NoError(t, h.UseInterceptors(interceptors.Correlation(), interceptors.Recover()))
	require.NoError(t, h.UseExceptionHandlers("Panic", rec, filters.HTTPException(0)))

	ctx := kernel.NewContext(context.Background(), nil)
	out, err := h.Handle(ctx, nil).Await()
	require.NoError(t, err)
	assert.NotNil(t, out)

	require.Len(t, sink.got, 1)
	inc := sink.got[0]
	assert.Equal(t, "POST /users", inc.Owner)
	assert.Equal(t, "Panic", inc.Kind)
	assert.Equal(t, http.StatusInternalServerError, inc.Status)
	assert.Equal(t, ctx.ID, inc.ContextID)
	assert.NotEmpty(t, inc.CorrelationID)
	assert.Contains(t, inc.Stack, "goroutine")
	assert.Len(t, broken.got, 1)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, "Conflict", incident.KindOf(conflict{}))
	assert.Equal(t, "*errors.errorString", incident.KindOf(errors.New("x")))
}

func TestArchiveSink(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{}}
	s := &incident.ArchiveSink{Store: store}

	require.NoError(t, s.Record(context.Background(), &incident.Incident{ID: "abc", Kind: "Conflict"}))
	var back incident.Incident
	require.NoError(t, json.Unmarshal(store.objects["incidents/abc.json"], &back))
	assert.Equal(t, "Conflict", back.Kind)

	url, err := s.URL(context.Background(), "abc", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://minio.local/incidents/abc.json", url)
}

func TestLogSink(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	s := &incident.LogSink{Log: log}

	require.NoError(t, s.Record(context.Background(), &incident.Incident{ID: "1", Message: "taken", Status: 409}))
	require.NoError(t, s.Record(context.Background(), &incident.Incident{ID: "2", Message: "boom", Status: 500}))

	require.Len(t, hook.AllEntries(), 2)
	assert.Equal(t, logrus.WarnLevel, hook.AllEntries()[0].Level)
	assert.Equal(t, "incident: taken", hook.AllEntries()[0].Message)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "2", hook.LastEntry().Data["id"])
}

func TestElasticSink(t *testing.T) {
	var indexed map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/incidents/_doc/abc":
			_ = json.NewDecoder(r.Body).Decode(&indexed)
			_, _ = w.Write([]byte(`{"result":"created"}`))
		case "/incidents/_search":
			_, _ = w.Write([]byte(`{"hits":{"total":{"value":1},"hits":[{"_source":{"id":"abc","kind":"Conflict"}}]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	client, err := es.New(es.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	s := &incident.ElasticSink{Client: client, Index: "incidents"}

	require.NoError(t, s.Record(context.Background(), &incident.Incident{ID: "abc", Kind: "Conflict"}))
	assert.Equal(t, "Conflict", indexed["kind"])

	found, err := s.Search(context.Background(), "taken", "Conflict", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "abc", found[0].ID)
}
