package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPayload = `{
	"personal": {"name": "John Doe", "gender": "male", "date_of_birth": "1980-02-11", "age": 45},
	"medical": {"age": 45, "bmi": 28.5, "HbA1c_level": 6.0, "blood_glucose_level": 110, "hypertension": 1}
}`

func newBackend(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchNormalizesRecord(t *testing.T) {
	srv := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/patients/1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(validPayload))
	})

	g := NewHTTPGateway(srv.URL, time.Second)
	record, err := g.Fetch(context.Background(), "1")
	require.NoError(t, err)

	assert.Equal(t, "John Doe", record.Personal.Name)
	assert.Equal(t, 45, record.Personal.Age)
	assert.Equal(t, 28.5, record.Medical["bmi"])
	assert.Equal(t, float64(1), record.Medical["hypertension"], "JSON numbers stay float64")
}

func TestFetchNotFound(t *testing.T) {
	srv := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such patient", http.StatusNotFound)
	})

	g := NewHTTPGateway(srv.URL, time.Second)
	_, err := g.Fetch(context.Background(), "999")
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestFetchServerError(t *testing.T) {
	srv := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	g := NewHTTPGateway(srv.URL, time.Second)
	_, err := g.Fetch(context.Background(), "1")
	require.Error(t, err)
	assert.Equal(t, KindUnavailable, KindOf(err))
}

func TestFetchUnreachableBackend(t *testing.T) {
	srv := newBackend(t, func(_ http.ResponseWriter, _ *http.Request) {})
	srv.Close() // connection refused from here on

	g := NewHTTPGateway(srv.URL, time.Second)
	_, err := g.Fetch(context.Background(), "1")
	require.Error(t, err)
	assert.Equal(t, KindUnavailable, KindOf(err))
}

func TestFetchTimeout(t *testing.T) {
	srv := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(validPayload))
	})

	g := NewHTTPGateway(srv.URL, 20*time.Millisecond)
	_, err := g.Fetch(context.Background(), "1")
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestFetchMalformedPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"personal": `},
		{"missing personal section", `{"medical": {"age": 45}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})

			g := NewHTTPGateway(srv.URL, time.Second)
			_, err := g.Fetch(context.Background(), "1")
			require.Error(t, err)
			assert.Equal(t, KindMalformed, KindOf(err))
		})
	}
}

func TestFetchEmptyMedicalSectionNormalized(t *testing.T) {
	srv := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"personal": {"name": "Jane Smith", "age": 32}}`))
	})

	g := NewHTTPGateway(srv.URL, time.Second)
	record, err := g.Fetch(context.Background(), "2")
	require.NoError(t, err)
	assert.NotNil(t, record.Medical, "medical section must never be nil")
	assert.Empty(t, record.Medical)
}

func TestFetchEmptyPatientID(t *testing.T) {
	g := NewHTTPGateway("http://localhost:0", time.Second)
	_, err := g.Fetch(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}
