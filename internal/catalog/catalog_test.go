package catalog

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchCSV(t *testing.T) {
	const body = "label,period\nCONFIRMED,10.5\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, KOIQuery, r.URL.Query().Get("query"))
		assert.Equal(t, "csv", r.URL.Query().Get("format"))
		w.Write([]byte(body))
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "koi_min.csv")
	c := NewClient(srv.URL, 5*time.Second)
	require.NoError(t, c.FetchCSV(KOIQuery, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
}

func TestFetchCSVServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "<VOTABLE>query failed</VOTABLE>", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	err := c.FetchCSV(TOIQuery, filepath.Join(t.TempDir(), "toi_min.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestFetchCSVUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 500*time.Millisecond)
	err := c.FetchCSV(KOIQuery, filepath.Join(t.TempDir(), "out.csv"))
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
