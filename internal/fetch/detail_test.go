package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFetchDocumentParsesAndSanitizes(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/carte/a", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "shelfwatch-bot/1.0", r.Header.Get("User-Agent"))
		fmt.Fprint(w, `<html><body><script>x()</script><p>Autor: Marin Preda</p></body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	f := NewDetailFetcher(Config{
		UserAgent: "shelfwatch-bot/1.0",
		Timeout:   5 * time.Second,
	}, zap.NewNop())

	doc, err := f.FetchDocument(context.Background(), server.URL+"/carte/a")
	require.NoError(t, err)
	require.Zero(t, doc.Find("script").Length())
	require.Contains(t, doc.Text(), "Autor: Marin Preda")
}

func TestFetchDocumentReportsUnreachablePage(t *testing.T) {
	t.Parallel()

	f := NewDetailFetcher(Config{
		UserAgent: "shelfwatch-bot/1.0",
		Timeout:   time.Second,
	}, zap.NewNop())

	_, err := f.FetchDocument(context.Background(), "http://127.0.0.1:1/missing")
	require.Error(t, err)
}

func TestFetchDocumentHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	f := NewDetailFetcher(Config{
		UserAgent: "shelfwatch-bot/1.0",
		Delay:     time.Minute,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.FetchDocument(ctx, "http://127.0.0.1:1/never")
	require.Error(t, err)
}
