package report

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderHTMLSendsIndexPart(t *testing.T) {
	var gotPath, gotFilename, gotBody string
	var formErr error
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		file, header, err := r.FormFile("files")
		if err != nil {
			formErr = err
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotFilename = header.Filename
		raw, _ := io.ReadAll(file)
		gotBody = string(raw)
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	pdf, err := client.RenderHTML(context.Background(), "<html><body>Récépissé</body></html>")
	require.NoError(t, err)
	require.NoError(t, formErr)
	require.Equal(t, "%PDF-1.7", string(pdf))
	require.Equal(t, "/forms/chromium/convert/html", gotPath)
	require.Equal(t, "index.html", gotFilename)
	require.Contains(t, gotBody, "Récépissé")
}

func TestRenderHTMLSurfacesUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).RenderHTML(context.Background(), "<html></html>")
	require.Error(t, err)
}
