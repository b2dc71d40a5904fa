package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOCRClientRecognize(t *testing.T) {
	var gotImage []byte
	var gotLanguages string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/ocr/extract", r.URL.Path)

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		assert.Equal(t, "page.png", header.Filename)
		gotImage, _ = io.ReadAll(file)
		gotLanguages = r.FormValue("languages")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"text":"Bonjour le monde","language":"fra"}`))
	}))
	defer server.Close()

	client := NewOCRClient(server.URL+"/", 5*time.Second)
	text, err := client.Recognize(context.Background(), []byte("png-bytes"), []string{"fra", "eng"})
	require.NoError(t, err)
	assert.Equal(t, "Bonjour le monde", text)
	assert.Equal(t, []byte("png-bytes"), gotImage)
	assert.Equal(t, "fra+eng", gotLanguages)
}

func TestOCRClientUnsuccessfulResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"unsupported image"}`))
	}))
	defer server.Close()

	_, err := NewOCRClient(server.URL, 5*time.Second).Recognize(context.Background(), []byte("png"), []string{"fra", "eng"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported image")
}

func TestOCRClientNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("model offline"))
	}))
	defer server.Close()

	_, err := NewOCRClient(server.URL, 5*time.Second).Recognize(context.Background(), []byte("png"), []string{"fra", "eng"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "model offline")
}

func TestOCRClientHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Write([]byte(`{"status":"healthy","model_loaded":true,"version":"1.2"}`))
	}))
	defer server.Close()

	healthy, err := NewOCRClient(server.URL, 5*time.Second).IsHealthy(context.Background())
	require.NoError(t, err)
	assert.True(t, healthy)
}
