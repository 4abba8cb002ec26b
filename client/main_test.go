package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mahaj/chatrelay/pkg/model"
)

func TestWhoami_UsesTokenIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/validate" || r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"error":"unauthorized"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":7,"name":"gina"}}`))
	}))
	defer srv.Close()

	id, err := whoami(srv.URL, "good")
	require.NoError(t, err)
	require.Equal(t, model.Identity{ID: 7, Name: "gina"}, id)

	_, err = whoami(srv.URL, "bad")
	require.Error(t, err)
}

func TestEnqueue_GivesUpWhenConnectionIsGone(t *testing.T) {
	outbox := make(chan []byte, 1)
	done := make(chan struct{})

	require.True(t, enqueue(outbox, done, []byte("first")))

	result := make(chan bool, 1)
	go func() { result <- enqueue(outbox, done, []byte("second")) }()

	select {
	case <-result:
		t.Fatal("enqueue returned while the outbox was full")
	case <-time.After(50 * time.Millisecond):
	}

	close(done)
	select {
	case ok := <-result:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("enqueue still blocked after the connection closed")
	}
}
