package util

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNet(t *testing.T) {
	lsnr, lerr := net.Listen("tcp", "localhost:0")
	assert.NoError(t, lerr)

	t.Log("listening " + lsnr.Addr().String())

	go func() {
		cconn, cerr := net.Dial("tcp", lsnr.Addr().String())
		assert.NoError(t, cerr)

		cconn.Close()
	}()

	sconn, serr := lsnr.Accept()
	assert.NoError(t, serr)

	t.Run("check error", func(tt *testing.T) {
		sconn.Close()
		_, err := sconn.Write([]byte("Hi"))
		if assert.Error(tt, err) {
			assert.True(tt, IsNetworkError(err))
			assert.True(tt, IsNetworkClosed(err))
			assert.False(tt, IsNetworkTimeout(err))
		}
	})

	t.Run("check non-network error", func(tt *testing.T) {
		assert.False(tt, IsNetworkError(fmt.Errorf("got a status 400")))
	})
}

func TestNetTimeoutFromHTTPClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	client := &http.Client{Timeout: 50 * time.Millisecond}
	_, err := client.Get(server.URL) //nolint:bodyclose // no response on timeout
	if assert.Error(t, err) {
		assert.True(t, IsNetworkTimeout(err))
		assert.True(t, IsNetworkError(err))
	}
}
