package cmd

import (
	"bytes"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestCommand_LoadSummary(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1)%2 == 0 {
			_, _ = w.Write([]byte("no agents available"))
			return
		}
		_, _ = w.Write([]byte("3 assigned"))
	}))
	defer srv.Close()
	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)

	cfg := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("network:\n  primary_host: \""+host+"\"\n  request_port: "+port+"\n"), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"request", "--config", cfg, "--count", "4", "--user", "1000", "--timeout", "2s"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		userCount = 1
		userID = 1
		reqTimeout = 30 * time.Second
	})
	require.NoError(t, Execute())

	assert.Equal(t, int32(4), hits.Load())
	assert.Contains(t, out.String(), "users=4 granted=2 denied=2 failed=0")
	assert.Contains(t, out.String(), "users_per_sec=")
}

func TestRequestCommand_RejectsBadCount(t *testing.T) {
	rootCmd.SetArgs([]string{"request", "--count", "0"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		userCount = 1
	})
	assert.Error(t, Execute())
}
