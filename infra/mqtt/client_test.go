package mqtt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/taxidispatch/core/monitoring"
)

// generateCert writes a self-signed certificate used as cert and CA.
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	caFile = filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(certFile, certPEM, 0o644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o644))
	require.NoError(t, os.WriteFile(caFile, certPEM, 0o644))
	return
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	tlsCfg, err := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}.LoadTLSConfig()
	require.NoError(t, err)
	assert.NotEmpty(t, tlsCfg.Certificates)
	assert.NotNil(t, tlsCfg.RootCAs)

	_, err = Config{UseTLS: true}.LoadTLSConfig()
	assert.Error(t, err)
}

func TestNewClientOptionsAuth(t *testing.T) {
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"}
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, "u", opts.Username)
	assert.Equal(t, "p", opts.Password)
	assert.True(t, opts.AutoReconnect)
}

func TestConfigDefaultsAndTopics(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "taxi/feed/position", cfg.FeedTopic("position"))
	assert.Equal(t, "taxi/state", cfg.StateTopic())

	cfg.TopicPrefix = "fleet/#"
	assert.Error(t, cfg.Validate())
	cfg.TopicPrefix = "fleet"
	cfg.QoS = 3
	assert.Error(t, cfg.Validate())
}

func TestNewClient_GeneratesClientID(t *testing.T) {
	cli, _ := newMockedClient(t, Config{})
	assert.Contains(t, cli.ID(), "taxidispatch-")
}

func TestPublish_QoSAndRetry(t *testing.T) {
	cli, mc := newMockedClient(t, Config{ClientID: "id", QoS: 1, MaxRetries: 1, BackoffMS: 1})
	mc.publishErrs = []error{errors.New("net fail"), nil}

	require.NoError(t, cli.Publish("taxi/feed/status", []byte("x")))
	require.Len(t, mc.published, 2)
	assert.Equal(t, byte(1), mc.published[1].qos)
}

type recordMonitor struct {
	monitoring.NopMonitor
	err  error
	tags map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.err = err
	r.tags = tags
}

func TestPublish_FailureCaptured(t *testing.T) {
	cli, mc := newMockedClient(t, Config{ClientID: "id", MaxRetries: 1, BackoffMS: 1})
	fail := errors.New("net fail")
	mc.publishErrs = []error{fail, fail}
	mon := &recordMonitor{}
	monitoring.Init(mon)
	defer monitoring.Init(monitoring.NopMonitor{})

	err := cli.Publish("taxi/state", []byte("x"))
	require.ErrorIs(t, err, fail)
	require.Error(t, mon.err)
	assert.Equal(t, "mqtt", mon.tags["module"])
	assert.Equal(t, "taxi/state", mon.tags["topic"])
}

func TestSubscriptionsReplayedOnReconnect(t *testing.T) {
	cli, mc := newMockedClient(t, Config{ClientID: "id"})
	var got []string
	require.NoError(t, cli.Subscribe("a", func(_ string, p []byte) { got = append(got, string(p)) }))

	mc.handlers = nil
	mc.Connect()
	mc.deliver("a", []byte("after reconnect"))
	assert.Equal(t, []string{"after reconnect"}, got)
}
