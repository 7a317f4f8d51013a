package tlsutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamsync/errors"
)

// generateTestCert creates a self-signed client certificate
func generateTestCert(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test Org"},
			CommonName:   "streamsync-client",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})
	return certPEM, keyPEM
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestClientConfig_IsZero(t *testing.T) {
	assert.True(t, ClientConfig{}.IsZero())
	assert.False(t, ClientConfig{InsecureSkipVerify: true}.IsZero())
	assert.False(t, ClientConfig{CAFiles: []string{"ca.pem"}}.IsZero())
}

func TestClientConfig_Validate(t *testing.T) {
	assert.NoError(t, ClientConfig{MinVersion: "1.3"}.Validate())

	err := ClientConfig{CertFile: "cert.pem"}.Validate()
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	err = ClientConfig{MinVersion: "1.0"}.Validate()
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	assert.True(t, errors.IsInvalid(err))
}

func TestParseTLSVersion(t *testing.T) {
	assert.Equal(t, uint16(tls.VersionTLS13), parseTLSVersion("1.3"))
	assert.Equal(t, uint16(tls.VersionTLS12), parseTLSVersion("1.2"))
	assert.Equal(t, uint16(tls.VersionTLS12), parseTLSVersion(""))
}

func TestLoadClientConfig_TrustsAdditionalCA(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	get := func(cfg *tls.Config) error {
		client := &http.Client{Transport: &http.Transport{TLSClientConfig: cfg}, Timeout: 5 * time.Second}
		resp, err := client.Get(srv.URL)
		if err == nil {
			resp.Body.Close()
		}
		return err
	}

	plain, err := LoadClientConfig(ClientConfig{})
	require.NoError(t, err)
	assert.Error(t, get(plain), "test server certificate is not in the system pool")

	caPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	trusted, err := LoadClientConfig(ClientConfig{
		CAFiles:    []string{writeFile(t, "ca.pem", caPEM)},
		MinVersion: "1.2",
	})
	require.NoError(t, err)
	assert.NoError(t, get(trusted))
}

func TestLoadClientConfig_ClientCertificate(t *testing.T) {
	certPEM, keyPEM := generateTestCert(t)

	cfg, err := LoadClientConfig(ClientConfig{
		CertFile:   writeFile(t, "cert.pem", certPEM),
		KeyFile:    writeFile(t, "key.pem", keyPEM),
		ServerName: "sync.example.com",
		MinVersion: "1.3",
	})
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)
	assert.Equal(t, "sync.example.com", cfg.ServerName)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
	assert.False(t, cfg.InsecureSkipVerify)
}

func TestLoadClientConfig_Errors(t *testing.T) {
	_, err := LoadClientConfig(ClientConfig{CAFiles: []string{filepath.Join(t.TempDir(), "missing.pem")}})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))

	_, err = LoadClientConfig(ClientConfig{CAFiles: []string{writeFile(t, "bad.pem", []byte("not pem"))}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid PEM")

	certPEM, _ := generateTestCert(t)
	_, err = LoadClientConfig(ClientConfig{
		CertFile: writeFile(t, "cert.pem", certPEM),
		KeyFile:  filepath.Join(t.TempDir(), "missing-key.pem"),
	})
	assert.Error(t, err)
}
