package domain

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	integrationdomain "github.com/smallbiznis/printfleet/internal/integration/domain"
)

var transports sync.Map // credential digest -> *http.Transport

// HTTPClient builds the client used by the HTTP based protocols. Clients
// with the same TLS material share one transport so kept-alive connections
// are reused across polls. The per call deadline comes from the request
// context.
func HTTPClient(cfg integrationdomain.ConnectorConfig) (*http.Client, error) {
	var cert, key string
	if cfg.AuthType == integrationdomain.AuthCertificate {
		cert = strings.TrimSpace(cfg.Credentials.Certificate)
		key = strings.TrimSpace(cfg.Credentials.PrivateKey)
	}
	sum := sha256.Sum256([]byte(cert + "\x00" + key))
	if t, ok := transports.Load(sum); ok {
		return &http.Client{Transport: t.(*http.Transport)}, nil
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.AuthType == integrationdomain.AuthCertificate {
		if key != "" {
			pair, err := tls.X509KeyPair([]byte(cert), []byte(key))
			if err != nil {
				return nil, Unsupported("new", cfg.Endpoint, err)
			}
			transport.TLSClientConfig.Certificates = []tls.Certificate{pair}
		} else {
			// A bare certificate pins the device's self signed server cert.
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM([]byte(cert)) {
				return nil, Unsupported("new", cfg.Endpoint, errors.New("certificate is not valid PEM"))
			}
			transport.TLSClientConfig.RootCAs = pool
		}
	}

	t, _ := transports.LoadOrStore(sum, transport)
	return &http.Client{Transport: t.(*http.Transport)}, nil
}

// CloseBody drains what is left of a response body, up to limit bytes, so the
// connection can go back to the pool.
func CloseBody(body io.ReadCloser, limit int64) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, limit))
	_ = body.Close()
}

// Authorize applies BASIC or API_KEY credentials to a request.
func Authorize(req *http.Request, cfg integrationdomain.ConnectorConfig) {
	switch cfg.AuthType {
	case integrationdomain.AuthBasic:
		req.SetBasicAuth(cfg.Credentials.Username, cfg.Credentials.Password)
	case integrationdomain.AuthAPIKey:
		req.Header.Set("X-API-Key", cfg.Credentials.APIKey)
	}
}
