package credentials

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// File names inside the data directory.
const (
	CertificateFile = "certificate.pem.crt"
	PrivateKeyFile  = "private.pem.key"
	PublicKeyFile   = "public.pem.key"
	RootCAFile      = "root-ca.crt"
)

// maxRootCASize bounds the root CA download.
const maxRootCASize = 64 << 10

// tlsMinVersion is the minimum TLS version for the broker session.
const tlsMinVersion = tls.VersionTLS12

// Bundle is the key material issued by the cloud at registration.
type Bundle struct {
	CertificatePEM string
	PrivateKey     string
	PublicKey      string
}

// Store reads and writes credential files in a single directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// CertificatePath returns the client certificate path.
func (s *Store) CertificatePath() string { return filepath.Join(s.dir, CertificateFile) }

// PrivateKeyPath returns the client private key path.
func (s *Store) PrivateKeyPath() string { return filepath.Join(s.dir, PrivateKeyFile) }

// PublicKeyPath returns the client public key path.
func (s *Store) PublicKeyPath() string { return filepath.Join(s.dir, PublicKeyFile) }

// RootCAPath returns the pinned root CA path.
func (s *Store) RootCAPath() string { return filepath.Join(s.dir, RootCAFile) }

// WriteIssued persists a freshly issued bundle. The private key is written 0600.
func (s *Store) WriteIssued(b Bundle) error {
	if b.CertificatePEM == "" || b.PrivateKey == "" {
		return ErrMissingCredentials
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating credential dir: %w", err)
	}

	write := func(path, content string, mode os.FileMode) error {
		if err := os.WriteFile(path, []byte(content), mode); err != nil {
			return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
		}
		return nil
	}

	if err := write(s.CertificatePath(), b.CertificatePEM, 0o644); err != nil {
		return err
	}
	if err := write(s.PrivateKeyPath(), b.PrivateKey, 0o600); err != nil {
		return err
	}
	if b.PublicKey != "" {
		if err := write(s.PublicKeyPath(), b.PublicKey, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// Exists reports whether the issued certificate and private key are on disk.
func (s *Store) Exists() bool {
	return fileExists(s.CertificatePath()) && fileExists(s.PrivateKeyPath())
}

// Remove deletes the issued files. The root CA is kept.
func (s *Store) Remove() error {
	var errs []error
	for _, p := range []string{s.CertificatePath(), s.PrivateKeyPath(), s.PublicKeyPath()} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EnsureRootCA downloads the root CA from url unless it is already installed.
// It reports whether a download happened.
func (s *Store) EnsureRootCA(ctx context.Context, client *http.Client, url string) (bool, error) {
	if fileExists(s.RootCAPath()) {
		return false, nil
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrRootCADownload, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrRootCADownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: status %d", ErrRootCADownload, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRootCASize))
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrRootCADownload, err)
	}
	if !x509.NewCertPool().AppendCertsFromPEM(body) {
		return false, ErrInvalidRootCA
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return false, fmt.Errorf("creating credential dir: %w", err)
	}
	if err := os.WriteFile(s.RootCAPath(), body, 0o644); err != nil {
		return false, fmt.Errorf("writing root CA: %w", err)
	}
	return true, nil
}

// TLSConfig builds the mutual-TLS configuration for the broker.
// protocol is offered via ALPN when non-empty.
func (s *Store) TLSConfig(protocol string) (*tls.Config, error) {
	caPEM, err := os.ReadFile(s.RootCAPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrRootCAMissing
		}
		return nil, fmt.Errorf("reading root CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, ErrInvalidRootCA
	}

	if !s.Exists() {
		return nil, ErrMissingCredentials
	}
	cert, err := tls.LoadX509KeyPair(s.CertificatePath(), s.PrivateKeyPath())
	if err != nil {
		return nil, fmt.Errorf("loading client key pair: %w", err)
	}

	cfg := &tls.Config{
		MinVersion:   tlsMinVersion,
		RootCAs:      pool,
		Certificates: []tls.Certificate{cert},
	}
	if protocol != "" {
		cfg.NextProtos = []string{protocol}
	}
	return cfg, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
