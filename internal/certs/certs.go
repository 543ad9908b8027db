// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package certs manages the local CA and server certificate used when the
// gateway terminates TLS itself.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io/fs"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/samber/oops"
)

// File names inside a certificate directory.
const (
	CAFile   = "root-ca.crt"
	CAKey    = "root-ca.key"
	CertFile = "gateway.crt"
	KeyFile  = "gateway.key"
)

// renewBefore is how close to expiry a server certificate is reissued.
const renewBefore = 30 * 24 * time.Hour

// CA holds a certificate authority certificate and private key.
type CA struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// ServerCert holds a server certificate and private key.
type ServerCert struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// GenerateCA creates a root CA for one gateway instance.
func GenerateCA(instance string) (*CA, error) {
	key, serial, err := newKeyAndSerial()
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Greentic Messaging"},
			CommonName:   "msgprov CA " + instance,
		},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
	}

	cert, err := sign(template, template, key, key)
	if err != nil {
		return nil, oops.With("operation", "create CA certificate").Wrap(err)
	}
	return &CA{Certificate: cert, PrivateKey: key}, nil
}

// GenerateServerCert issues a one-year server certificate for hosts.
// localhost and 127.0.0.1 are always included. IP literals become IP SANs.
func GenerateServerCert(ca *CA, hosts []string) (*ServerCert, error) {
	key, serial, err := newKeyAndSerial()
	if err != nil {
		return nil, err
	}

	dnsNames := []string{"localhost"}
	ips := []net.IP{net.ParseIP("127.0.0.1")}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			if !slices.ContainsFunc(ips, ip.Equal) {
				ips = append(ips, ip)
			}
			continue
		}
		if h != "" && !slices.Contains(dnsNames, h) {
			dnsNames = append(dnsNames, h)
		}
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Greentic Messaging"},
			CommonName:   dnsNames[len(dnsNames)-1],
		},
		NotBefore:   time.Now().Add(-time.Minute),
		NotAfter:    time.Now().AddDate(1, 0, 0),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:    dnsNames,
		IPAddresses: ips,
	}

	cert, err := sign(template, ca.Certificate, key, ca.PrivateKey)
	if err != nil {
		return nil, oops.With("operation", "create server certificate").Wrap(err)
	}
	return &ServerCert{Certificate: cert, PrivateKey: key}, nil
}

// Covers reports whether c is valid for every host until renewBefore
// from now.
func (c *ServerCert) Covers(hosts []string, now time.Time) bool {
	if now.Add(renewBefore).After(c.Certificate.NotAfter) {
		return false
	}
	for _, h := range hosts {
		if h == "" {
			continue
		}
		if err := c.Certificate.VerifyHostname(h); err != nil {
			return false
		}
	}
	return true
}

// Ensure loads the CA and server certificate from dir, creating the CA on
// first use and reissuing the server certificate when it is missing,
// expiring or does not cover hosts. It returns a server TLS config.
func Ensure(dir, instance string, hosts []string) (*tls.Config, error) {
	ca, err := LoadCA(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if ca, err = GenerateCA(instance); err != nil {
			return nil, err
		}
		if err := Save(dir, ca, nil); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	server, err := LoadServerCert(dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if server == nil || !server.Covers(hosts, time.Now()) || server.Certificate.CheckSignatureFrom(ca.Certificate) != nil {
		if server, err = GenerateServerCert(ca, hosts); err != nil {
			return nil, err
		}
		if err := Save(dir, nil, server); err != nil {
			return nil, err
		}
	}

	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{server.Certificate.Raw, ca.Certificate.Raw},
			PrivateKey:  server.PrivateKey,
			Leaf:        server.Certificate,
		}},
	}, nil
}

// Save writes ca and server, either of which may be nil, into dir.
func Save(dir string, ca *CA, server *ServerCert) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return oops.With("dir", dir).Wrap(err)
	}
	if ca != nil {
		if err := writePair(dir, CAFile, CAKey, ca.Certificate, ca.PrivateKey); err != nil {
			return err
		}
	}
	if server != nil {
		if err := writePair(dir, CertFile, KeyFile, server.Certificate, server.PrivateKey); err != nil {
			return err
		}
	}
	return nil
}

// LoadCA reads the CA from dir. A missing CA wraps fs.ErrNotExist.
func LoadCA(dir string) (*CA, error) {
	cert, key, err := readPair(dir, CAFile, CAKey)
	if err != nil {
		return nil, err
	}
	return &CA{Certificate: cert, PrivateKey: key}, nil
}

// LoadServerCert reads the server certificate from dir. A missing
// certificate wraps fs.ErrNotExist.
func LoadServerCert(dir string) (*ServerCert, error) {
	cert, key, err := readPair(dir, CertFile, KeyFile)
	if err != nil {
		return nil, err
	}
	return &ServerCert{Certificate: cert, PrivateKey: key}, nil
}

// CertPool returns a pool trusting the CA certificate in path.
func CertPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, oops.With("path", path).Errorf("no certificates found")
	}
	return pool, nil
}

func newKeyAndSerial() (*ecdsa.PrivateKey, *big.Int, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, oops.With("operation", "generate key").Wrap(err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, oops.With("operation", "generate serial").Wrap(err)
	}
	return key, serial, nil
}

func sign(template, parent *x509.Certificate, key, signer *ecdsa.PrivateKey) (*x509.Certificate, error) {
	der, err := x509.CreateCertificate(rand.Reader, template, parent, &key.PublicKey, signer)
	if err != nil {
		return nil, err
	}
	return x509.ParseCertificate(der)
}

func writePair(dir, certName, keyName string, cert *x509.Certificate, key *ecdsa.PrivateKey) error {
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return oops.With("file", keyName).Wrap(err)
	}
	if err := writePEM(filepath.Join(dir, certName), "CERTIFICATE", cert.Raw); err != nil {
		return err
	}
	return writePEM(filepath.Join(dir, keyName), "EC PRIVATE KEY", keyDER)
}

func writePEM(path, blockType string, der []byte) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(filepath.Clean(path), data, 0o600); err != nil {
		return oops.With("path", path).Wrap(err)
	}
	return nil
}

func readPair(dir, certName, keyName string) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	certDER, err := readPEM(filepath.Join(dir, certName))
	if err != nil {
		return nil, nil, err
	}
	keyDER, err := readPEM(filepath.Join(dir, keyName))
	if err != nil {
		return nil, nil, err
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, nil, oops.With("file", certName).Wrap(err)
	}
	key, err := x509.ParseECPrivateKey(keyDER)
	if err != nil {
		return nil, nil, oops.With("file", keyName).Wrap(err)
	}
	return cert, key, nil
}

func readPEM(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, oops.With("path", path).Errorf("no PEM block found")
	}
	return block.Bytes, nil
}
