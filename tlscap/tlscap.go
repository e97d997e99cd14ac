// The MIT License (MIT)
//
// Copyright (c) 2013-2016 Oryx(ossrs)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

// The libre tlscap package is the TLS/DTLS capability transport.Conn
// consumes: TLS/DTLS is an external collaborator whose
// record layer isn't redesigned here, so this package exposes only the
// handshake-completion and certificate-selection surface, wrapping
// crypto/tls directly the way this module's earlier https.Manager wrapped
// tls.Certificate selection.
package tlscap

import (
	"crypto/tls"
	"net"

	"github.com/go-libre/libre/errs"
)

// CertManager supplies the server certificate for a TLS handshake,
// carried over unchanged from that earlier https.Manager interface.
type CertManager interface {
	GetCertificate(clientHello *tls.ClientHelloInfo) (*tls.Certificate, error)
}

type selfSignManager struct {
	certFile string
	keyFile  string
}

func (v *selfSignManager) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(v.certFile, v.keyFile)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "tlscap: load cert", err)
	}
	return &cert, nil
}

// NewSelfSignManager builds a CertManager that loads a fixed cert/key
// pair from disk, for a self-signed deployment.
func NewSelfSignManager(certFile, keyFile string) CertManager {
	return &selfSignManager{certFile: certFile, keyFile: keyFile}
}

// ServerConfig builds a *tls.Config that defers certificate selection to
// mgr, for use by a stream listener wrapping inbound connections.
func ServerConfig(mgr CertManager) *tls.Config {
	return &tls.Config{
		GetCertificate: mgr.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}

// WrapServer upgrades an accepted plaintext conn to TLS using cfg. The
// caller must complete the handshake (Handshake or a first Read/Write)
// before treating the connection as established, and call
// transport.Conn's MarkEstablished only after that succeeds.
func WrapServer(conn net.Conn, cfg *tls.Config) net.Conn {
	return tls.Server(conn, cfg)
}

// WrapClient upgrades an outbound plaintext conn to TLS for serverName.
func WrapClient(conn net.Conn, serverName string) net.Conn {
	return tls.Client(conn, &tls.Config{ServerName: serverName, MinVersion: tls.VersionTLS12})
}

// Handshake drives the handshake to completion or returns the first
// error, wrapped as errs.ConnectionReset so callers can treat it like any
// other transport fault
func Handshake(conn net.Conn) error {
	type handshaker interface {
		Handshake() error
	}
	h, ok := conn.(handshaker)
	if !ok {
		return errs.New(errs.NotSupported, "tlscap: conn has no handshake")
	}
	if err := h.Handshake(); err != nil {
		return errs.Wrap(errs.ConnectionReset, "tlscap: handshake failed", err)
	}
	return nil
}
