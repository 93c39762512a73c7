// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package connection

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"

	"golang.org/x/crypto/ocsp"
)

// ErrOCSPStapleRequired is returned when WithOCSPStapling is enabled and
// the server's handshake did not carry a usable OCSP staple.
var ErrOCSPStapleRequired = errors.New("connection: server did not present a valid OCSP staple")

func configureTLS(ctx context.Context, nc net.Conn, hostAndPort string, cfg *tls.Config, requireStaple bool) (net.Conn, error) {
	cloned := cfg.Clone()
	if cloned.ServerName == "" {
		cloned.ServerName = stripPort(hostAndPort)
	}

	client := tls.Client(nc, cloned)

	errCh := make(chan error, 1)
	go func() { errCh <- client.Handshake() }()

	select {
	case err := <-errCh:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		client.Close()
		return nil, fmt.Errorf("connection: TLS handshake cancelled: %w", ctx.Err())
	}

	if requireStaple {
		if err := verifyOCSPStaple(client); err != nil {
			client.Close()
			return nil, err
		}
	}

	return client, nil
}

func stripPort(hostAndPort string) string {
	if i := strings.LastIndex(hostAndPort, ":"); i >= 0 {
		return hostAndPort[:i]
	}
	return hostAndPort
}

// verifyOCSPStaple checks the OCSP response stapled during the TLS
// handshake against the server's leaf and issuer certificates. It fails
// closed: a missing staple, a parse failure, or a revoked/unknown status
// are all treated as a failed connection.
func verifyOCSPStaple(client *tls.Conn) error {
	state := client.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return ErrOCSPStapleRequired
	}
	if len(state.OCSPResponse) == 0 {
		return ErrOCSPStapleRequired
	}

	leaf := state.PeerCertificates[0]
	var issuer *x509.Certificate
	if len(state.PeerCertificates) > 1 {
		issuer = state.PeerCertificates[1]
	} else {
		issuer = leaf
	}

	resp, err := ocsp.ParseResponseForCert(state.OCSPResponse, leaf, issuer)
	if err != nil {
		return fmt.Errorf("connection: parsing OCSP staple: %w", err)
	}

	switch resp.Status {
	case ocsp.Good:
		return nil
	case ocsp.Revoked:
		return fmt.Errorf("connection: server certificate revoked per OCSP staple (reason %d)", resp.RevocationReason)
	default:
		return fmt.Errorf("connection: OCSP staple reported unknown status %d", resp.Status)
	}
}
