// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// ErrNotLoopback indicates a backend address that leaves the local machine.
var ErrNotLoopback = errors.New("backend address is not loopback")

// NormalizeHost reduces a bare host to what the loopback check compares: an IP
// literal in canonical form or a lower-case ASCII name.
func NormalizeHost(raw string) (string, error) {
	host := strings.TrimSpace(raw)
	if strings.ContainsAny(host, "/@") {
		return "", fmt.Errorf("host %q must be a bare name or address", raw)
	}
	host = strings.TrimSuffix(strings.TrimSuffix(strings.TrimPrefix(host, "["), "]"), ".")
	if host == "" {
		return "", errors.New("host is empty")
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap().String(), nil
	}
	if strings.Contains(host, ":") {
		return "", fmt.Errorf("host %q must not carry a port", raw)
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("host %q: %w", raw, err)
	}
	return strings.ToLower(ascii), nil
}

// CheckLoopback returns ErrNotLoopback unless the host of baseURL names loopback
// addresses only.
func CheckLoopback(ctx context.Context, baseURL string) error {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	host, err := NormalizeHost(u.Hostname())
	if err != nil {
		return err
	}
	addrs, err := hostAddrs(ctx, host)
	if err != nil {
		return err
	}
	for _, a := range addrs {
		if !a.IsLoopback() {
			return fmt.Errorf("%w: %s is %s", ErrNotLoopback, host, a)
		}
	}
	return nil
}

// hostAddrs returns the addresses host stands for. localhost and its subdomains
// are loopback without a lookup (RFC 6761).
func hostAddrs(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{addr}, nil
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("resolve %q: no addresses", host)
	}
	for i := range addrs {
		addrs[i] = addrs[i].Unmap()
	}
	return addrs, nil
}
