package tor

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

// TestNewClient tests the Client constructor.
func TestNewClient(t *testing.T) {
	t.Parallel()

	t.Run("valid proxy address creates client", func(t *testing.T) {
		t.Parallel()

		client, err := NewClient("127.0.0.1:9050", 30*time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if client.ProxyAddress() != "127.0.0.1:9050" {
			t.Errorf("ProxyAddress() = %q, expected %q", client.ProxyAddress(), "127.0.0.1:9050")
		}
	})

	t.Run("invalid addresses return ErrInvalidProxyAddress", func(t *testing.T) {
		t.Parallel()

		for _, addr := range []string{"", "127.0.0.1", ":9050", "127.0.0.1:", "127.0.0.1:0", "127.0.0.1:65536", "a:b:c", "[::1]:9050", "host:port"} {
			if _, err := NewClient(addr, time.Second); !errors.Is(err, ErrInvalidProxyAddress) {
				t.Errorf("NewClient(%q): expected ErrInvalidProxyAddress, got %v", addr, err)
			}
		}
	})

	t.Run("hostnames are accepted", func(t *testing.T) {
		t.Parallel()

		if _, err := NewClient("localhost:9050", time.Second); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

// TestProxyStatus tests the ProxyStatus String and Error methods.
func TestProxyStatus(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		status ProxyStatus
		str    string
		err    error
	}{
		{ProxyStatusOK, "OK", nil},
		{ProxyStatusWrongType, "wrong type (not Tor)", ErrProxyNotTor},
		{ProxyStatusCannotConnect, "cannot connect", ErrProxyCannotConnect},
		{ProxyStatusTimeout, "timeout", ErrProxyTimeout},
	}
	for _, tc := range testCases {
		if tc.status.String() != tc.str {
			t.Errorf("String() = %q, expected %q", tc.status.String(), tc.str)
		}
		if !errors.Is(tc.status.Error(), tc.err) {
			t.Errorf("Error() = %v, expected %v", tc.status.Error(), tc.err)
		}
	}
	if ProxyStatus(99).Error() == nil || ProxyStatus(99).String() != "unknown" {
		t.Error("expected unknown status to report an error")
	}
}

// fakeProxy starts a TCP listener that hands its first connection to serve.
func fakeProxy(t *testing.T, serve func(conn net.Conn)) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
	if err != nil {
		t.Fatalf("failed to start fake proxy: %v", err)
	}
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}()
	return listener.Addr().String()
}

// TestCheckConnection tests the SOCKS5 handshake check.
func TestCheckConnection(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		serve    func(conn net.Conn)
		expected ProxyStatus
	}{
		{
			name: "non-SOCKS5 server",
			serve: func(conn net.Conn) {
				_, _ = conn.Read(make([]byte, 3))
				_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\n\r\n"))
			},
			expected: ProxyStatusWrongType,
		},
		{
			name: "SOCKS5 requiring auth",
			serve: func(conn net.Conn) {
				_, _ = conn.Read(make([]byte, 3))
				_, _ = conn.Write([]byte{0x05, 0xFF})
			},
			expected: ProxyStatusWrongType,
		},
		{
			name: "valid SOCKS5 proxy refusing the test host",
			serve: func(conn net.Conn) {
				_, _ = conn.Read(make([]byte, 3))
				_, _ = conn.Write([]byte{0x05, 0x00})
				_, _ = conn.Read(make([]byte, 256))
				_, _ = conn.Write([]byte{0x05, 0x04, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
			},
			expected: ProxyStatusOK,
		},
		{
			name: "wrong version in CONNECT reply",
			serve: func(conn net.Conn) {
				_, _ = conn.Read(make([]byte, 3))
				_, _ = conn.Write([]byte{0x05, 0x00})
				_, _ = conn.Read(make([]byte, 256))
				_, _ = conn.Write([]byte{0x04, 0x00, 0x00, 0x01})
			},
			expected: ProxyStatusWrongType,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client, err := NewClient(fakeProxy(t, tc.serve), 30*time.Second)
			if err != nil {
				t.Fatalf("failed to create client: %v", err)
			}
			if status := client.CheckConnection(context.Background()); status != tc.expected {
				t.Errorf("expected %v, got %v", tc.expected, status)
			}
		})
	}

	t.Run("nothing listening", func(t *testing.T) {
		t.Parallel()

		listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
		if err != nil {
			t.Fatalf("failed to listen: %v", err)
		}
		addr := listener.Addr().String()
		_ = listener.Close()

		client, err := NewClient(addr, time.Second)
		if err != nil {
			t.Fatalf("failed to create client: %v", err)
		}
		if status := client.CheckConnection(context.Background()); status != ProxyStatusCannotConnect {
			t.Errorf("expected ProxyStatusCannotConnect, got %v", status)
		}
	})
}

// socks5Relay is a minimal SOCKS5 proxy that serves one CONNECT request
// with an IPv4 or domain address and relays bytes both ways.
func socks5Relay(conn net.Conn) {
	greeting := make([]byte, 3)
	if _, err := io.ReadFull(conn, greeting); err != nil {
		return
	}
	_, _ = conn.Write([]byte{0x05, 0x00})

	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		return
	}
	var host string
	switch header[3] {
	case 0x01:
		ip := make([]byte, 4)
		if _, err := io.ReadFull(conn, ip); err != nil {
			return
		}
		host = net.IP(ip).String()
	case 0x03:
		n := make([]byte, 1)
		if _, err := io.ReadFull(conn, n); err != nil {
			return
		}
		name := make([]byte, n[0])
		if _, err := io.ReadFull(conn, name); err != nil {
			return
		}
		host = string(name)
	default:
		return
	}
	port := make([]byte, 2)
	if _, err := io.ReadFull(conn, port); err != nil {
		return
	}

	target, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(int(binary.BigEndian.Uint16(port))))) //nolint:noctx // test code
	if err != nil {
		_, _ = conn.Write([]byte{0x05, 0x04, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
		return
	}
	defer target.Close()
	_, _ = conn.Write([]byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0})

	go func() { _, _ = io.Copy(target, conn) }()
	_, _ = io.Copy(conn, target)
}

// TestNewHTTPClient tests that requests travel through the proxy.
func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("through the proxy"))
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(fakeProxy(t, socks5Relay), 10*time.Second)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	httpClient := client.NewHTTPClient()
	if httpClient.Timeout != 10*time.Second {
		t.Errorf("expected timeout 10s, got %v", httpClient.Timeout)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	if string(body) != "through the proxy" {
		t.Errorf("unexpected body %q", body)
	}
}

// TestVerifyUnlessOnion tests the TLS verification policy.
func TestVerifyUnlessOnion(t *testing.T) {
	t.Parallel()

	if err := verifyUnlessOnion(tls.ConnectionState{ServerName: "abc.onion"}); err != nil {
		t.Errorf("expected onion hosts to skip verification, got %v", err)
	}
	if err := verifyUnlessOnion(tls.ConnectionState{ServerName: "example.com"}); err == nil {
		t.Error("expected clearnet hosts without certificates to fail")
	}
}
