// Package profile renders and parses self-contained OpenVPN client profiles.
package profile

import (
	"fmt"
	"strconv"
	"strings"

	"ovpn-issuer/internal/credstore"
)

// DefaultPort is the server port written into the remote directive.
const DefaultPort = 1194

// Params are the server connection settings written into every profile.
type Params struct {
	Host         string
	Port         int
	Proto        string
	Device       string
	Cipher       string
	Verbosity    int
	KeyDirection int
}

// DefaultParams returns the parameters used by the reference server setup.
func DefaultParams(host string) Params {
	return Params{
		Host:         host,
		Port:         DefaultPort,
		Proto:        "udp",
		Device:       "tun",
		Cipher:       "AES-256-CBC",
		Verbosity:    3,
		KeyDirection: 1,
	}
}

// Block names of the embedded sections, in render order.
const (
	BlockCA      = "ca"
	BlockCert    = "cert"
	BlockKey     = "key"
	BlockTLSAuth = "tls-auth"
)

// Render builds the profile document. Artifact contents are embedded verbatim and not validated.
func Render(a credstore.Artifacts, p Params) []byte {
	var b strings.Builder
	directive := func(parts ...string) {
		b.WriteString(strings.Join(parts, " "))
		b.WriteByte('\n')
	}
	block := func(name string, content []byte) {
		b.WriteString("<" + name + ">\n")
		b.Write(content)
		b.WriteString("\n</" + name + ">\n")
	}

	directive("client")
	directive("dev", p.Device)
	directive("proto", p.Proto)
	directive("remote", p.Host, strconv.Itoa(p.Port))
	directive("resolv-retry", "infinite")
	directive("nobind")
	directive("persist-key")
	directive("persist-tun")
	directive("remote-cert-tls", "server")
	directive("cipher", p.Cipher)
	directive("verb", strconv.Itoa(p.Verbosity))
	block(BlockCA, a.CA)
	block(BlockCert, a.Certificate)
	block(BlockKey, a.PrivateKey)
	block(BlockTLSAuth, a.TLSAuth)
	directive("key-direction", strconv.Itoa(p.KeyDirection))
	return []byte(b.String())
}

// Validate reports parameters that would produce an unusable remote directive.
func (p Params) Validate() error {
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("server host is required")
	}
	if strings.ContainsAny(p.Host, " \t\r\n") {
		return fmt.Errorf("server host must not contain whitespace")
	}
	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("server port %d out of range", p.Port)
	}
	switch p.Proto {
	case "udp", "tcp", "udp4", "udp6", "tcp4", "tcp6", "tcp-client":
	default:
		return fmt.Errorf("unsupported proto %q", p.Proto)
	}
	if strings.TrimSpace(p.Device) == "" || strings.TrimSpace(p.Cipher) == "" {
		return fmt.Errorf("device and cipher are required")
	}
	return nil
}
