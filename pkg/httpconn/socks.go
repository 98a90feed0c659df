package httpconn

import (
	"fmt"
	"io"
	"net"

	rherrors "github.com/corvid-labs/httpagent/pkg/errors"
	"github.com/corvid-labs/httpagent/pkg/transport"
)

const (
	socksVersion4   = 0x04
	socksCmdConnect = 0x01

	socksGranted         = 0x5A
	socksRejected        = 0x5B
	socksIdentdUnreached = 0x5C
	socksIdentdRejected  = 0x5D
)

// DialSOCKS4 performs the SOCKS4/4a CONNECT handshake for target host:port
// over raw, which must already be connected to the proxy's address (see
// transport.Transport.Connect with a non-nil ProxyConfig). On a granted
// reply the same raw connection is handed back unchanged -- the HTTP
// protocol engine runs over it exactly as it would a direct connection,
// and an HTTPS target is upgraded to TLS afterward via
// transport.Transport.UpgradeTLS.
//
// proxy.RemoteDNS selects SOCKS4a: the hostname is sent to the proxy
// instead of a locally resolved IPv4 address (DSTIP is set to the
// reserved 0.0.0.x form per the SOCKS4a extension).
func DialSOCKS4(raw net.Conn, proxy *transport.ProxyConfig, host string, port int) error {
	req := []byte{socksVersion4, socksCmdConnect, byte(port >> 8), byte(port & 0xff)}

	useRemoteDNS := proxy.RemoteDNS
	var dstIP net.IP
	if !useRemoteDNS {
		ip := net.ParseIP(host)
		if ip4 := ip.To4(); ip != nil && ip4 != nil {
			dstIP = ip4
		} else {
			addrs, err := net.LookupIP(host)
			if err != nil {
				return rherrors.NewDNSError(host, err)
			}
			for _, a := range addrs {
				if ip4 := a.To4(); ip4 != nil {
					dstIP = ip4
					break
				}
			}
			if dstIP == nil {
				useRemoteDNS = true // no A record; fall back to 4a
			}
		}
	}

	if useRemoteDNS {
		// SOCKS4a: DSTIP = 0.0.0.x (x != 0), hostname appended after USERID NUL.
		dstIP = net.IPv4(0, 0, 0, 1).To4()
	}
	req = append(req, dstIP...)
	req = append(req, []byte(proxy.UserID)...)
	req = append(req, 0x00)
	if useRemoteDNS {
		req = append(req, []byte(host)...)
		req = append(req, 0x00)
	}

	if _, err := raw.Write(req); err != nil {
		return rherrors.NewProxyError(fmt.Sprintf("%s:%d", proxy.Host, proxy.Port), err)
	}

	reply := make([]byte, 8)
	if _, err := io.ReadFull(raw, reply); err != nil {
		return rherrors.NewProxyError(fmt.Sprintf("%s:%d", proxy.Host, proxy.Port), err)
	}

	switch reply[1] {
	case socksGranted:
		return nil
	case socksRejected:
		return &rherrors.SocksRejected{Status: reply[1]}
	case socksIdentdUnreached:
		return &rherrors.SocksIdentdRejected{}
	case socksIdentdRejected:
		return &rherrors.SocksUserRejected{}
	default:
		return &rherrors.SocksRejected{Status: reply[1]}
	}
}
