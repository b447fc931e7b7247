package backend

import (
	"fmt"
	"net"
)

// ProxyProtocolV1Header builds the ASCII PROXY protocol v1 line sent as the
// very first bytes to the backend, ahead of any MySQL traffic, when the
// target server has proxy_protocol enabled.
// https://www.haproxy.org/download/1.8/doc/proxy-protocol.txt
func ProxyProtocolV1Header(peer, local net.Addr) string {
	peerTCP, peerOK := peer.(*net.TCPAddr)
	localTCP, localOK := local.(*net.TCPAddr)
	if !peerOK || !localOK {
		return "PROXY UNKNOWN\r\n"
	}
	family := "TCP4"
	if peerTCP.IP.To4() == nil {
		family = "TCP6"
	}
	return fmt.Sprintf("PROXY %s %s %s %d %d\r\n",
		family, peerTCP.IP.String(), localTCP.IP.String(), peerTCP.Port, localTCP.Port)
}
