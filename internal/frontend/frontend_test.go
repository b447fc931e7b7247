package frontend

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/relaydb/proxy/internal/backend"
	"github.com/relaydb/proxy/internal/model"
	"github.com/relaydb/proxy/internal/protocol/mysql/connection"
	"github.com/relaydb/proxy/internal/protocol/mysql/packet"
	"github.com/relaydb/proxy/internal/router"
	"github.com/relaydb/proxy/internal/router/mocks"
	"github.com/relaydb/proxy/internal/session"
	"github.com/relaydb/proxy/internal/worker"
)

func newDispatcher(t *testing.T, rs router.Session, client net.Conn) (*dispatcher, *connection.Conn) {
	t.Helper()
	group := worker.NewGroup(1, worker.Config{}, zap.NewNop())
	lst := &Listener{
		Name:    "t",
		Service: &Service{Name: "svc", Candidates: nil},
		Workers: group,
		logger:  zap.NewNop(),
	}
	sess := session.New(1, client, rs)
	group.Workers[0].AddSession(sess)
	mc := connection.NewConn(1, client, nil)
	d := &dispatcher{ctx: context.Background(), listener: lst, session: sess, logger: zap.NewNop()}
	return d, mc
}

// readOnePacket reads one framed packet (header + payload) off conn, the
// same framing onCmd's writeErr/forwarding paths produce.
func readOnePacket(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	header := make([]byte, 4)
	_, err := readFull(conn, header)
	require.NoError(t, err)
	length := int(header[0]) | int(header[1])<<8 | int(header[2])<<16
	body := make([]byte, length)
	_, err = readFull(conn, body)
	require.NoError(t, err)
	return body
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// TestDispatcher_OnCmd_NoCandidates exercises the path where the router
// can't produce a target at all (spec §7: a synthetic ERR is sent to the
// client rather than hanging).
func TestDispatcher_OnCmd_NoCandidates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	rs := mocks.NewMockSession(ctrl)
	rs.EXPECT().ChooseTarget(gomock.Any(), gomock.Any()).Return(router.Target{}, errors.New("no servers"))

	clientSide, proxySide := net.Pipe()
	defer clientSide.Close()
	defer proxySide.Close()

	d, mc := newDispatcher(t, rs, proxySide)

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.onCmd(context.Background(), mc, []byte{0x03, 's', 'e', 'l', 'e', 'c', 't'})
	}()

	reply := readOnePacket(t, clientSide)
	require.NoError(t, <-errCh)
	assert.True(t, packet.IsErrPacket(reply))
}

// TestDispatcher_OnCmd_RoutesAndReportsReply covers the success path: the
// router chooses a server, the command is proxied over a fake backend
// wired via backend.TestSetRouting (skipping the real handshake), and the
// reply is both forwarded to the client and reported via Router.OnReply.
func TestDispatcher_OnCmd_RoutesAndReportsReply(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	srv := model.NewServer("db1", "127.0.0.1", 3306)
	srv.SetStatus(model.StatusRunning)

	rs := mocks.NewMockSession(ctrl)
	rs.EXPECT().ChooseTarget(gomock.Any(), gomock.Any()).Return(router.SingleTarget(srv), nil)
	rs.EXPECT().OnReply(srv, gomock.Any())

	clientSide, proxySide := net.Pipe()
	defer clientSide.Close()
	defer proxySide.Close()

	backendClient, backendServer := net.Pipe()
	defer backendClient.Close()
	defer backendServer.Close()

	proto := backend.NewProto(srv, backendClient, backend.Credentials{Username: "proxy"}, zap.NewNop())
	backend.TestSetRouting(proto)

	d, mc := newDispatcher(t, rs, proxySide)
	d.session.AddEndpoint(session.Endpoint{Server: srv, Proto: proto})

	// fake backend: read whatever command was forwarded, reply with a
	// single OK packet (status flags = 0, no SERVER_MORE_RESULTS_EXIST).
	go func() {
		_, _, _ = readFramedFromBackend(backendServer)
		ok := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
		_ = writeFramedToBackend(backendServer, 1, ok)
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.onCmd(context.Background(), mc, []byte{0x03, 's', 'e', 'l', 'e', 'c', 't', ' ', '1'})
	}()

	reply := readOnePacket(t, clientSide)
	require.NoError(t, <-errCh)
	assert.True(t, packet.IsOKPacket(reply))
}

func readFramedFromBackend(conn net.Conn) ([]byte, uint8, error) {
	header := make([]byte, 4)
	if _, err := readFull(conn, header); err != nil {
		return nil, 0, err
	}
	length := int(header[0]) | int(header[1])<<8 | int(header[2])<<16
	body := make([]byte, length)
	if _, err := readFull(conn, body); err != nil {
		return nil, 0, err
	}
	return body, header[3], nil
}

func writeFramedToBackend(conn net.Conn, seq uint8, payload []byte) error {
	buf := make([]byte, 4+len(payload))
	n := len(payload)
	buf[0] = byte(n)
	buf[1] = byte(n >> 8)
	buf[2] = byte(n >> 16)
	buf[3] = seq
	copy(buf[4:], payload)
	_, err := conn.Write(buf)
	return err
}
