package network

import (
	"errors"
	"net"
	"testing"
	"time"
)

func TestListenRequiresShareDir(t *testing.T) {
	if _, err := Listen("127.0.0.1:0", ServerOptions{}); err == nil {
		t.Fatalf("expected Listen without share directory to fail")
	}
}

func TestServerAnswersUnexpectedMessageWithError(t *testing.T) {
	server := startTestServer(t, ServerOptions{ShareDir: t.TempDir()})

	conn, err := net.DialTimeout("tcp", server.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	if err := WriteMessage(conn, FileData{Type: TypeFileData, ChunkIndex: 0, Data: []byte("x")}); err != nil {
		t.Fatalf("write: %v", err)
	}
	payload, err := ReadFrameWithTimeout(conn, 2*time.Second)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var remoteErr *RemoteError
	if err := decodeRemoteError(payload); !errors.As(err, &remoteErr) || remoteErr.Code != "unknown_type" {
		t.Fatalf("expected unknown_type remote error, got %v", err)
	}
}

func TestServerCloseIsIdempotent(t *testing.T) {
	server, err := Listen("127.0.0.1:0", ServerOptions{ShareDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	if server.Port() == 0 {
		t.Fatalf("expected an assigned port")
	}

	if err := server.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := server.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	if _, ok := <-server.Errors(); ok {
		t.Fatalf("expected errors channel to be closed")
	}
}
