package transport_test

import (
	"net"
	"testing"
	"time"

	"github.com/go-libre/libre/transport"
	"github.com/stretchr/testify/require"
)

func listenLoopback(t *testing.T) (net.Listener, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln, ln.Addr().String()
}

func TestDialSendCompletesAfterEstablishment(t *testing.T) {
	ln, addr := listenLoopback(t)
	defer ln.Close()

	serverRead := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 1024)
		n, _ := conn.Read(buf)
		serverRead <- buf[:n]
	}()

	cache := transport.NewCache(nil)
	key := transport.Key{Peer: addr, Flavor: transport.FlavorTCP}

	done := make(chan error, 1)
	c, err := cache.Dial(key, func() (net.Conn, error) {
		return net.Dial("tcp", addr)
	}, transport.CapSIPBFCP)
	require.NoError(t, err)
	defer c.Release()

	c.Send([]byte("hello"), func(err error) { done <- err })

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("send did not complete")
	}

	select {
	case b := <-serverRead:
		require.Equal(t, "hello", string(b))
	case <-time.After(time.Second):
		t.Fatal("server never saw bytes")
	}
}

func TestFeedOverflowClosesConnection(t *testing.T) {
	ln, addr := listenLoopback(t)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			buf := make([]byte, 4096)
			for {
				if _, err := conn.Read(buf); err != nil {
					return
				}
			}
		}
	}()

	cache := transport.NewCache(nil)
	key := transport.Key{Peer: addr, Flavor: transport.FlavorTCP}
	c, err := cache.Dial(key, func() (net.Conn, error) {
		return net.Dial("tcp", addr)
	}, 8)
	require.NoError(t, err)
	defer c.Release()

	_, err = c.Feed(make([]byte, 16))
	require.Error(t, err)

	time.Sleep(10 * time.Millisecond)
	require.True(t, c.Closed())
}

func TestReleaseWithoutPendingSendsForgetsConnection(t *testing.T) {
	ln, addr := listenLoopback(t)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	cache := transport.NewCache(nil)
	key := transport.Key{Peer: addr, Flavor: transport.FlavorTCP}
	c, err := cache.Dial(key, func() (net.Conn, error) {
		return net.Dial("tcp", addr)
	}, transport.CapSIPBFCP)
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())

	c.Release()
	_, ok := cache.Lookup(key)
	require.False(t, ok)
}
