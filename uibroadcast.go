/*
	Copyright (c) 2015-2016 Christopher Young
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	uibroadcast.go: status websocket fan-out - every connected status page
	 receives the same JSON snapshots.
*/

package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/net/websocket"
)

type uibroadcaster struct {
	sockets    []*websocket.Conn
	sockets_mu deadlock.Mutex
	messages   chan []byte
	log        zerolog.Logger
}

func newUIBroadcaster(log zerolog.Logger) *uibroadcaster {
	return &uibroadcaster{
		sockets:  make([]*websocket.Conn, 0),
		messages: make(chan []byte, 16),
		log:      log,
	}
}

// Send queues msg for every socket. Snapshots are dropped while the writer
// is behind; the next one supersedes them anyway.
func (u *uibroadcaster) Send(msg []byte) {
	select {
	case u.messages <- msg:
	default:
		u.log.Debug().Msg("status push dropped, writer busy")
	}
}

func (u *uibroadcaster) SendJSON(i interface{}) {
	j, err := json.Marshal(i)
	if err != nil {
		u.log.Error().Err(err).Interface("value", i).Msg("marshal status")
		return
	}
	u.Send(j)
}

func (u *uibroadcaster) AddSocket(sock *websocket.Conn) {
	u.sockets_mu.Lock()
	u.sockets = append(u.sockets, sock)
	u.sockets_mu.Unlock()
}

func (u *uibroadcaster) Count() int {
	u.sockets_mu.Lock()
	defer u.sockets_mu.Unlock()
	return len(u.sockets)
}

// writer delivers queued messages until ctx ends. Sockets that fail a write
// are dropped.
func (u *uibroadcaster) writer(ctx context.Context) {
	for {
		var msg []byte
		select {
		case <-ctx.Done():
			return
		case msg = <-u.messages:
		}

		p := make([]*websocket.Conn, 0) // Keep a list of the writeable sockets.
		u.sockets_mu.Lock()
		for _, sock := range u.sockets {
			err := sock.SetWriteDeadline(time.Now().Add(time.Second))
			_, err2 := sock.Write(msg)
			if err == nil && err2 == nil {
				p = append(p, sock)
			}
		}
		u.sockets = p
		u.sockets_mu.Unlock()
	}
}

// publish pushes snapshot() every interval until ctx ends.
func (u *uibroadcaster) publish(ctx context.Context, interval time.Duration, snapshot func() statusSnapshot) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if u.Count() > 0 {
				u.SendJSON(snapshot())
			}
		}
	}
}
