// Package notify publishes capsule and edit lifecycle events over an
// embedded NATS server, so other in-process components (or a future
// out-of-process consumer) can react to capsule handoffs and approved
// corrections without polling the store.
package notify

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// Publisher publishes lifecycle notifications. A nil *Publisher is valid
// and every Publish method becomes a no-op, so callers that run without
// NATS configured don't need to guard every call site.
type Publisher struct {
	nc *nats.Conn
}

// StartEmbedded boots an in-process NATS server on a random local port
// and connects a Publisher to it. The returned shutdown func closes the
// connection and stops the server; callers should defer it.
func StartEmbedded() (*Publisher, func(), error) {
	opts := &server.Options{
		Host:   "127.0.0.1",
		Port:   server.RANDOM_PORT,
		NoLog:  true,
		NoSigs: true,
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("start embedded nats server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		return nil, nil, fmt.Errorf("embedded nats server did not become ready")
	}

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, nil, fmt.Errorf("connect to embedded nats server: %w", err)
	}

	shutdown := func() {
		nc.Close()
		ns.Shutdown()
	}
	return &Publisher{nc: nc}, shutdown, nil
}

// PublishCapsuleCreated notifies subject capsule.created.<tenant>.<agent>
// for each audience agent of a newly created capsule.
func (p *Publisher) PublishCapsuleCreated(tenantID, agentID, capsuleID string) error {
	if p == nil || p.nc == nil {
		return nil
	}
	subject := fmt.Sprintf("capsule.created.%s.%s", tenantID, agentID)
	return p.nc.Publish(subject, []byte(capsuleID))
}

// PublishCapsuleRevoked notifies subject capsule.revoked.<tenant>.<id>.
func (p *Publisher) PublishCapsuleRevoked(tenantID, capsuleID string) error {
	if p == nil || p.nc == nil {
		return nil
	}
	subject := fmt.Sprintf("capsule.revoked.%s.%s", tenantID, capsuleID)
	return p.nc.Publish(subject, nil)
}

// PublishEditApproved notifies subject edit.approved.<tenant>.<target>.
func (p *Publisher) PublishEditApproved(tenantID, targetID string) error {
	if p == nil || p.nc == nil {
		return nil
	}
	subject := fmt.Sprintf("edit.approved.%s.%s", tenantID, targetID)
	return p.nc.Publish(subject, nil)
}
