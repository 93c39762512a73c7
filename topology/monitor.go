// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"sync"
	"time"

	"github.com/mongokit/driver/address"
	"github.com/mongokit/driver/bson"
	"github.com/mongokit/driver/connection"
	"github.com/mongokit/driver/internal/logger"
	"github.com/mongokit/driver/wiremessage"
)

// minHeartbeatInterval rate-limits checkNow so a flood of
// RequestImmediateCheck calls can't hammer a server.
const minHeartbeatInterval = 500 * time.Millisecond

// DefaultHeartbeatInterval is how often a Monitor probes its server
// absent any activity forcing an earlier check.
const DefaultHeartbeatInterval = 10 * time.Second

// DefaultRetryInterval is how soon a Monitor probes again after both the
// initial probe and its single reconnect-and-retry have failed, instead
// of waiting a full heartbeatInterval.
const DefaultRetryInterval = 1 * time.Second

// Monitor runs the heartbeat loop for a single server: it issues an
// isMaster-style probe against "<db>.$cmd" on a heartbeat-dedicated
// connection, measures round-trip time, and reports the resulting
// ServerDescription to every subscriber.
type Monitor struct {
	addr              address.Host
	dialOpts          []connection.Option
	heartbeatInterval time.Duration
	retryInterval     time.Duration
	heartbeatTimeout  time.Duration
	appName           string
	log               *logger.Logger
	drainPool         func()

	done     chan struct{}
	checkNow chan struct{}
	closewg  sync.WaitGroup

	subLock     sync.Mutex
	subscribers map[uint64]chan ServerDescription
	nextSubID   uint64
	closed      bool
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithMonitorDialOptions sets the connection.Option values used to dial
// the monitor's own heartbeat connection.
func WithMonitorDialOptions(opts ...connection.Option) MonitorOption {
	return func(m *Monitor) { m.dialOpts = opts }
}

// WithHeartbeatInterval overrides DefaultHeartbeatInterval.
func WithHeartbeatInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.heartbeatInterval = d }
}

// WithRetryInterval overrides DefaultRetryInterval, the sleep used after
// a heartbeat's reconnect-and-retry sequence both fail.
func WithRetryInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.retryInterval = d }
}

// WithPoolDrainer attaches the callback used to clear the server's user
// connection pool when a heartbeat hits an I/O error, so stale sockets
// aren't handed out while the server's reachability is in question.
func WithPoolDrainer(drain func()) MonitorOption {
	return func(m *Monitor) { m.drainPool = drain }
}

// WithHeartbeatTimeout bounds how long a single probe may take.
func WithHeartbeatTimeout(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.heartbeatTimeout = d }
}

// WithAppName sets the application name reported in the isMaster probe.
func WithAppName(name string) MonitorOption {
	return func(m *Monitor) { m.appName = name }
}

// WithMonitorLogger attaches a structured logger for topology-component
// log entries.
func WithMonitorLogger(l *logger.Logger) MonitorOption {
	return func(m *Monitor) { m.log = l }
}

// StartMonitor creates a Monitor for addr and starts its heartbeat loop
// in a new goroutine. It returns without waiting for the first
// heartbeat; a description published before Subscribe is called is not
// delivered to that subscriber.
func StartMonitor(addr address.Host, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		addr:              addr,
		heartbeatInterval: DefaultHeartbeatInterval,
		retryInterval:     DefaultRetryInterval,
		heartbeatTimeout:  10 * time.Second,
		done:              make(chan struct{}),
		checkNow:          make(chan struct{}, 1),
		subscribers:       make(map[uint64]chan ServerDescription),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.closewg.Add(1)
	go m.run()
	return m
}

// Subscribe returns a channel that receives the ServerDescriptions this
// Monitor publishes after the call; earlier ones are not replayed. The
// channel buffers one description, and a description not yet received
// is replaced by the next one.
func (m *Monitor) Subscribe() (<-chan ServerDescription, func(), error) {
	m.subLock.Lock()
	defer m.subLock.Unlock()
	if m.closed {
		return nil, func() {}, ErrMonitorStopped
	}
	id := m.nextSubID
	m.nextSubID++
	ch := make(chan ServerDescription, 1)
	m.subscribers[id] = ch
	unsubscribe := func() {
		m.subLock.Lock()
		delete(m.subscribers, id)
		m.subLock.Unlock()
	}
	return ch, unsubscribe, nil
}

// RequestImmediateCheck wakes the heartbeat loop early, rate-limited by
// minHeartbeatInterval.
func (m *Monitor) RequestImmediateCheck() {
	select {
	case m.checkNow <- struct{}{}:
	default:
	}
}

// Stop terminates the heartbeat loop and closes every subscriber
// channel.
func (m *Monitor) Stop() {
	close(m.done)
	m.closewg.Wait()
}

func (m *Monitor) run() {
	defer m.closewg.Done()

	var conn connection.Conn
	desc, conn, persistentFailure := m.heartbeat(conn)
	m.publish(desc)

	timer := time.NewTimer(m.nextWait(persistentFailure))
	limiter := time.NewTicker(minHeartbeatInterval)
	defer timer.Stop()
	defer limiter.Stop()

	for {
		select {
		case <-timer.C:
		case <-m.checkNow:
			if !timer.Stop() {
				<-timer.C
			}
		case <-m.done:
			m.shutdown(conn)
			return
		}

		select {
		case <-limiter.C:
		case <-m.done:
			m.shutdown(conn)
			return
		}

		desc, conn, persistentFailure = m.heartbeat(conn)
		m.publish(desc)
		timer.Reset(m.nextWait(persistentFailure))
	}
}

// nextWait picks the sleep before the next probe: the steady-state
// heartbeatInterval, or the faster retryInterval when the previous
// heartbeat's reconnect-and-retry sequence both failed.
func (m *Monitor) nextWait(persistentFailure bool) time.Duration {
	if persistentFailure {
		return m.retryInterval
	}
	return m.heartbeatInterval
}

func (m *Monitor) shutdown(conn connection.Conn) {
	m.subLock.Lock()
	m.closed = true
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	m.subLock.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (m *Monitor) publish(desc ServerDescription) {
	m.subLock.Lock()
	defer m.subLock.Unlock()
	for _, ch := range m.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- desc
	}
}

// heartbeat issues one isMaster probe, reusing conn if it is still
// usable. On an I/O error it runs the recovery sequence: clear the
// server's user pool, reconnect once, and retry the probe once more
// before reporting Unknown. It returns the resulting ServerDescription,
// the connection to reuse (or a fresh one if conn had to be redialed,
// or nil on persistent failure), and whether the recovery sequence was
// exhausted (the caller uses this to switch to the faster retry sleep).
func (m *Monitor) heartbeat(conn connection.Conn) (ServerDescription, connection.Conn, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), m.heartbeatTimeout)
	defer cancel()

	if conn != nil && (conn.Expired() || !conn.Alive()) {
		conn.Close()
		conn = nil
	}

	if conn == nil {
		c, err := m.dial(ctx)
		if err != nil {
			return m.recoverAfterFailure(err)
		}
		conn = c
	}

	desc, err := m.probe(ctx, conn)
	if err == nil {
		return desc, conn, false
	}
	conn.Close()
	return m.recoverAfterFailure(err)
}

// recoverAfterFailure implements spec's I/O-error recovery protocol:
// clear the user pool, attempt a single reconnect, and retry the probe
// once before giving up and reporting Unknown.
func (m *Monitor) recoverAfterFailure(firstErr error) (ServerDescription, connection.Conn, bool) {
	if m.log != nil {
		m.log.Print(logger.ComponentTopology, logger.LevelDebug, "heartbeat failed, retrying once", "addr", m.addr.String(), "error", firstErr.Error())
	}
	if m.drainPool != nil {
		m.drainPool()
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.heartbeatTimeout)
	defer cancel()

	conn, err := m.dial(ctx)
	if err != nil {
		return NewUnknownServerDescription(m.addr, err), nil, true
	}

	desc, err := m.probe(ctx, conn)
	if err != nil {
		conn.Close()
		return NewUnknownServerDescription(m.addr, err), nil, true
	}
	return desc, conn, false
}

func (m *Monitor) dial(ctx context.Context) (connection.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, m.heartbeatTimeout)
	defer cancel()
	c, err := connection.Dial(dialCtx, m.addr, m.dialOpts...)
	if err != nil {
		if m.log != nil {
			m.log.Print(logger.ComponentTopology, logger.LevelDebug, "heartbeat dial failed", "addr", m.addr.String(), "error", err.Error())
		}
		return nil, err
	}
	return c, nil
}

// probe runs a single isMaster round trip over conn. It never closes
// conn; the caller decides whether a failed conn should be closed.
func (m *Monitor) probe(ctx context.Context, conn connection.Conn) (ServerDescription, error) {
	start := time.Now()
	cmd := bson.NewDocument(bson.C("isMaster", bson.Int32(1)))
	if m.appName != "" {
		cmd.Append("client", bson.Doc(bson.NewDocument(bson.C("application", bson.Doc(bson.NewDocument(bson.C("name", bson.String(m.appName))))))))
	}
	q := wiremessage.Query{
		Namespace:   "admin.$cmd",
		Selector:    cmd,
		ReturnCount: -1,
	}

	if err := conn.WriteWireMessage(ctx, 1, q); err != nil {
		return ServerDescription{}, err
	}

	_, reply, err := conn.ReadWireMessage(ctx)
	if err != nil {
		return ServerDescription{}, err
	}
	rtt := time.Since(start)

	if len(reply.Documents) == 0 {
		return ServerDescription{}, ErrEmptyIsMasterReply
	}

	desc := parseIsMasterReply(m.addr, reply.Documents[0])
	desc.AverageRTT = rtt
	if m.log != nil {
		m.log.Print(logger.ComponentTopology, logger.LevelDebug, "heartbeat succeeded", "addr", m.addr.String(), "type", desc.Type.String())
	}
	return desc, nil
}

func parseIsMasterReply(addr address.Host, doc *bson.Document) ServerDescription {
	sd := ServerDescription{Addr: addr}

	isReplicaSetMember := false

	if v, ok := doc.Lookup("me"); ok {
		if s, ok := v.StringValueOK(); ok {
			sd.Me = address.New(s)
		}
	}
	if v, ok := doc.Lookup("setName"); ok {
		if s, ok := v.StringValueOK(); ok {
			sd.SetName = s
			isReplicaSetMember = true
		}
	}
	if v, ok := doc.Lookup("setVersion"); ok {
		if i, ok := v.Int32OK(); ok {
			sd.SetVersion = int64(i)
		} else if i, ok := v.Int64OK(); ok {
			sd.SetVersion = i
		}
	}
	if v, ok := doc.Lookup("electionId"); ok {
		if oid, ok := v.ObjectIDOK(); ok {
			sd.ElectionID = ElectionID{SetVersion: sd.SetVersion, OID: oid.Hex()}
		}
	}
	if v, ok := doc.Lookup("primary"); ok {
		if s, ok := v.StringValueOK(); ok {
			sd.Primary = address.New(s)
		}
	}
	if v, ok := doc.Lookup("hosts"); ok {
		sd.Hosts = hostListFromValue(v)
	}
	if v, ok := doc.Lookup("passives"); ok {
		sd.Passives = hostListFromValue(v)
	}
	if v, ok := doc.Lookup("arbiters"); ok {
		sd.Arbiters = hostListFromValue(v)
	}
	if v, ok := doc.Lookup("tags"); ok {
		if d, ok := v.DocumentOK(); ok {
			tags := make(map[string]string, d.Len())
			for _, e := range d.Elements() {
				if s, ok := e.Value.StringValueOK(); ok {
					tags[e.Key] = s
				}
			}
			sd.Tags = tags
		}
	}
	if v, ok := doc.Lookup("maxWireVersion"); ok {
		if i, ok := v.Int32OK(); ok {
			sd.MaxWireVersion = i
		}
	}
	if v, ok := doc.Lookup("lastWrite"); ok {
		if d, ok := v.DocumentOK(); ok {
			if lw, ok := d.Lookup("lastWriteDate"); ok {
				if ms, ok := lw.DateTimeOK(); ok {
					sd.LastWriteDate = time.UnixMilli(ms)
				}
			}
		}
	}

	isMongos := false
	if v, ok := doc.Lookup("msg"); ok {
		if s, ok := v.StringValueOK(); ok && s == "isdbgrid" {
			isMongos = true
		}
	}
	isReplicaSetGhost := false
	if v, ok := doc.Lookup("isreplicaset"); ok {
		if b, ok := v.BooleanOK(); ok {
			isReplicaSetGhost = b
		}
	}

	switch {
	case isMongos:
		sd.Type = Mongos
	case isMasterTrue(doc) && isReplicaSetMember:
		sd.Type = RSPrimary
	case isMasterValue(doc, "secondary") && isReplicaSetMember:
		sd.Type = RSSecondary
	case isMasterValue(doc, "arbiterOnly") && isReplicaSetMember:
		sd.Type = RSArbiter
	case isReplicaSetMember:
		sd.Type = RSOther
	case isReplicaSetGhost:
		sd.Type = RSGhost
	case len(sd.Hosts) == 0:
		sd.Type = Standalone
	default:
		sd.Type = Unknown
	}

	return sd
}

func isMasterTrue(doc *bson.Document) bool {
	v, ok := doc.Lookup("ismaster")
	if !ok {
		return false
	}
	b, ok := v.BooleanOK()
	return ok && b
}

func isMasterValue(doc *bson.Document, key string) bool {
	v, ok := doc.Lookup(key)
	if !ok {
		return false
	}
	b, ok := v.BooleanOK()
	return ok && b
}

func hostListFromValue(v bson.Value) []address.Host {
	arrDoc, ok := v.ArrayOK()
	if !ok {
		return nil
	}
	hosts := make([]address.Host, 0, arrDoc.Len())
	for _, e := range arrDoc.Elements() {
		if s, ok := e.Value.StringValueOK(); ok {
			hosts = append(hosts, address.New(s))
		}
	}
	return hosts
}
