package analytics

import (
	"context"
	"fmt"
	"sync"
)

// callLog records calls across several mocks so tests can assert order
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, fmt.Sprintf(format, args...))
}

func (c *callLog) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// mockLogger records every EventLogger call
type mockLogger struct {
	id  string
	log *callLog

	mu         sync.Mutex
	props      []Properties
	outOfSess  []bool
	configured string
}

func newMockLogger(id string, log *callLog) *mockLogger {
	return &mockLogger{id: id, log: log}
}

func (m *mockLogger) Configure(ctx context.Context) {
	m.configured = "<none>"
	m.log.add("%s.Configure", m.id)
}

func (m *mockLogger) ConfigureUser(ctx context.Context, userID string) {
	m.configured = userID
	m.log.add("%s.ConfigureUser(%s)", m.id, userID)
}

func (m *mockLogger) SetUserID(ctx context.Context, userID string) {
	m.log.add("%s.SetUserID(%s)", m.id, userID)
}

func (m *mockLogger) LogEvent(ctx context.Context, name string) {
	m.log.add("%s.LogEvent(%s)", m.id, name)
}

func (m *mockLogger) LogEventWithProperties(ctx context.Context, name string, props Properties, outOfSession bool) {
	m.mu.Lock()
	m.props = append(m.props, props)
	m.outOfSess = append(m.outOfSess, outOfSession)
	m.mu.Unlock()
	m.log.add("%s.LogEventWithProperties(%s)", m.id, name)
}

// mockDirector records every UserDataDirector call
type mockDirector struct {
	id  string
	log *callLog

	mu    sync.Mutex
	props []Properties
	sets  []setCall
	adds  []addCall
}

type setCall struct {
	name       string
	value      any
	mutability Mutability
}

type addCall struct {
	name  string
	delta any
}

func newMockDirector(id string, log *callLog) *mockDirector {
	return &mockDirector{id: id, log: log}
}

func (m *mockDirector) SetUserProperties(ctx context.Context, props Properties) {
	m.mu.Lock()
	m.props = append(m.props, props)
	m.mu.Unlock()
	m.log.add("%s.SetUserProperties", m.id)
}

func (m *mockDirector) ClearUserProperties(ctx context.Context) {
	m.log.add("%s.ClearUserProperties", m.id)
}

func (m *mockDirector) Set(ctx context.Context, name string, value any, mutability Mutability) {
	m.mu.Lock()
	m.sets = append(m.sets, setCall{name: name, value: value, mutability: mutability})
	m.mu.Unlock()
	m.log.add("%s.Set(%s)", m.id, name)
}

func (m *mockDirector) Add(ctx context.Context, name string, delta any) {
	m.mu.Lock()
	m.adds = append(m.adds, addCall{name: name, delta: delta})
	m.mu.Unlock()
	m.log.add("%s.Add(%s)", m.id, name)
}

func (m *mockDirector) Unset(ctx context.Context, name string) {
	m.log.add("%s.Unset(%s)", m.id, name)
}

// profileDirector keeps properties in a map and honors Immutable
type profileDirector struct {
	NopUserDataDirector
	values map[string]any
}

func newProfileDirector() *profileDirector {
	return &profileDirector{values: make(map[string]any)}
}

func (p *profileDirector) Set(ctx context.Context, name string, value any, mutability Mutability) {
	if _, exists := p.values[name]; exists && mutability == Immutable {
		return
	}
	p.values[name] = value
}

func (p *profileDirector) Add(ctx context.Context, name string, delta any) {
	current, _ := ToFloat64(p.values[name])
	d, _ := ToFloat64(delta)
	p.values[name] = current + d
}

func (p *profileDirector) Unset(ctx context.Context, name string) {
	delete(p.values, name)
}

// panickingLogger panics on every event
type panickingLogger struct {
	NopEventLogger
}

func (panickingLogger) LogEvent(ctx context.Context, name string) {
	panic("provider exploded")
}
