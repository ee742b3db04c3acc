package mqtt

import (
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken is a completed paho token.
type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic    string
	payload  []byte
	retained bool
	qos      byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return m.qos }
func (m *fakeMessage) Retained() bool    { return m.retained }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

// fakeClient records what the session asks paho to do. Connect invokes the
// OnConnect handler synchronously.
type fakeClient struct {
	opts       *pahomqtt.ClientOptions
	connectErr error

	mu            sync.Mutex
	connected     bool
	published     []published
	subscribed    []map[string]byte
	unsubscribed  []string
	callback      pahomqtt.MessageHandler
	disconnects   []uint
	connectCalled int
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) IsConnectionOpen() bool { return f.IsConnected() }

func (f *fakeClient) Connect() pahomqtt.Token {
	f.mu.Lock()
	f.connectCalled++
	if f.connectErr != nil {
		f.mu.Unlock()
		return &fakeToken{err: f.connectErr}
	}
	f.connected = true
	f.mu.Unlock()

	if f.opts.OnConnect != nil {
		f.opts.OnConnect(f)
	}
	return &fakeToken{}
}

func (f *fakeClient) Disconnect(quiesce uint) {
	f.mu.Lock()
	f.connected = false
	f.disconnects = append(f.disconnects, quiesce)
	f.mu.Unlock()
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	var body string
	switch p := payload.(type) {
	case []byte:
		body = string(p)
	case string:
		body = p
	}
	f.mu.Lock()
	f.published = append(f.published, published{topic: topic, qos: qos, retained: retained, payload: body})
	f.mu.Unlock()
	return &fakeToken{}
}

func (f *fakeClient) Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	return f.SubscribeMultiple(map[string]byte{topic: qos}, callback)
}

func (f *fakeClient) SubscribeMultiple(filters map[string]byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	cp := make(map[string]byte, len(filters))
	for k, v := range filters {
		cp[k] = v
	}
	f.mu.Lock()
	f.subscribed = append(f.subscribed, cp)
	f.callback = callback
	f.mu.Unlock()
	return &fakeToken{}
}

func (f *fakeClient) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	f.unsubscribed = append(f.unsubscribed, topics...)
	f.mu.Unlock()
	return &fakeToken{}
}

func (f *fakeClient) AddRoute(string, pahomqtt.MessageHandler) {}

func (f *fakeClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// loseConnection simulates a dropped network connection.
func (f *fakeClient) loseConnection(err error) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	if f.opts.OnConnectionLost != nil {
		f.opts.OnConnectionLost(f, err)
	}
}

// reconnect simulates paho's automatic reconnect.
func (f *fakeClient) reconnect() {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	if f.opts.OnConnect != nil {
		f.opts.OnConnect(f)
	}
}

// receive simulates an inbound message on a subscribed topic.
func (f *fakeClient) receive(topic, payload string) {
	f.mu.Lock()
	cb := f.callback
	f.mu.Unlock()
	if cb != nil {
		cb(f, &fakeMessage{topic: topic, payload: []byte(payload)})
	}
}

func (f *fakeClient) publishedSnapshot() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]published, len(f.published))
	copy(out, f.published)
	return out
}

func (f *fakeClient) lastSubscribe() map[string]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subscribed) == 0 {
		return nil
	}
	return f.subscribed[len(f.subscribed)-1]
}

// fakeFactory hands out fake clients and remembers them.
type fakeFactory struct {
	mu         sync.Mutex
	clients    []*fakeClient
	connectErr error
}

func (ff *fakeFactory) build(opts *pahomqtt.ClientOptions) pahomqtt.Client {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	c := &fakeClient{opts: opts, connectErr: ff.connectErr}
	ff.clients = append(ff.clients, c)
	return c
}

func (ff *fakeFactory) last() *fakeClient {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.clients) == 0 {
		return nil
	}
	return ff.clients[len(ff.clients)-1]
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.clients)
}
