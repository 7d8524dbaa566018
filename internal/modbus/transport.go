package modbus

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	goburrow "github.com/goburrow/modbus"
)

// Transport provides reliable, serialised access to a Modbus TCP
// slave with big-endian multi-register values and automatic
// reconnection. All methods are safe to call from a single logical
// owner; the type does not itself provide cross-goroutine locking
// beyond what is needed to guard the underlying handler during
// reconnects (spec.md §5: a single logical executor already serialises
// calls).
type Transport struct {
	mu      sync.Mutex
	addr    string
	timeout time.Duration
	logger  *log.Logger

	handler *goburrow.TCPClientHandler
	client  goburrow.Client

	connected    bool
	lastActivity time.Time
	cooldown     *ReconnectCooldown
	retry        RetryPolicy

	keepAlive time.Duration
}

// NewTransport creates a Transport targeting addr (host:port, default
// Modbus port 502). connectTimeout bounds TCP connect and per-op
// timeout; keepAlive is the charger's maximum idle time before the
// connection is considered stale (spec.md §4.1: 60s keep-alive).
func NewTransport(addr string, connectTimeout time.Duration, keepAlive time.Duration, logger *log.Logger) *Transport {
	if logger == nil {
		logger = log.Default()
	}
	return &Transport{
		addr:      addr,
		timeout:   connectTimeout,
		logger:    logger,
		cooldown:  NewReconnectCooldown(1*time.Second, 30*time.Second),
		retry:     DefaultRetryPolicy(),
		keepAlive: keepAlive,
	}
}

// EnsureConnected opens the TCP socket on first use and reconnects
// after any transport error. It is idempotent and respects the
// reconnect cooldown to avoid hammering an offline charger.
func (t *Transport) EnsureConnected() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ensureConnectedLocked()
}

func (t *Transport) ensureConnectedLocked() error {
	if t.connected && t.handler != nil {
		if time.Since(t.lastActivity) < t.keepAlive {
			return nil
		}
	}

	now := time.Now()
	if !t.cooldown.Allow(now) {
		return fmt.Errorf("modbus: reconnect to %s on cooldown", t.addr)
	}

	if t.handler != nil {
		t.handler.Close()
	}

	handler := goburrow.NewTCPClientHandler(t.addr)
	handler.Timeout = t.timeout
	handler.IdleTimeout = t.keepAlive

	if err := handler.Connect(); err != nil {
		t.connected = false
		t.cooldown.RecordFailure(now)
		return fmt.Errorf("modbus: connect to %s: %w", t.addr, err)
	}

	t.handler = handler
	t.client = goburrow.NewClient(handler)
	t.connected = true
	t.lastActivity = now
	t.cooldown.RecordSuccess()
	return nil
}

// Close closes the underlying TCP connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handler == nil {
		return nil
	}
	err := t.handler.Close()
	t.connected = false
	return err
}

// ReadHolding reads count holding registers starting at address from
// the given slave, returning the raw big-endian bytes (2*count long).
func (t *Transport) ReadHolding(address, count uint16, slaveID byte) ([]byte, error) {
	var result []byte
	err := t.withRetry("ReadHolding", func() error {
		if err := t.ensureConnectedLocked(); err != nil {
			return err
		}
		t.handler.SlaveId = slaveID
		data, err := t.client.ReadHoldingRegisters(address, count)
		if err != nil {
			return t.classify(err)
		}
		t.lastActivity = time.Now()
		result = data
		return nil
	})
	if err != nil {
		return nil, &ReadError{Address: address, Count: count, SlaveID: slaveID, Cause: err}
	}
	return result, nil
}

// WriteSingle performs an atomic single-register write.
func (t *Transport) WriteSingle(address uint16, value uint16, slaveID byte) error {
	err := t.withRetry("WriteSingle", func() error {
		if err := t.ensureConnectedLocked(); err != nil {
			return err
		}
		t.handler.SlaveId = slaveID
		_, err := t.client.WriteSingleRegister(address, value)
		if err != nil {
			return t.classify(err)
		}
		t.lastActivity = time.Now()
		return nil
	})
	if err != nil {
		return &WriteError{Address: address, SlaveID: slaveID, Cause: err}
	}
	return nil
}

// WriteMultiple performs an all-or-nothing multi-register write. It
// must be used for any value spanning more than one register (32-bit
// floats, 64-bit floats).
func (t *Transport) WriteMultiple(address uint16, values []byte, slaveID byte) error {
	count := uint16(len(values) / 2)
	err := t.withRetry("WriteMultiple", func() error {
		if err := t.ensureConnectedLocked(); err != nil {
			return err
		}
		t.handler.SlaveId = slaveID
		_, err := t.client.WriteMultipleRegisters(address, count, values)
		if err != nil {
			return t.classify(err)
		}
		t.lastActivity = time.Now()
		return nil
	})
	if err != nil {
		return &WriteError{Address: address, SlaveID: slaveID, Cause: err}
	}
	return nil
}

// withRetry runs fn under the transport mutex, reconnecting on
// transport-class failure before each retry, per spec.md §4.1.
func (t *Transport) withRetry(op string, fn func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.retry.do(op, func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsProtocolError(err) {
			t.logger.Printf("[MODBUS] %s transport error, will reconnect: %v", op, err)
			if t.handler != nil {
				t.handler.Close()
			}
			t.connected = false
		}
		return err
	})
}

// classify turns a goburrow/modbus error into either a *ProtocolError
// (illegal function/address/data — not retried) or leaves it as-is
// (transport failure — retried).
func (t *Transport) classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "exception code") || strings.Contains(lower, "illegal") {
		return &ProtocolError{Cause: err}
	}
	return err
}
