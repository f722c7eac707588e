package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	aurena "github.com/devgianlu/go-aurena"
)

const (
	DefaultIdleTimeout   = 20 * time.Second
	DefaultRetryInterval = 1 * time.Second

	requestTimeout = 5 * time.Second
)

type Options struct {
	Log        aurena.Logger
	HttpClient *http.Client

	// IdleTimeout closes the stream when nothing, pings included, is received
	// for this long.
	IdleTimeout time.Duration

	// Reconnect keeps retrying the same server after the stream is lost.
	Reconnect bool
	// RetryInterval is the first reconnection delay, it grows exponentially.
	RetryInterval time.Duration
	// MaxRetryInterval caps the reconnection delay.
	MaxRetryInterval time.Duration
}

// Client receives the player event stream of a single server.
type Client struct {
	log    aurena.Logger
	client *http.Client

	endpoint aurena.PlaybackEndpoint

	idleTimeout      time.Duration
	reconnect        bool
	retryInterval    time.Duration
	maxRetryInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}

	recv chan Event
}

// Dial starts receiving events from the server in the background. Events,
// including connection changes, are delivered on Receive.
func Dial(opts *Options, endpoint aurena.PlaybackEndpoint) *Client {
	c := &Client{
		log:              opts.Log,
		client:           opts.HttpClient,
		endpoint:         endpoint,
		idleTimeout:      opts.IdleTimeout,
		reconnect:        opts.Reconnect,
		retryInterval:    opts.RetryInterval,
		maxRetryInterval: opts.MaxRetryInterval,
		done:             make(chan struct{}),
		recv:             make(chan Event, 32),
	}

	if c.log == nil {
		c.log = &aurena.NullLogger{}
	}
	if c.client == nil {
		c.client = &http.Client{}
	}
	if c.idleTimeout <= 0 {
		c.idleTimeout = DefaultIdleTimeout
	}
	if c.retryInterval <= 0 {
		c.retryInterval = DefaultRetryInterval
	}
	if c.maxRetryInterval <= 0 {
		c.maxRetryInterval = 30 * time.Second
	}

	c.log = c.log.WithField("server", endpoint.String())
	c.ctx, c.cancel = context.WithCancel(context.Background())

	go c.run()
	return c
}

func (c *Client) Endpoint() aurena.PlaybackEndpoint {
	return c.endpoint
}

func (c *Client) Receive() <-chan Event {
	return c.recv
}

func (c *Client) url(path string) string {
	return fmt.Sprintf("http://%s%s", net.JoinHostPort(c.endpoint.Host, strconv.Itoa(c.endpoint.Port)), path)
}

func (c *Client) emit(ev Event) bool {
	select {
	case c.recv <- ev:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Client) newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxInterval = c.maxRetryInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(b, c.ctx)
}

func (c *Client) run() {
	defer close(c.done)
	defer close(c.recv)

	b := c.newBackoff()
	for {
		var resp *http.Response
		err := backoff.Retry(func() error {
			var err error
			resp, err = c.open()
			if err != nil && !c.reconnect {
				return backoff.Permanent(err)
			} else if err != nil && c.ctx.Err() == nil {
				c.log.WithError(err).Warnf("failed connecting to server, retrying")
			}

			return err
		}, b)
		if err != nil {
			if c.ctx.Err() == nil {
				c.log.WithError(err).Errorf("failed connecting to server")
				c.emit(Event{Type: EventTypeDisconnected, Err: err})
			}

			return
		}

		b.Reset()
		c.log.Infof("connected to server")
		if !c.emit(Event{Type: EventTypeConnected}) {
			_ = resp.Body.Close()
			return
		}

		err = c.readLoop(resp.Body)
		_ = resp.Body.Close()

		if c.ctx.Err() != nil {
			c.log.Debugf("player event stream closed")
			return
		}

		c.log.WithError(err).Warnf("disconnected from server")
		if !c.emit(Event{Type: EventTypeDisconnected, Err: err}) || !c.reconnect {
			return
		}
	}
}

func (c *Client) open() (*http.Response, error) {
	req, err := http.NewRequestWithContext(c.ctx, http.MethodGet, c.url("/client/player_events"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed creating request: %w", err)
	}

	req.Header.Set("User-Agent", aurena.UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	return resp, nil
}

// idleReader closes the stream once no data arrived for the idle timeout.
type idleReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.timer.Reset(r.timeout)
	}

	return n, err
}

var errIdleTimeout = errors.New("connection timed out")

func (c *Client) readLoop(body io.ReadCloser) error {
	var timedOut bool
	var lock sync.Mutex

	timer := time.AfterFunc(c.idleTimeout, func() {
		lock.Lock()
		timedOut = true
		lock.Unlock()

		_ = body.Close()
	})
	defer timer.Stop()

	reader := bufio.NewReader(&idleReader{r: body, timer: timer, timeout: c.idleTimeout})
	for {
		chunk, err := reader.ReadBytes(0)
		if err != nil {
			lock.Lock()
			defer lock.Unlock()

			if timedOut {
				return errIdleTimeout
			} else if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}

			return err
		}

		// drop the terminator, empty keepalive chunks are ignored
		chunk = chunk[:len(chunk)-1]
		if len(chunk) < 2 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(chunk, &msg); err != nil {
			c.log.WithError(err).Warnf("failed parsing message: %s", string(chunk))
			continue
		}

		if len(msg.Type) == 0 || msg.Type == MessageTypePing {
			continue
		}

		c.log.Tracef("received %s message", msg.Type)
		if !c.emit(Event{Type: EventTypeMessage, Message: &msg}) {
			return c.ctx.Err()
		}
	}
}

// Next asks the server to advance to the next media.
func (c *Client) Next(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/control/next"), nil)
	if err != nil {
		return fmt.Errorf("failed creating request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed requesting next media: %w", err)
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	return nil
}

// Close stops the stream and waits for the receiving goroutine. The Receive
// channel is closed afterward.
func (c *Client) Close() {
	c.once.Do(func() {
		c.cancel()
		<-c.done
	})
}
