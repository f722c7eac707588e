package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/cors"

	aurena "github.com/devgianlu/go-aurena"
	"golang.org/x/exp/slices"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const timeout = 10 * time.Second

const apiEventQueueSize = 64

type ApiServer struct {
	log aurena.Logger

	allowOrigin string
	certFile    string
	keyFile     string

	close    bool
	listener net.Listener

	requests chan ApiRequest

	events     chan *ApiEvent
	eventsLock sync.Mutex
	done       chan struct{}

	clients     []*websocket.Conn
	clientsLock sync.RWMutex
}

var (
	ErrNoSession        = errors.New("no session")
	ErrBadRequest       = errors.New("bad request")
	ErrMethodNotAllowed = errors.New("method not allowed")
)

type ApiRequestType string

const (
	ApiRequestTypeStatus ApiRequestType = "status"
	ApiRequestTypeResume ApiRequestType = "resume"
	ApiRequestTypePause  ApiRequestType = "pause"
	ApiRequestTypePlay   ApiRequestType = "play"
)

type ApiEventType string

const (
	ApiEventTypeState    ApiEventType = "state"
	ApiEventTypePosition ApiEventType = "position"
	ApiEventTypeMessage  ApiEventType = "message"
	ApiEventTypeEndpoint ApiEventType = "endpoint"
)

type ApiRequest struct {
	Type ApiRequestType
	Data any

	resp chan apiResponse
}

func (r *ApiRequest) Reply(data any, err error) {
	r.resp <- apiResponse{data, err}
}

type ApiRequestDataPlay struct {
	Address string `json:"address"`
}

type apiResponse struct {
	data any
	err  error
}

type ApiResponseStatus struct {
	SessionId    string `json:"session_id"`
	SessionState string `json:"session_state"`
	Endpoint     string `json:"endpoint,omitempty"`
	State        string `json:"state"`
	Position     int    `json:"position"`
	Duration     int    `json:"duration"`
	TimeText     string `json:"time_text"`
	Message      string `json:"message,omitempty"`
}

type ApiEvent struct {
	Type ApiEventType `json:"type"`
	Data any          `json:"data"`
}

type ApiEventDataState struct {
	State string `json:"state"`
}

type ApiEventDataPosition struct {
	Position int    `json:"position"`
	Duration int    `json:"duration"`
	TimeText string `json:"time_text"`
}

type ApiEventDataMessage struct {
	Text string `json:"text"`
}

type ApiEventDataEndpoint struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

func NewApiServer(log aurena.Logger, address string, port int, allowOrigin string, certFile string, keyFile string) (_ *ApiServer, err error) {
	s := &ApiServer{log: log, allowOrigin: allowOrigin, certFile: certFile, keyFile: keyFile}
	s.requests = make(chan ApiRequest)
	s.events = make(chan *ApiEvent, apiEventQueueSize)
	s.done = make(chan struct{})

	s.listener, err = net.Listen("tcp", net.JoinHostPort(address, fmt.Sprint(port)))
	if err != nil {
		return nil, fmt.Errorf("failed starting api listener: %w", err)
	}

	log.Infof("api server listening on %s", s.listener.Addr())

	go s.serve()
	go s.emitLoop(s.events)
	return s, nil
}

func NewStubApiServer(log aurena.Logger) (*ApiServer, error) {
	s := &ApiServer{log: log}
	s.requests = make(chan ApiRequest)
	return s, nil
}

func (s *ApiServer) handleRequest(req ApiRequest, w http.ResponseWriter) {
	req.resp = make(chan apiResponse, 1)
	s.requests <- req
	resp := <-req.resp

	if resp.err != nil {
		switch {
		case errors.Is(resp.err, ErrNoSession), errors.Is(resp.err, aurena.ErrNoEngine):
			w.WriteHeader(http.StatusNoContent)
			return
		case errors.Is(resp.err, aurena.ErrSessionFinalized):
			w.WriteHeader(http.StatusGone)
			return
		case errors.Is(resp.err, ErrMethodNotAllowed):
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		case errors.Is(resp.err, ErrBadRequest):
			w.WriteHeader(http.StatusBadRequest)
			return
		default:
			s.log.WithError(resp.err).Errorf("failed handling request %s", req.Type)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.data == nil {
		_, _ = w.Write([]byte("{}"))
		return
	}

	_ = json.NewEncoder(w).Encode(resp.data)
}

func (s *ApiServer) handler() http.Handler {
	m := http.NewServeMux()
	m.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{}"))
	})
	m.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		s.handleRequest(ApiRequest{Type: ApiRequestTypeStatus}, w)
	})
	m.HandleFunc("/player/play", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var data ApiRequestDataPlay
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		endpoint, err := aurena.ParseEndpoint(data.Address)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		s.handleRequest(ApiRequest{Type: ApiRequestTypePlay, Data: endpoint}, w)
	})
	m.HandleFunc("/player/resume", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		s.handleRequest(ApiRequest{Type: ApiRequestTypeResume}, w)
	})
	m.HandleFunc("/player/pause", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		s.handleRequest(ApiRequest{Type: ApiRequestTypePause}, w)
	})
	m.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		opts := &websocket.AcceptOptions{}
		if len(s.allowOrigin) > 0 {
			allow := s.allowOrigin
			allow = strings.TrimPrefix(allow, "http://")
			allow = strings.TrimPrefix(allow, "https://")
			allow = strings.TrimSuffix(allow, "/")
			opts.OriginPatterns = []string{allow}
		}

		c, err := websocket.Accept(w, r, opts)
		if err != nil {
			s.log.WithError(err).Errorf("failed accepting websocket connection")
			return
		}

		// add the client to the list
		s.clientsLock.Lock()
		s.clients = append(s.clients, c)
		s.clientsLock.Unlock()

		s.log.Debugf("new websocket client")

		for {
			_, _, err := c.Read(context.Background())
			if s.close {
				return
			} else if err != nil {
				s.log.WithError(err).Debugf("websocket connection closed")

				// remove the client from the list
				s.clientsLock.Lock()
				s.clients = slices.DeleteFunc(s.clients, func(cc *websocket.Conn) bool { return cc == c })
				s.clientsLock.Unlock()
				return
			}
		}
	})

	c := cors.New(cors.Options{
		AllowedOrigins:      []string{s.allowOrigin},
		AllowPrivateNetwork: true,
		AllowCredentials:    true,
	})

	return c.Handler(m)
}

func (s *ApiServer) serve() {
	var err error
	if len(s.certFile) > 0 && len(s.keyFile) > 0 {
		err = http.ServeTLS(s.listener, s.handler(), s.certFile, s.keyFile)
	} else {
		err = http.Serve(s.listener, s.handler())
	}

	if s.close {
		return
	} else if err != nil {
		s.log.WithError(err).Errorf("failed serving api")
	}
}

func (s *ApiServer) emitLoop(events <-chan *ApiEvent) {
	defer close(s.done)

	for ev := range events {
		s.emit(ev)
	}
}

func (s *ApiServer) emit(ev *ApiEvent) {
	s.clientsLock.RLock()
	defer s.clientsLock.RUnlock()

	for _, client := range s.clients {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := wsjson.Write(ctx, client, ev)
		cancel()
		if err != nil {
			// purposely do not propagate this to the caller
			s.log.WithError(err).Errorf("failed communicating with websocket client")
		}
	}
}

// Emit queues the event for all websocket clients. Events are dropped if the
// clients cannot keep up.
func (s *ApiServer) Emit(ev *ApiEvent) {
	s.eventsLock.Lock()
	defer s.eventsLock.Unlock()

	if s.events == nil {
		return
	}

	s.log.Tracef("emitting websocket event: %s", ev.Type)

	select {
	case s.events <- ev:
	default:
		s.log.Warnf("dropping websocket event: %s", ev.Type)
	}
}

func (s *ApiServer) SetState(state aurena.PlaybackState) {
	s.Emit(&ApiEvent{Type: ApiEventTypeState, Data: ApiEventDataState{State: state.String()}})
}

func (s *ApiServer) SetPosition(sample aurena.PositionSample) {
	s.Emit(&ApiEvent{Type: ApiEventTypePosition, Data: ApiEventDataPosition{
		Position: sample.Position,
		Duration: sample.Duration,
		TimeText: sample.String(),
	}})
}

func (s *ApiServer) SetMessage(text string) {
	s.Emit(&ApiEvent{Type: ApiEventTypeMessage, Data: ApiEventDataMessage{Text: text}})
}

func (s *ApiServer) SetEndpoint(name string, endpoint aurena.PlaybackEndpoint) {
	s.Emit(&ApiEvent{Type: ApiEventTypeEndpoint, Data: ApiEventDataEndpoint{Name: name, Address: endpoint.String()}})
}

func (s *ApiServer) Receive() <-chan ApiRequest {
	return s.requests
}

func (s *ApiServer) Close() {
	if s.listener == nil {
		return
	}

	s.close = true

	// close all websocket clients
	s.clientsLock.RLock()
	for _, client := range s.clients {
		_ = client.Close(websocket.StatusGoingAway, "")
	}
	s.clientsLock.RUnlock()

	// close the listener
	_ = s.listener.Close()

	s.eventsLock.Lock()
	close(s.events)
	s.events = nil
	s.eventsLock.Unlock()

	<-s.done
}
