package engine

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	aurena "github.com/devgianlu/go-aurena"
	"github.com/devgianlu/go-aurena/control"
	"github.com/devgianlu/go-aurena/pipeline"
)

const (
	DefaultPositionInterval = 250 * time.Millisecond

	// seekThreshold is the offset below which the initial seek is skipped
	// and the pipeline is left to catch up on its own.
	seekThreshold = 500 * time.Millisecond

	defaultLanguage = "en"
)

type Options struct {
	Log       aurena.Logger
	Callbacks Callbacks

	// NewPipeline creates the media pipeline used for a server connection.
	NewPipeline func() (pipeline.Pipeline, error)

	HttpClient *http.Client

	// PositionInterval is the rate at which the position is reported.
	PositionInterval time.Duration
	// IdleTimeout closes a silent server connection.
	IdleTimeout time.Duration
	// Reconnect retries the same server when the connection drops.
	Reconnect bool
	// RetryInterval is the first reconnection delay.
	RetryInterval time.Duration

	Now func() time.Time
}

// AurenaEngine is the player client of an Aurena server. It receives the
// player event stream and drives a media pipeline accordingly.
type AurenaEngine struct {
	log aurena.Logger
	cb  Callbacks
	now func() time.Time

	newPipeline      func() (pipeline.Pipeline, error)
	clientOpts       control.Options
	positionInterval time.Duration

	lock    sync.RWMutex
	started bool
	closed  bool

	cmd  chan engineCmd
	done chan struct{}
}

type engineCmdType int

const (
	engineCmdPlay engineCmdType = iota
	engineCmdPause
	engineCmdSurfaceInit
	engineCmdSurfaceFinalize
)

type engineCmd struct {
	typ  engineCmdType
	data any
	resp chan any
}

func NewAurenaEngine(opts *Options) *AurenaEngine {
	e := &AurenaEngine{
		log:              opts.Log,
		cb:               opts.Callbacks,
		now:              opts.Now,
		newPipeline:      opts.NewPipeline,
		positionInterval: opts.PositionInterval,
	}

	if e.log == nil {
		e.log = &aurena.NullLogger{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.positionInterval <= 0 {
		e.positionInterval = DefaultPositionInterval
	}

	e.clientOpts = control.Options{
		Log:           e.log.WithField("component", "control"),
		HttpClient:    opts.HttpClient,
		IdleTimeout:   opts.IdleTimeout,
		Reconnect:     opts.Reconnect,
		RetryInterval: opts.RetryInterval,
	}

	return e
}

func (e *AurenaEngine) ClassInit() bool {
	return e.cb != nil && e.newPipeline != nil
}

func (e *AurenaEngine) Init() error {
	if !e.ClassInit() {
		return fmt.Errorf("missing engine callbacks or pipeline: %w", aurena.ErrEngineLoad)
	}

	e.lock.Lock()
	defer e.lock.Unlock()

	if e.started || e.closed {
		return aurena.ErrAlreadyInitialized
	}

	e.started = true
	e.cmd = make(chan engineCmd, 64)
	e.done = make(chan struct{})

	go e.manageLoop()
	return nil
}

func (e *AurenaEngine) send(cmd engineCmd) bool {
	e.lock.RLock()
	defer e.lock.RUnlock()

	if !e.started || e.closed {
		e.log.Debugf("ignoring engine command %d, engine not running", cmd.typ)
		return false
	}

	e.cmd <- cmd
	return true
}

func (e *AurenaEngine) Finalize() {
	e.lock.Lock()
	if !e.started || e.closed {
		e.closed = true
		e.lock.Unlock()
		return
	}

	e.closed = true
	close(e.cmd)
	e.lock.Unlock()

	<-e.done
}

func (e *AurenaEngine) Play(address string) {
	if len(address) == 0 {
		e.log.Warnf("ignoring play request without server address")
		return
	}

	e.send(engineCmd{typ: engineCmdPlay, data: address})
}

func (e *AurenaEngine) Pause() {
	e.send(engineCmd{typ: engineCmdPause})
}

func (e *AurenaEngine) SurfaceInit(surface aurena.Surface) {
	var handle uintptr
	if surface != nil {
		handle = surface.WindowHandle()
	}

	e.send(engineCmd{typ: engineCmdSurfaceInit, data: handle})
}

func (e *AurenaEngine) SurfaceFinalize() {
	resp := make(chan any, 1)
	if !e.send(engineCmd{typ: engineCmdSurfaceFinalize, resp: resp}) {
		return
	}

	select {
	case <-resp:
	case <-e.done:
	}
}

// engineLoop holds the state owned by the manage loop goroutine.
type engineLoop struct {
	e   *AurenaEngine
	log aurena.Logger
	ctx context.Context
	wg  sync.WaitGroup

	server *aurena.PlaybackEndpoint
	bound  bool
	window uintptr
	ready  bool

	client *control.Client
	pipe   pipeline.Pipeline
	state  pipeline.State
	clock  serverClock

	enabled  bool
	paused   bool
	volume   float64
	baseTime time.Duration
	position time.Duration
	uri      string
	language string
}

func (e *AurenaEngine) manageLoop() {
	defer close(e.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := &engineLoop{
		e:        e,
		log:      e.log,
		ctx:      ctx,
		clock:    serverClock{now: e.now},
		paused:   true,
		volume:   1,
		language: defaultLanguage,
	}

	ticker := time.NewTicker(e.positionInterval)
	defer ticker.Stop()

	e.log.Debugf("engine loop started")

loop:
	for {
		var clientEv <-chan control.Event
		if l.client != nil {
			clientEv = l.client.Receive()
		}

		var pipeEv <-chan pipeline.Event
		if l.pipe != nil {
			pipeEv = l.pipe.Events()
		}

		select {
		case cmd, ok := <-e.cmd:
			if !ok {
				break loop
			}

			l.handleCommand(cmd)
		case ev, ok := <-clientEv:
			if !ok {
				l.log.Debugf("server connection ended")
				l.destroyClient()
				continue
			}

			l.handleClientEvent(ev)
		case ev, ok := <-pipeEv:
			if !ok {
				l.pipe = nil
				l.reportState(pipeline.StateNull)
				continue
			}

			l.handlePipelineEvent(ev)
		case <-ticker.C:
			l.refreshPosition()
		}
	}

	l.destroyClient()
	cancel()
	l.wg.Wait()

	e.log.Debugf("engine loop exited")
}

func (l *engineLoop) handleCommand(cmd engineCmd) {
	switch cmd.typ {
	case engineCmdPlay:
		address := cmd.data.(string)
		endpoint, err := aurena.ParseEndpoint(address)
		if err != nil {
			l.log.WithError(err).Warnf("ignoring play request for invalid address %s", address)
			return
		}

		l.server = &endpoint
		l.setupClient()
	case engineCmdPause:
		l.destroyClient()
	case engineCmdSurfaceInit:
		l.window = cmd.data.(uintptr)
		l.bound = true

		if l.pipe != nil {
			l.log.Debugf("pipeline already created, forwarding window handle %#x", l.window)
			l.pipe.SetWindowHandle(l.window)
		}

		l.checkReady()
	case engineCmdSurfaceFinalize:
		l.log.Debugf("releasing window handle %#x", l.window)
		l.window = 0
		l.bound = false

		if l.pipe != nil {
			l.pipe.SetWindowHandle(0)
		}

		cmd.resp <- struct{}{}
	default:
		panic("unknown engine command")
	}
}

func (l *engineLoop) checkReady() {
	if l.ready || !l.bound {
		return
	}

	l.ready = true
	l.log.Debugf("engine initialization complete")
	l.e.cb.OnEngineReady()
}

func (l *engineLoop) setupClient() {
	if l.client != nil {
		l.log.Debugf("server connection already exists, not connecting to %s", l.server)
		return
	}

	l.log.Infof("connecting to server at %s", l.server)

	l.enabled = false
	l.paused = true
	l.client = control.Dial(&l.e.clientOpts, *l.server)
}

func (l *engineLoop) destroyClient() {
	if l.client == nil {
		return
	}

	l.log.Debugf("destroying server connection to %s", l.client.Endpoint())
	l.client.Close()
	l.client = nil

	l.destroyPipeline()

	l.clock.reset()
	l.uri = ""
	l.enabled = false
	l.paused = true
}

func (l *engineLoop) ensurePipeline() bool {
	if l.pipe != nil {
		return true
	}

	pipe, err := l.e.newPipeline()
	if err != nil {
		l.log.WithError(err).Errorf("failed creating media pipeline")
		l.e.cb.OnMessage(fmt.Sprintf("failed creating media pipeline: %v", err))
		return false
	}

	if l.bound {
		pipe.SetWindowHandle(l.window)
	}

	pipe.SetVolume(l.volume)

	l.pipe = pipe
	l.reportState(pipe.State())
	return true
}

func (l *engineLoop) destroyPipeline() {
	if l.pipe == nil {
		return
	}

	if err := l.pipe.SetState(pipeline.StateNull); err != nil {
		l.log.WithError(err).Warnf("failed stopping media pipeline")
	}

	if err := l.pipe.Close(); err != nil {
		l.log.WithError(err).Warnf("failed closing media pipeline")
	}

	l.pipe = nil
	l.reportState(pipeline.StateNull)
}

func (l *engineLoop) setState(state pipeline.State) {
	if l.pipe == nil {
		return
	}

	if err := l.pipe.SetState(state); err != nil {
		l.log.WithError(err).Warnf("failed changing pipeline state to %s", state)
	}

	l.reportState(l.pipe.State())
}

func (l *engineLoop) reportState(state pipeline.State) {
	if state == l.state {
		return
	}

	l.log.Debugf("pipeline state changed from %s to %s", l.state, state)
	l.state = state
	l.e.cb.OnStateChanged(state.Code())
}

func (l *engineLoop) active() bool {
	return l.enabled && l.pipe != nil && len(l.uri) > 0
}

func (l *engineLoop) setVolume(volume float64) {
	l.volume = volume
	if l.pipe != nil {
		l.pipe.SetVolume(volume)
	}
}

func (l *engineLoop) handleClientEvent(ev control.Event) {
	switch ev.Type {
	case control.EventTypeConnected:
		l.log.Infof("connected to server at %s", l.server)
	case control.EventTypeDisconnected:
		l.log.WithError(ev.Err).Infof("server connection closed")

		l.setState(pipeline.StateReady)
		l.paused = true
		l.enabled = false
	case control.EventTypeMessage:
		l.handleMessage(ev.Message)
	}
}

func (l *engineLoop) handleMessage(msg *control.Message) {
	switch msg.Type {
	case control.MessageTypeEnrol:
		l.handleEnrol(msg)
	case control.MessageTypeSetMedia:
		l.handleSetMedia(msg)
	case control.MessageTypePlay:
		l.handlePlay(msg)
	case control.MessageTypePause:
		l.handlePause(msg)
	case control.MessageTypeSeek:
		l.handleSeek(msg)
	case control.MessageTypeVolume:
		if msg.Level == nil {
			l.log.Warnf("invalid volume message")
			return
		}

		l.ensurePipeline()
		l.setVolume(*msg.Level)
	case control.MessageTypeClientSetting:
		l.handleClientSetting(msg)
	case control.MessageTypeLanguage:
		if msg.Language == nil {
			l.log.Warnf("invalid language message")
			return
		}

		l.language = *msg.Language
		l.log.Infof("language set to %s", l.language)
	case control.MessageTypeRecord:
		l.log.Warnf("recording is not supported, ignoring record message")
	default:
		l.log.Warnf("unhandled player event of type %s", msg.Type)
	}
}

func (l *engineLoop) handleEnrol(msg *control.Message) {
	if msg.ClockPort == nil || msg.CurrentTime == nil {
		l.log.Warnf("invalid enrol message")
		return
	}

	l.clock.sync(time.Duration(*msg.CurrentTime))
	l.log.Debugf("enrolled, server time %s", time.Duration(*msg.CurrentTime))

	l.ensurePipeline()
	if msg.VolumeLevel != nil {
		l.setVolume(*msg.VolumeLevel)
	}

	if msg.Enabled != nil {
		l.enabled = *msg.Enabled
	}
	if msg.Paused != nil {
		l.paused = *msg.Paused
	}
}

func (l *engineLoop) handleSetMedia(msg *control.Message) {
	if msg.ResourceProtocol == nil || msg.ResourcePath == nil || msg.ResourcePort == nil {
		l.log.Warnf("invalid set-media message")
		return
	}

	baseTime, ok := msg.BaseTimeDuration()
	if !ok {
		l.log.Warnf("invalid set-media message, missing base time")
		return
	}

	position, ok := msg.PositionDuration()
	if !ok {
		l.log.Warnf("invalid set-media message, missing position")
		return
	} else if msg.Paused == nil {
		l.log.Warnf("invalid set-media message, missing paused")
		return
	}

	l.baseTime = baseTime
	l.position = position
	l.paused = *msg.Paused

	if msg.Language != nil {
		l.language = *msg.Language
	} else {
		l.language = defaultLanguage
	}

	hostPort := net.JoinHostPort(l.server.Host, strconv.Itoa(*msg.ResourcePort))
	l.uri = fmt.Sprintf("%s://%s%s", *msg.ResourceProtocol, hostPort, *msg.ResourcePath)

	if l.enabled {
		l.setMedia()
	}
}

func (l *engineLoop) setMedia() {
	if !l.ensurePipeline() {
		return
	}

	l.setState(pipeline.StateReady)

	l.log.Infof("setting media uri %s (base time %s, position %s, paused %t)", l.uri, l.baseTime, l.position, l.paused)
	if err := l.pipe.SetURI(l.uri); err != nil {
		l.log.WithError(err).Errorf("failed setting media uri")
		return
	}

	// preroll
	l.setState(pipeline.StatePaused)

	// compensate the time spent since the server started playing
	if !l.paused {
		if now, ok := l.clock.time(); ok && now > l.baseTime+l.position {
			l.position = now - l.baseTime
		}
	}

	if l.position > seekThreshold {
		if err := l.pipe.Seek(l.position); err != nil {
			l.log.WithError(err).Warnf("initial seek failed")
			l.position = 0
		}
	}

	if !l.paused {
		l.setState(pipeline.StatePlaying)
	}
}

func (l *engineLoop) handlePlay(msg *control.Message) {
	baseTime, ok := msg.BaseTimeDuration()
	if !ok {
		l.log.Warnf("invalid play message")
		return
	}

	l.baseTime = baseTime
	l.paused = false

	if l.active() {
		l.log.Debugf("playing at base time %s (position %s)", l.baseTime, l.position)
		l.setState(pipeline.StatePlaying)
	}
}

func (l *engineLoop) handlePause(msg *control.Message) {
	position, ok := msg.PositionDuration()
	if !ok {
		l.log.Warnf("invalid pause message")
		return
	}

	oldPosition := l.position
	l.position = position
	l.paused = true

	if l.active() {
		l.log.Debugf("pausing at position %s", l.position)
		l.setState(pipeline.StatePaused)

		if err := l.pipe.Seek(l.position); err != nil {
			l.log.WithError(err).Warnf("pausing seek failed")
			l.position = oldPosition
		}
	}
}

func (l *engineLoop) handleSeek(msg *control.Message) {
	baseTime, ok := msg.BaseTimeDuration()
	if !ok {
		l.log.Warnf("invalid seek message")
		return
	}

	position, ok := msg.PositionDuration()
	if !ok {
		l.log.Warnf("invalid seek message")
		return
	}

	oldPosition := l.position
	l.baseTime = baseTime
	l.position = position

	if l.active() {
		l.log.Debugf("seeking to position %s (base time %s)", l.position, l.baseTime)

		if err := l.pipe.Seek(l.position); err != nil {
			l.log.WithError(err).Warnf("seeking failed")
			l.position = oldPosition
		}
	}
}

func (l *engineLoop) handleClientSetting(msg *control.Message) {
	if msg.Enabled == nil {
		l.log.Warnf("invalid client-setting message")
		return
	}

	if *msg.Enabled == l.enabled {
		return
	}

	l.enabled = *msg.Enabled
	l.log.Infof("client enabled: %t", l.enabled)

	if l.pipe == nil {
		return
	}

	if l.enabled && len(l.uri) > 0 {
		l.setMedia()
	} else {
		l.setState(pipeline.StateReady)
	}
}

func (l *engineLoop) handlePipelineEvent(ev pipeline.Event) {
	switch ev.Type {
	case pipeline.EventTypeEOS:
		l.log.Infof("end of stream reached")
		l.requestNext()
	case pipeline.EventTypeError:
		l.log.WithError(ev.Err).Errorf("media pipeline failed")
		l.e.cb.OnMessage(fmt.Sprintf("error received from media pipeline: %v", ev.Err))
	}

	l.reportState(l.pipe.State())
}

func (l *engineLoop) requestNext() {
	if l.client == nil {
		return
	}

	client := l.client
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		if err := client.Next(l.ctx); err != nil {
			l.log.WithError(err).Warnf("failed requesting next media")
		}
	}()
}

func (l *engineLoop) refreshPosition() {
	if l.client == nil || !l.enabled || l.pipe == nil {
		return
	}

	position, ok := l.pipe.Position()
	if !ok {
		return
	}

	duration, _ := l.pipe.Duration()
	l.e.cb.OnPositionChanged(int(position/time.Millisecond), int(duration/time.Millisecond))
}
