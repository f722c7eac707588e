package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/godbus/dbus/v5"
	log "github.com/sirupsen/logrus"

	aurena "github.com/devgianlu/go-aurena"
	"github.com/devgianlu/go-aurena/engine"
	"github.com/devgianlu/go-aurena/mpris"
	"github.com/devgianlu/go-aurena/pipeline"
	"github.com/devgianlu/go-aurena/session"
	"github.com/devgianlu/go-aurena/status"
	"github.com/devgianlu/go-aurena/surface"
	"github.com/devgianlu/go-aurena/zeroconf"
)

type App struct {
	cfg *Config
	log aurena.Logger

	loop     *status.Loop
	display  *status.Display
	reporter *status.Reporter

	sess *session.Session

	surface      *surface.Headless
	presentation *surface.Presentation

	locator *zeroconf.Locator
	stopped bool

	server *ApiServer
	mpris  mpris.Server

	ctx context.Context
}

func NewApp(cfg *Config) (app *App, err error) {
	app = &App{cfg: cfg, log: &LogrusAdapter{log.NewEntry(log.StandardLogger())}}

	app.loop = status.NewLoop()
	app.display = status.NewDisplay()

	// create api server if needed
	if cfg.Server.Enabled {
		app.server, err = NewApiServer(app.log.WithField("component", "api"), cfg.Server.Address, cfg.Server.Port, cfg.Server.AllowOrigin, cfg.Server.CertFile, cfg.Server.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed creating api server: %w", err)
		}
	} else {
		app.server, _ = NewStubApiServer(app.log)
	}

	// create mpris server if needed
	if cfg.MprisEnabled {
		app.mpris, err = mpris.NewServer(app.log.WithField("component", "mpris"))
		if err != nil {
			app.server.Close()
			return nil, fmt.Errorf("failed creating mpris server: %w", err)
		}
	} else {
		app.mpris = mpris.DummyServer{}
	}

	app.reporter = status.NewReporter(&status.ReporterOptions{
		Log:           app.log.WithField("component", "status"),
		Loop:          app.loop,
		Sink:          status.Sinks{&status.LogSink{Log: app.log.WithField("component", "status")}, app.display, app.server, app.mpris},
		OnEngineReady: app.onEngineReady,
	})

	eng := engine.NewAurenaEngine(&engine.Options{
		Log:              app.log.WithField("component", "engine"),
		Callbacks:        app.reporter,
		NewPipeline:      app.newPipeline,
		PositionInterval: time.Duration(cfg.Engine.PositionIntervalMs) * time.Millisecond,
		IdleTimeout:      time.Duration(cfg.Engine.IdleTimeoutS) * time.Second,
		Reconnect:        cfg.Engine.Reconnect,
	})

	app.sess, err = session.NewSessionFromOptions(&session.Options{
		Log:    app.log.WithField("component", "session"),
		Engine: eng,
	})
	if err != nil {
		app.closeServers()
		return nil, fmt.Errorf("failed creating session: %w", err)
	}

	app.surface = surface.NewHeadless(uintptr(cfg.Surface.WindowHandle))
	app.presentation = surface.NewPresentation(app.log.WithField("component", "surface"), app.sess)

	if len(cfg.Engine.Server) == 0 {
		backend, err := app.newBackend()
		if err != nil {
			app.closeServers()
			return nil, err
		}

		app.locator, err = app.newLocator(backend)
		if err != nil {
			backend.Close()
			app.closeServers()
			return nil, err
		}
	}

	return app, nil
}

func (app *App) newPipeline() (pipeline.Pipeline, error) {
	return pipeline.NewPipeline(&pipeline.Options{
		Log:     app.log.WithField("component", "pipeline"),
		Backend: app.cfg.Engine.Pipeline,
		Command: app.cfg.Engine.PipelineCommand,
	})
}

func (app *App) newBackend() (zeroconf.Backend, error) {
	var ifaces []net.Interface
	for _, name := range app.cfg.Discovery.Interfaces {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return nil, fmt.Errorf("failed getting interface %s: %w", name, err)
		}

		ifaces = append(ifaces, *iface)
	}

	backend, err := zeroconf.NewBackend(app.cfg.Discovery.Backend, &zeroconf.BackendOptions{
		Log:          app.log.WithField("component", "zeroconf"),
		Interfaces:   ifaces,
		PollInterval: time.Duration(app.cfg.Discovery.PollIntervalMs) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed creating discovery backend: %w", err)
	}

	return backend, nil
}

func (app *App) newLocator(backend zeroconf.Backend) (*zeroconf.Locator, error) {
	locator, err := zeroconf.NewLocator(&zeroconf.LocatorOptions{
		Log:            app.log.WithField("component", "locator"),
		Backend:        backend,
		ResolveTimeout: time.Duration(app.cfg.Discovery.ResolveTimeoutMs) * time.Millisecond,
		OnResolved: func(ann aurena.ServiceAnnouncement, endpoint aurena.PlaybackEndpoint) {
			app.post(func() { app.playEndpoint(ann.Name, endpoint) })
		},
		OnLost: func(ann aurena.ServiceAnnouncement) {
			if !app.cfg.Discovery.StopOnLost {
				return
			}

			app.post(func() {
				if err := app.sess.Pause(); err != nil {
					app.log.WithError(err).Warnf("failed pausing after losing %s", ann.Name)
				}
			})
		},
		OnResolutionFailed: func(err error) {
			app.log.WithError(err).Debugf("ignoring failed resolution")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed creating locator: %w", err)
	}

	return locator, nil
}

func (app *App) post(task func()) {
	if !app.loop.Post(task) {
		app.log.Debugf("dropping task, loop closed")
	}
}

// onEngineReady runs on the loop, once.
func (app *App) onEngineReady() {
	if app.stopped {
		app.log.Debugf("engine ready after stopping")
		return
	}

	if len(app.cfg.Engine.Server) > 0 {
		endpoint, err := aurena.ParseEndpoint(app.cfg.Engine.Server)
		if err != nil {
			app.log.WithError(err).Errorf("invalid server address %s", app.cfg.Engine.Server)
			app.display.SetMessage(err.Error())
			return
		}

		app.playEndpoint("", endpoint)
		return
	}

	if err := app.locator.StartDiscovery(app.ctx, app.cfg.ServiceType); err != nil {
		if errors.Is(err, aurena.ErrAlreadyDiscovering) {
			return
		}

		// the user only learns discovery is not running
		app.log.WithError(err).Errorf("failed starting discovery")
		app.display.SetMessage(aurena.ErrDiscoveryStart.Error())
	}
}

func (app *App) playEndpoint(name string, endpoint aurena.PlaybackEndpoint) {
	if err := app.sess.Replace(endpoint); err != nil {
		app.log.WithError(err).Warnf("failed playing %s", endpoint)
		return
	}

	app.server.SetEndpoint(name, endpoint)
}

func (app *App) handleApiRequest(req ApiRequest) (any, error) {
	switch req.Type {
	case ApiRequestTypeStatus:
		snapshot := app.display.Snapshot()
		resp := &ApiResponseStatus{
			SessionId:    app.sess.ID(),
			SessionState: app.sess.State().String(),
			State:        snapshot.State,
			Position:     snapshot.Position,
			Duration:     snapshot.Duration,
			TimeText:     snapshot.TimeText,
			Message:      snapshot.Message,
		}

		if endpoint, ok := app.sess.Endpoint(); ok {
			resp.Endpoint = endpoint.String()
		}

		return resp, nil
	case ApiRequestTypeResume:
		endpoint, ok := app.sess.Endpoint()
		if !ok {
			return nil, ErrNoSession
		}

		return nil, app.sess.Play(endpoint)
	case ApiRequestTypePause:
		return nil, app.sess.Pause()
	case ApiRequestTypePlay:
		endpoint, ok := req.Data.(aurena.PlaybackEndpoint)
		if !ok {
			return nil, ErrBadRequest
		}

		if err := app.sess.Replace(endpoint); err != nil {
			return nil, err
		}

		app.server.SetEndpoint("", endpoint)
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown request type: %s", req.Type)
	}
}

func (app *App) handleMprisCommand(cmd mpris.MediaPlayer2PlayerCommand) error {
	switch cmd.Type {
	case mpris.MediaPlayer2PlayerCommandTypePause, mpris.MediaPlayer2PlayerCommandTypeStop:
		return app.sess.Pause()
	case mpris.MediaPlayer2PlayerCommandTypePlay:
		endpoint, ok := app.sess.Endpoint()
		if !ok {
			return ErrNoSession
		}

		return app.sess.Play(endpoint)
	case mpris.MediaPlayer2PlayerCommandTypePlayPause:
		if app.sess.State() == session.StatePlaying {
			return app.sess.Pause()
		}

		endpoint, ok := app.sess.Endpoint()
		if !ok {
			return ErrNoSession
		}

		return app.sess.Play(endpoint)
	case mpris.MediaPlayer2PlayerCommandTypeOpenUri:
		endpoint := cmd.Argument.(aurena.PlaybackEndpoint)
		if err := app.sess.Replace(endpoint); err != nil {
			return err
		}

		app.server.SetEndpoint("", endpoint)
		return nil
	default:
		return fmt.Errorf("unknown mpris command: %d", cmd.Type)
	}
}

// dispatch moves requests from the api and mpris servers onto the loop.
func (app *App) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-app.server.Receive():
			if !app.loop.Post(func() { req.Reply(app.handleApiRequest(req)) }) {
				req.Reply(nil, aurena.ErrSessionFinalized)
			}
		case cmd := <-app.mpris.Receive():
			if !app.loop.Post(func() {
				var resp mpris.MediaPlayer2PlayerCommandResponse
				if err := app.handleMprisCommand(cmd); err != nil {
					resp.Err = dbus.MakeFailedError(err)
				}

				cmd.Reply(resp)
			}) {
				cmd.Reply(mpris.MediaPlayer2PlayerCommandResponse{Err: dbus.MakeFailedError(aurena.ErrSessionFinalized)})
			}
		}
	}
}

// Run initializes the session and runs the loop until ctx is done. A failure
// to load the engine is returned as aurena.ErrEngineLoad.
func (app *App) Run(ctx context.Context) error {
	defer app.closeServers()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	app.ctx = ctx

	if err := app.sess.Init(); err != nil {
		if app.locator != nil {
			app.locator.Close()
		}

		return err
	}

	app.log.WithField("session", app.sess.ID()).Infof("session initialized")

	// a headless surface exists right away
	if err := app.presentation.OnCreated(app.surface); err != nil {
		app.log.WithError(err).Errorf("failed creating surface")
	}
	if err := app.presentation.OnChanged(app.surface, surface.FormatRGBA8888, app.cfg.Surface.Width, app.cfg.Surface.Height); err != nil {
		app.log.WithError(err).Errorf("failed binding surface")
	}

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		app.dispatch(ctx)
	}()

	if err := app.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		app.log.WithError(err).Errorf("status loop failed")
	}

	cancel()
	<-dispatchDone

	app.stop()
	return nil
}

// stop runs on the loop goroutine once Run returned.
func (app *App) stop() {
	app.stopped = true
	if app.locator != nil {
		app.locator.Close()
	}

	if err := app.presentation.OnDestroyed(); err != nil {
		app.log.WithError(err).Debugf("failed unbinding surface")
	}
	app.surface.Release()

	if err := app.sess.Finalize(); err != nil {
		app.log.WithError(err).Debugf("failed finalizing session")
	}

	app.loop.Close()

	// drain whatever the engine posted while stopping
	_ = app.loop.Run(context.Background())
}

func (app *App) closeServers() {
	app.server.Close()
	if err := app.mpris.Close(); err != nil {
		app.log.WithError(err).Debugf("failed closing mpris server")
	}
}
