package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zfogg/daredrop/pkg/config"
	"github.com/zfogg/daredrop/pkg/contentgate"
	"github.com/zfogg/daredrop/pkg/formatter"
	"github.com/zfogg/daredrop/pkg/gateway"
	"github.com/zfogg/daredrop/pkg/localstore"
	"github.com/zfogg/daredrop/pkg/logger"
	"github.com/zfogg/daredrop/pkg/metrics"
	"github.com/zfogg/daredrop/pkg/optimistic"
	"github.com/zfogg/daredrop/pkg/prompter"
	"github.com/zfogg/daredrop/pkg/realtime"
	"github.com/zfogg/daredrop/pkg/service"
	"github.com/zfogg/daredrop/pkg/session"
	"github.com/zfogg/daredrop/pkg/subscription"
	"github.com/zfogg/daredrop/pkg/telemetry"
)

// app is everything a command needs, built once per invocation
type app struct {
	gateway  *gateway.Client
	sessions *session.Store
	realtime *realtime.Client
	deps     service.Deps

	shutdown []func()
}

// newApp wires the client stack. A restored session is required unless
// anonymous is set.
func newApp(ctx context.Context, anonymous bool) (*app, error) {
	a := &app{}

	tp, err := telemetry.InitTracer(telemetry.Config{
		ServiceName:    "daredrop-cli",
		ServiceVersion: Version,
		Environment:    config.GetString("telemetry.environment"),
		OTLPEndpoint:   config.GetString("telemetry.otlp_endpoint"),
		Enabled:        config.GetBool("telemetry.enabled"),
		SamplingRate:   config.GetFloat("telemetry.sampling_rate"),
	})
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
	} else if tp != nil {
		a.onClose(func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		})
	}

	if addr := config.GetString("metrics.addr"); addr != "" {
		metricsCtx, cancel := context.WithCancel(context.Background())
		a.onClose(cancel)
		go func() {
			if err := metrics.Serve(metricsCtx, addr); err != nil {
				logger.Error("Metrics listener failed", "addr", addr, "error", err)
			}
		}()
	}

	a.gateway = gateway.NewFromConfig(nil)
	a.sessions = session.NewStore(a.gateway)
	a.gateway.SetTokenSource(a.sessions)

	var sess session.Session
	if !anonymous {
		sess, err = a.sessions.Restore(ctx)
		if err != nil {
			a.close()
			if errors.Is(err, session.ErrNotAuthenticated) {
				return nil, fmt.Errorf("%w: run 'daredrop auth login' first", err)
			}
			return nil, err
		}
	}

	a.realtime = realtime.NewClient(realtime.ConfigFromSettings(), a.sessions)
	a.onClose(func() { _ = a.realtime.Disconnect() })

	ack := contentgate.AcknowledgerFunc(func(_ context.Context, v contentgate.Verdict) (bool, error) {
		formatter.PrintWarning("This content was flagged: %s %s", v.Reason, formatter.Flags(v.Flags))
		return prompter.PromptConfirm("Publish it anyway for moderator review?")
	})
	gate := contentgate.New(
		contentgate.NewHTTPScanner(a.gateway, config.GetString("functions.scan")),
		ack,
		contentgate.ParsePolicy(config.GetString("scan.failure_policy")),
	)

	a.deps = service.Deps{
		Gateway: a.gateway,
		Opener:  subscription.FromRealtime(a.realtime),
		Dispatcher: optimistic.New(optimistic.NotifierFunc(func(n optimistic.Notice) {
			formatter.PrintWarning("%s", n.Message)
		})),
		Gate:      gate,
		Session:   sess,
		Functions: service.FunctionsFromConfig(),
	}
	return a, nil
}

func (a *app) onClose(fn func()) {
	a.shutdown = append(a.shutdown, fn)
}

// close waits for in-flight commits, then tears down in reverse order
func (a *app) close() {
	if a.deps.Dispatcher != nil {
		a.deps.Dispatcher.Wait()
	}
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		a.shutdown[i]()
	}
	a.shutdown = nil
}

// openState opens the local state database
func openState() (*localstore.Store, error) {
	return localstore.Open(config.GetString("state.path"))
}

// interruptible returns a context cancelled on Ctrl-C or SIGTERM
func interruptible(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// watch calls render once, then again whenever any of sources fires, until
// ctx ends
func watch(ctx context.Context, sources []<-chan struct{}, render func() error) error {
	wake := make(chan struct{}, 1)
	for _, src := range sources {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-src:
					select {
					case wake <- struct{}{}:
					default:
					}
				}
			}
		}()
	}

	if err := render(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-wake:
			if err := render(); err != nil {
				return err
			}
		}
	}
}

// offerRetry shows a failed view and retries only if the user asks to.
// Declining ends the command with the failure.
func offerRetry(ctx context.Context, cause error, retry func(context.Context) error) error {
	formatter.PrintError("Sync failed: %v", cause)
	ok, err := prompter.PromptConfirm("Retry now?")
	if err != nil || !ok {
		return cause
	}
	if err := retry(ctx); err != nil {
		formatter.PrintError("Retry failed: %v", err)
	}
	return nil
}
