// Package daemon assembles and runs the Jarvis service: the capability
// registry, the interpretation pipeline and the enabled transports.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ilja/jarvis/internal/assistant"
	"github.com/ilja/jarvis/internal/config"
	"github.com/ilja/jarvis/internal/gateway"
	"github.com/ilja/jarvis/internal/logger"
	"github.com/ilja/jarvis/internal/metrics"
	"github.com/ilja/jarvis/internal/sweeper"
	"github.com/ilja/jarvis/internal/telegram"
	"github.com/ilja/jarvis/pkg/audit"
	"github.com/ilja/jarvis/pkg/capability"
	"github.com/ilja/jarvis/pkg/confirm"
	"github.com/ilja/jarvis/pkg/dispatch"
	"github.com/ilja/jarvis/pkg/interpret"
	"github.com/ilja/jarvis/pkg/modules/browser"
	"github.com/ilja/jarvis/pkg/modules/desktop"
	"github.com/ilja/jarvis/pkg/modules/kali"
	"github.com/ilja/jarvis/pkg/modules/system"
	"github.com/ilja/jarvis/pkg/owner"
	"github.com/ilja/jarvis/pkg/policy"
	"github.com/rs/zerolog"
)

// Daemon is the assembled Jarvis service.
type Daemon struct {
	config *config.Config
	logger zerolog.Logger

	// Core
	registry   *capability.Registry
	auditStore *audit.Store
	ownerStore *owner.Store
	policy     *policy.Policy
	gate       *confirm.Gate
	dispatcher *dispatch.Dispatcher
	assistant  *assistant.Assistant
	metrics    *metrics.Metrics

	// Modules needing shutdown
	browserModule *browser.Module

	// Transports and services
	telegramBot     *telegram.Bot
	telegramHandler *telegram.Handler
	gatewayServer   *gateway.Server
	sweeper         *sweeper.Sweeper

	lifecycle *LifecycleManager

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// New builds the daemon in dependency order. Nothing is started yet.
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	d := &Daemon{
		config: cfg,
		logger: log.Zerolog(),
	}

	if err := d.initCore(); err != nil {
		return nil, fmt.Errorf("failed to initialize core: %w", err)
	}
	if err := d.initModules(); err != nil {
		return nil, fmt.Errorf("failed to initialize modules: %w", err)
	}
	if err := d.initPipeline(); err != nil {
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	if err := d.initTransports(); err != nil {
		return nil, fmt.Errorf("failed to initialize transports: %w", err)
	}

	d.lifecycle = NewLifecycleManager(d)
	return d, nil
}

func (d *Daemon) initCore() error {
	d.metrics = metrics.NewMetrics()
	d.registry = capability.NewRegistry()

	store, err := audit.NewStore(audit.Config{
		DBPath: d.config.Audit.Path,
		Logger: d.logger,
	})
	if err != nil {
		return err
	}
	d.auditStore = store

	ownerStore, err := owner.NewStore(owner.Config{
		Path:   filepath.Join(d.config.DataDir, "owner.json"),
		Logger: d.logger,
	})
	if err != nil {
		return err
	}
	d.ownerStore = ownerStore

	pol, err := policy.New(policy.Config{
		Path:       d.config.PolicyPath,
		DefaultTTL: d.config.ConfirmTTL(),
		Logger:     d.logger,
	})
	if err != nil {
		return err
	}
	d.policy = pol

	return nil
}

func (d *Daemon) initModules() error {
	if d.config.Modules.System.Enabled {
		mod := system.New(system.Config{
			Notes:          d.auditStore,
			CaptureCommand: d.config.Modules.System.CaptureCommand,
			ScreenshotDir:  d.config.Modules.System.ScreenshotDir,
			Logger:         d.logger,
		})
		if err := d.registry.Register(mod); err != nil {
			return err
		}
	}

	if d.config.Modules.Desktop.Enabled {
		mod := desktop.New(desktop.Config{
			Apps:   d.config.Modules.Desktop.Apps,
			Logger: d.logger,
		})
		if err := d.registry.Register(mod); err != nil {
			return err
		}
	}

	if d.config.Modules.Browser.Enabled {
		d.browserModule = browser.New(browser.Config{
			ScreenshotDir: d.config.Modules.System.ScreenshotDir,
			Headless:      d.config.Modules.Browser.Headless,
			Logger:        d.logger,
		})
		if err := d.registry.Register(d.browserModule); err != nil {
			return err
		}
	}

	if d.config.Modules.Kali.Enabled {
		mod := kali.New(kali.Config{
			Host:   d.config.Modules.Kali.Host,
			User:   d.config.Modules.Kali.User,
			Port:   d.config.Modules.Kali.Port,
			Logger: d.logger,
		})
		if err := d.registry.Register(mod); err != nil {
			return err
		}
	}

	d.logger.Info().Int("modules", len(d.registry.Modules())).Msg("Capability modules registered")
	return nil
}

func (d *Daemon) initPipeline() error {
	profile, err := d.config.PrimaryProfile()
	if err != nil {
		return err
	}
	provider, err := interpret.NewProvider(interpret.ProviderConfig{
		Provider: profile.Provider,
		APIKey:   profile.APIKey,
		BaseURL:  profile.BaseURL,
		Model:    d.config.Interpreter.Model,
	})
	if err != nil {
		return err
	}

	interpreter, err := interpret.New(interpret.Config{
		Registry:   d.registry,
		Provider:   provider,
		Model:      d.config.Interpreter.Model,
		Timeout:    d.config.InterpreterTimeout(),
		MaxHistory: d.config.Interpreter.MaxHistory,
		Logger:     d.logger,
	})
	if err != nil {
		return err
	}

	d.dispatcher, err = dispatch.New(dispatch.Config{
		Registry: d.registry,
		Audit:    d.auditStore,
		Timeout:  d.config.DispatchTimeout(),
		OnRecord: d.publishRecord,
		Logger:   d.logger,
	})
	if err != nil {
		return err
	}

	d.gate = confirm.NewGate(confirm.Config{
		TTL:       d.policy.TTL(),
		TTLSource: d.policy.TTL,
		Logger:    d.logger,
		OnExpire:  d.onConfirmationExpired,
		OnPending: func(count int) {
			d.metrics.ConfirmationsPending.Set(float64(count))
		},
	})

	d.assistant, err = assistant.New(assistant.Config{
		Registry:    d.registry,
		Interpreter: interpreter,
		Gate:        d.gate,
		Dispatcher:  d.dispatcher,
		Policy:      d.policy,
		Metrics:     d.metrics,
		MaxHistory:  d.config.Interpreter.MaxHistory,
		Logger:      d.logger,
	})
	if err != nil {
		return err
	}

	d.sweeper, err = sweeper.New(sweeper.Config{
		Gate:          d.gate,
		Audit:         d.auditStore,
		RetentionDays: d.config.Audit.RetentionDays,
		Logger:        d.logger,
	})
	return err
}

func (d *Daemon) initTransports() error {
	if d.config.Telegram.Enabled {
		bot, err := telegram.New(telegram.Config{
			Token:   d.config.Telegram.BotToken,
			Logger:  d.logger,
			Metrics: d.metrics,
		})
		if err != nil {
			return err
		}
		d.telegramBot = bot
		d.telegramHandler = telegram.NewHandler(bot, d.assistant, d.ownerStore, d.auditStore)
		d.registerTelegramCommands()
		bot.SetHandler(d.telegramHandler)
	}

	if d.config.Gateway.Enabled {
		server, err := gateway.NewServer(gateway.Config{
			Host:       d.config.Gateway.Host,
			Port:       d.config.Gateway.Port,
			Assistant:  d.assistant,
			Registry:   d.registry,
			Audit:      d.auditStore,
			Gate:       d.gate,
			Dispatcher: d.dispatcher,
			Policy:     d.policy,
			Metrics:    d.metrics,
			Logger:     d.logger,
		})
		if err != nil {
			return err
		}
		d.gatewayServer = server
	}

	return nil
}

// publishRecord streams audit records to gateway event subscribers.
func (d *Daemon) publishRecord(rec audit.Record) {
	if d.gatewayServer != nil {
		d.gatewayServer.Broadcaster().Publish("audit.record", rec)
	}
}

// onConfirmationExpired audits a swept confirmation and tells the
// requester their window lapsed.
func (d *Daemon) onConfirmationExpired(req capability.ActionRequest) {
	text := d.assistant.HandleExpiry(req)
	d.notifyRequester(req.Requester, text)
}

// notifyRequester pushes an unsolicited message to a requester when the
// transport supports it. Telegram identities carry the chat id.
func (d *Daemon) notifyRequester(requester, text string) {
	if d.telegramBot == nil || !strings.HasPrefix(requester, "telegram:") {
		return
	}
	chatID, err := strconv.ParseInt(strings.TrimPrefix(requester, "telegram:"), 10, 64)
	if err != nil {
		return
	}
	if err := d.telegramBot.SendMessage(chatID, text); err != nil {
		d.logger.Warn().Err(err).Str("requester", requester).Msg("Expiry notification failed")
	}
}

// Start brings the daemon up: policy watcher, transports and sweeper.
func (d *Daemon) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("daemon is already running")
	}

	if err := d.lifecycle.Start(); err != nil {
		return err
	}
	if err := d.policy.Watch(); err != nil {
		d.logger.Warn().Err(err).Msg("Policy hot reload unavailable")
	}

	if d.telegramBot != nil {
		if err := d.telegramBot.Start(); err != nil {
			return fmt.Errorf("failed to start telegram bot: %w", err)
		}
	}
	if d.gatewayServer != nil {
		if err := d.gatewayServer.Start(); err != nil {
			return fmt.Errorf("failed to start gateway: %w", err)
		}
	}
	d.sweeper.Start()

	d.startTime = time.Now()
	d.running = true
	d.logger.Info().Msg("Jarvis daemon started")
	return nil
}

// Stop shuts everything down in reverse order.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return nil
	}

	d.sweeper.Stop()
	if d.gatewayServer != nil {
		if err := d.gatewayServer.Stop(); err != nil {
			d.logger.Warn().Err(err).Msg("Gateway stop reported an error")
		}
	}
	if d.telegramBot != nil {
		if err := d.telegramBot.Stop(); err != nil {
			d.logger.Warn().Err(err).Msg("Telegram stop reported an error")
		}
	}
	if d.browserModule != nil {
		if _, err := d.browserModule.Execute(context.Background(), "close", nil); err != nil {
			d.logger.Warn().Err(err).Msg("Browser close reported an error")
		}
	}
	d.policy.Stop()
	if err := d.auditStore.Close(); err != nil {
		d.logger.Warn().Err(err).Msg("Audit store close reported an error")
	}
	if err := d.lifecycle.Stop(); err != nil {
		d.logger.Warn().Err(err).Msg("Lifecycle stop reported an error")
	}

	d.running = false
	d.logger.Info().Msg("Jarvis daemon stopped")
	return nil
}

// Run starts the daemon and blocks until SIGINT or SIGTERM.
func (d *Daemon) Run() error {
	if err := d.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	d.logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	return d.Stop()
}

// Status describes the running daemon.
type Status struct {
	Running bool
	PID     int
	Uptime  time.Duration
	Modules int
	Owner   string
}

// Status returns a snapshot of the daemon state.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
		PID:     os.Getpid(),
		Modules: len(d.registry.Modules()),
		Owner:   d.ownerStore.Owner(),
	}
	if d.running {
		status.Uptime = time.Since(d.startTime)
	}
	return status
}
