package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/omronble/internal/device"
	"github.com/srg/omronble/internal/device/goble"
	"github.com/srg/omronble/internal/permission"
	"github.com/srg/omronble/internal/session"
	"github.com/srg/omronble/pkg/config"
)

// Factories replaced by tests.
var (
	newTransport = func(logger *logrus.Logger) device.Transport {
		return goble.NewTransport(logger)
	}
	newPermission = permission.Default
)

type app struct {
	cfg    *config.Config
	logger *logrus.Logger
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger}, nil
}

func (a *app) newManager(extra ...session.Option) *session.Manager {
	opts := session.FromConfig(a.cfg)
	opts = append(opts,
		session.WithLogger(a.logger),
		session.WithPermission(newPermission(a.logger)),
	)
	opts = append(opts, extra...)
	return session.NewManager(newTransport(a.logger), opts...)
}
