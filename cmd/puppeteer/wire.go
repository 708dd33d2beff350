//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"github.com/google/wire"

	"github.com/yola1107/puppeteer/internal/biz/host"
	"github.com/yola1107/puppeteer/internal/conf"
	"github.com/yola1107/puppeteer/internal/data"
	"github.com/yola1107/puppeteer/internal/service"
)

// wireService init the relay service.
func wireService(*conf.Bootstrap, host.Colony) (*service.Service, func(), error) {
	panic(wire.Build(
		wire.FieldsOf(new(*conf.Bootstrap), "Relay", "Data"),
		data.ProviderSet,
		wire.Bind(new(service.TokenWatcher), new(*data.TokenFile)),
		service.ProviderSet,
	))
}
