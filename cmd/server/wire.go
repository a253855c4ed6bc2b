//go:build wireinject

package main

import (
	"jan-server/services/envchat-api/internal/domain"
	"jan-server/services/envchat-api/internal/domain/environment"
	"jan-server/services/envchat-api/internal/infrastructure"
	"jan-server/services/envchat-api/internal/interfaces"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/routes"

	"github.com/google/wire"
)

func CreateApplication() (*Application, func(), error) {
	wire.Build(
		domain.ServiceProvider,
		infrastructure.InfrastructureProvider,
		routes.RouteProvider,
		interfaces.InterfacesProvider,
		wire.Struct(new(Application), "*"),
	)
	return nil, nil, nil
}

func CreateDataInitializer() (*DataInitializer, func(), error) {
	wire.Build(
		domain.ServiceProvider,
		infrastructure.InfrastructureProvider,
		wire.Bind(new(EnvironmentSeeder), new(*environment.Registry)),
		wire.Struct(new(DataInitializer), "*"),
	)
	return nil, nil, nil
}
